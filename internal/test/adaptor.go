package itst

import (
	"sync"
	"sync/atomic"

	"github.com/socketio/socket.io-sub001/adaptor"
	siop "github.com/socketio/socket.io-sub001/protocol"
)

// Namespace is an adaptor.Namespace whose sockets record what they were
// sent.
type Namespace struct {
	Nsp string
	// Reply answers the server side emits that wait for one.
	Reply func(args []interface{}) interface{}

	ʘ       sync.Mutex
	sockets map[adaptor.SocketID]*Socket
	ackID   uint64
	emitted [][]interface{}
}

func NewNamespace(name string) *Namespace {
	return &Namespace{Nsp: name, sockets: make(map[adaptor.SocketID]*Socket)}
}

func (n *Namespace) Name() string          { return n.Nsp }
func (n *Namespace) Encoder() siop.Encoder { return siop.JSONParser{}.NewEncoder() }
func (n *Namespace) NextAckID() uint64     { return atomic.AddUint64(&n.ackID, 1) - 1 }

func (n *Namespace) OnServerSideEmit(args []interface{}, reply func(interface{})) {
	n.ʘ.Lock()
	n.emitted = append(n.emitted, args)
	n.ʘ.Unlock()

	if reply != nil && n.Reply != nil {
		reply(n.Reply(args))
	}
}

// ServerSideEmits are the args received from other servers.
func (n *Namespace) ServerSideEmits() [][]interface{} {
	n.ʘ.Lock()
	defer n.ʘ.Unlock()
	return append([][]interface{}(nil), n.emitted...)
}

func (n *Namespace) Add(s *Socket) {
	n.ʘ.Lock()
	defer n.ʘ.Unlock()
	n.sockets[s.Sid] = s
}

func (n *Namespace) Remove(id adaptor.SocketID) {
	n.ʘ.Lock()
	defer n.ʘ.Unlock()
	delete(n.sockets, id)
}

func (n *Namespace) Socket(id adaptor.SocketID) (adaptor.Socket, bool) {
	n.ʘ.Lock()
	defer n.ʘ.Unlock()

	s, ok := n.sockets[id]
	return s, ok
}

// Socket is an adaptor.Socket that joins rooms through Adapter and keeps
// every delivered message.
type Socket struct {
	Sid     adaptor.SocketID
	Adapter adaptor.Adapter

	ʘ            sync.Mutex
	Received     [][]interface{}
	Flags        []adaptor.BroadcastFlags
	Acks         map[uint64]func([]interface{})
	Disconnected bool
	Closed       bool
}

func (s *Socket) ID() adaptor.SocketID { return s.Sid }

func (s *Socket) Details() adaptor.SocketDetails {
	return adaptor.SocketDetails{ID: s.Sid, Rooms: s.Adapter.SocketRooms(s.Sid)}
}

func (s *Socket) Join(rooms ...adaptor.Room) { s.Adapter.AddAll(s.Sid, rooms...) }
func (s *Socket) Leave(room adaptor.Room)    { s.Adapter.Del(s.Sid, room) }

func (s *Socket) Disconnect(close bool) {
	s.ʘ.Lock()
	s.Disconnected, s.Closed = true, close
	s.ʘ.Unlock()
	s.Adapter.DelAll(s.Sid)
}

func (s *Socket) Deliver(_ siop.Packet, encoded []interface{}, flags adaptor.BroadcastFlags) {
	s.ʘ.Lock()
	defer s.ʘ.Unlock()
	s.Received = append(s.Received, encoded)
	s.Flags = append(s.Flags, flags)
}

func (s *Socket) SetAck(id uint64, fn func([]interface{})) {
	s.ʘ.Lock()
	defer s.ʘ.Unlock()
	if s.Acks == nil {
		s.Acks = make(map[uint64]func([]interface{}))
	}
	s.Acks[id] = fn
}

// Ack answers the acknowledgement id with args.
func (s *Socket) Ack(id uint64, args ...interface{}) bool {
	s.ʘ.Lock()
	fn, ok := s.Acks[id]
	delete(s.Acks, id)
	s.ʘ.Unlock()

	if ok {
		fn(args)
	}
	return ok
}

func (s *Socket) Messages() [][]interface{} {
	s.ʘ.Lock()
	defer s.ʘ.Unlock()
	return append([][]interface{}{}, s.Received...)
}
