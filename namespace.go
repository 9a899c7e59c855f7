package socketio

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/socketio/socket.io-sub001/adaptor"
	cabk "github.com/socketio/socket.io-sub001/callback"
	eio "github.com/socketio/socket.io-sub001/engineio"
	"github.com/socketio/socket.io-sub001/internal/listener"
	siop "github.com/socketio/socket.io-sub001/protocol"
	"go.uber.org/zap"
)

// Middleware runs before a socket is admitted to a namespace. Calling next
// with an error rejects the socket, the error message (and the Data of a
// *ConnectError) is sent to the client.
type Middleware func(socket *Socket, next func(error))

type Namespace struct {
	name    string
	server  *Server
	parent  *ParentNamespace
	adapter adaptor.Adapter
	log     *zap.Logger

	ackID uint64

	ʘ            sync.RWMutex
	sockets      map[SocketID]*Socket
	middleware   []Middleware
	onConnection listener.Set[*Socket]
	serverEvents map[Event]*listener.Set[eventArgs]
}

func newNamespace(s *Server, name string) *Namespace {
	n := &Namespace{
		name:    name,
		server:  s,
		log:     s.log.With(zap.String("nsp", name)),
		sockets: make(map[SocketID]*Socket),

		serverEvents: make(map[Event]*listener.Set[eventArgs]),
	}
	n.adapter = s.newAdapter(adapterNamespace{n})
	return n
}

func (n *Namespace) init() {
	if err := n.adapter.Init(); err != nil {
		n.log.Warn("init adapter", zap.Error(ErrAdapterInit.F(n.name, err)))
	}
}

func (n *Namespace) Name() string             { return n.name }
func (n *Namespace) Adapter() adaptor.Adapter { return n.adapter }

// Use adds a middleware. Middlewares run in the order they were added.
func (n *Namespace) Use(fn Middleware) {
	n.ʘ.Lock()
	defer n.ʘ.Unlock()
	n.middleware = append(n.middleware, fn)
}

// OnConnection is called for every socket admitted to the namespace.
func (n *Namespace) OnConnection(fn func(*Socket)) listener.Handle { return n.onConnection.On(fn) }

// Socket returns the socket with id connected to this server.
func (n *Namespace) Socket(id SocketID) (*Socket, bool) {
	n.ʘ.RLock()
	defer n.ʘ.RUnlock()
	s, ok := n.sockets[id]
	return s, ok
}

// Sockets are the sockets connected to this server, by id.
func (n *Namespace) Sockets() []*Socket {
	n.ʘ.RLock()
	list := make([]*Socket, 0, len(n.sockets))
	for _, s := range n.sockets {
		list = append(list, s)
	}
	n.ʘ.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}

func (n *Namespace) operator() *BroadcastOperator { return newBroadcastOperator(n.adapter) }

func (n *Namespace) To(rooms ...Room) *BroadcastOperator        { return n.operator().To(rooms...) }
func (n *Namespace) In(rooms ...Room) *BroadcastOperator        { return n.operator().In(rooms...) }
func (n *Namespace) Except(rooms ...Room) *BroadcastOperator    { return n.operator().Except(rooms...) }
func (n *Namespace) Compress(compress bool) *BroadcastOperator  { return n.operator().Compress(compress) }
func (n *Namespace) Volatile() *BroadcastOperator               { return n.operator().Volatile() }
func (n *Namespace) Local() *BroadcastOperator                  { return n.operator().Local() }
func (n *Namespace) Timeout(d time.Duration) *BroadcastOperator { return n.operator().Timeout(d) }

// Emit sends an event to every socket of the namespace.
func (n *Namespace) Emit(event Event, data ...interface{}) error {
	return n.operator().Emit(event, data...)
}

// EmitWithAck emits to every socket and waits for all of them to answer.
func (n *Namespace) EmitWithAck(ctx context.Context, event Event, data ...interface{}) ([]interface{}, error) {
	return n.operator().EmitWithAck(ctx, event, data...)
}

// Send emits a "message" event.
func (n *Namespace) Send(data ...interface{}) error { return n.Emit("message", data...) }

func (n *Namespace) FetchSockets(ctx context.Context) ([]*RemoteSocket, error) {
	return n.operator().FetchSockets(ctx)
}

func (n *Namespace) SocketsJoin(rooms ...Room)                    { n.operator().SocketsJoin(rooms...) }
func (n *Namespace) SocketsLeave(rooms ...Room)                   { n.operator().SocketsLeave(rooms...) }
func (n *Namespace) DisconnectSockets(close bool)                 { n.operator().DisconnectSockets(close) }
func (n *Namespace) ServerCount(ctx context.Context) (int, error) { return n.adapter.ServerCount(ctx) }

// ServerSideEmit sends an event to this namespace on the other servers of
// the cluster, where OnServerSideEmit handlers receive it. When the last
// argument is a cabk.FuncAck it is called once with the reply of every
// server.
func (n *Namespace) ServerSideEmit(event Event, data ...interface{}) error {
	if _, ok := reservedEvents[event]; ok {
		return ErrReservedEventName.F(event)
	}

	var fn cabk.FuncAck
	if k := len(data); k > 0 {
		if ack, ok := ackFunc(data[k-1]); ok {
			fn, data = ack, data[:k-1]
		}
	}

	args := append([]interface{}{event}, data...)
	if fn == nil {
		return n.adapter.ServerSideEmit(args, nil)
	}
	return n.adapter.ServerSideEmit(args, func(err error, replies []interface{}) { fn(err, replies...) })
}

// ServerSideEmitWithAck waits for the reply of every other server.
func (n *Namespace) ServerSideEmitWithAck(ctx context.Context, event Event, data ...interface{}) ([]interface{}, error) {
	type result struct {
		replies []interface{}
		err     error
	}
	ch := make(chan result, 1)
	fn := cabk.FuncAck(func(err error, replies ...interface{}) { ch <- result{replies: replies, err: err} })

	if err := n.ServerSideEmit(event, append(data[:len(data):len(data)], fn)...); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.replies, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnServerSideEmit registers a handler for the events other servers send
// with ServerSideEmit. A cabk.AckCallback handler replies with its first
// return value, any other handler gets a trailing cabk.Ack when the sender
// waits for a reply.
func (n *Namespace) OnServerSideEmit(event Event, fn cabk.EventCallback) listener.Handle {
	n.ʘ.Lock()
	set, ok := n.serverEvents[event]
	if !ok {
		set = &listener.Set[eventArgs]{}
		n.serverEvents[event] = set
	}
	n.ʘ.Unlock()

	return set.On(func(e eventArgs) { n.callServerSide(event, fn, e) })
}

func (n *Namespace) callServerSide(event Event, fn cabk.EventCallback, e eventArgs) {
	if reply, ok := fn.(cabk.AckCallback); ok {
		v := reply.CallbackAck(e.args...)
		if e.ack != nil {
			e.ack(v...)
		}
		return
	}

	args := e.args
	if e.ack != nil {
		args = append(args[:len(args):len(args)], e.ack)
	}
	if err := fn.Callback(args...); err != nil {
		n.log.Warn("server side event handler", zap.String("event", event), zap.Error(err))
	}
}

// onServerSideEmit hands an event from another server to its handlers.
// Only the first value of the first ack call is sent back.
func (n *Namespace) onServerSideEmit(args []interface{}, reply func(interface{})) {
	event, ok := args[0].(string)
	if !ok {
		n.log.Debug("server side emit without event name", zap.Any("args", args))
		return
	}

	var ack cabk.Ack
	if reply != nil {
		var once sync.Once
		ack = func(v ...interface{}) {
			once.Do(func() {
				var r interface{}
				if len(v) > 0 {
					r = v[0]
				}
				reply(r)
			})
		}
	}

	n.ʘ.RLock()
	set, ok := n.serverEvents[event]
	n.ʘ.RUnlock()

	if !ok || set.Len() == 0 {
		n.log.Debug("no server side handler", zap.String("event", event))
		return
	}
	set.Emit(eventArgs{args: args[1:], ack: ack})
}

// add runs the middlewares for a new socket of client, and admits it when
// they all pass. fn is called with the admitted socket before the
// connection listeners.
func (n *Namespace) add(client *Client, auth map[string]interface{}, fn func(*Socket)) {
	socket := newSocket(n, client, auth)

	n.run(socket, func(err error) {
		if client.conn.ReadyState() != eio.Open {
			n.log.Debug("connection closed during middleware", zap.String("id", socket.id))
			socket.cleanup()
			return
		}

		if err != nil {
			n.log.Debug("socket rejected", zap.String("id", socket.id), zap.Error(err))
			socket.cleanup()
			client.packet(siop.Packet{Type: siop.ConnectErrorPacket, Namespace: n.name, Data: serviceError(err)}, adaptor.BroadcastFlags{})
			return
		}

		n.ʘ.Lock()
		n.sockets[socket.id] = socket
		n.ʘ.Unlock()

		fn(socket)
		socket.onConnect()
		n.onConnection.Emit(socket)
	})
}

// run calls the middlewares one after the other, fn gets the first error
// or nil once all of them passed.
func (n *Namespace) run(socket *Socket, fn func(error)) {
	n.ʘ.RLock()
	middleware := append([]Middleware(nil), n.middleware...)
	n.ʘ.RUnlock()

	var next func(i int)
	next = func(i int) {
		if i == len(middleware) {
			fn(nil)
			return
		}

		var once sync.Once
		middleware[i](socket, func(err error) {
			once.Do(func() {
				if err != nil {
					fn(err)
					return
				}
				next(i + 1)
			})
		})
	}
	next(0)
}

// nextAckID mints the ids of the acknowledgements asked for in the
// namespace.
func (n *Namespace) nextAckID() uint64 { return atomic.AddUint64(&n.ackID, 1) - 1 }

func (n *Namespace) remove(socket *Socket) {
	n.ʘ.Lock()
	_, ok := n.sockets[socket.id]
	delete(n.sockets, socket.id)
	empty := len(n.sockets) == 0
	n.ʘ.Unlock()

	if ok && empty && n.parent != nil && n.server.cleanupEmptyChildNamespaces {
		n.server.removeChild(n)
	}
}

// adapterNamespace is the view of a namespace its adapter works with.
type adapterNamespace struct{ *Namespace }

func (n adapterNamespace) Socket(id SocketID) (adaptor.Socket, bool) {
	s, ok := n.Namespace.Socket(id)
	if !ok {
		return nil, false
	}
	return s, true
}

func (n adapterNamespace) Encoder() siop.Encoder { return n.server.parser.NewEncoder() }
func (n adapterNamespace) NextAckID() uint64     { return n.nextAckID() }

func (n adapterNamespace) OnServerSideEmit(args []interface{}, reply func(interface{})) {
	if len(args) == 0 {
		return
	}
	n.onServerSideEmit(args, reply)
}

// ParentNamespace spawns a child namespace for every name its func accepts.
// Middlewares and connection listeners added to the parent are copied to
// the children created afterwards.
type ParentNamespace struct {
	server *Server
	fn     func(string, map[string]interface{}) bool

	ʘ            sync.Mutex
	middleware   []Middleware
	onConnection []func(*Socket)
	children     map[*Namespace]struct{}
}

func newParentNamespace(s *Server, fn func(string, map[string]interface{}) bool) *ParentNamespace {
	return &ParentNamespace{server: s, fn: fn, children: make(map[*Namespace]struct{})}
}

func (p *ParentNamespace) Use(fn Middleware) {
	p.ʘ.Lock()
	defer p.ʘ.Unlock()
	p.middleware = append(p.middleware, fn)
}

func (p *ParentNamespace) OnConnection(fn func(*Socket)) {
	p.ʘ.Lock()
	defer p.ʘ.Unlock()
	p.onConnection = append(p.onConnection, fn)
}

// Children are the namespaces created so far, by name.
func (p *ParentNamespace) Children() []*Namespace {
	p.ʘ.Lock()
	list := make([]*Namespace, 0, len(p.children))
	for nsp := range p.children {
		list = append(list, nsp)
	}
	p.ʘ.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	return list
}

// Emit emits to every socket of every child.
func (p *ParentNamespace) Emit(event Event, data ...interface{}) error {
	for _, nsp := range p.Children() {
		if err := nsp.Emit(event, data...); err != nil {
			return err
		}
	}
	return nil
}

func (p *ParentNamespace) createChild(name string) *Namespace {
	nsp := newNamespace(p.server, name)
	nsp.parent = p

	p.ʘ.Lock()
	defer p.ʘ.Unlock()

	nsp.middleware = append(nsp.middleware, p.middleware...)
	for _, fn := range p.onConnection {
		nsp.onConnection.On(fn)
	}
	p.children[nsp] = struct{}{}
	return nsp
}

func (p *ParentNamespace) removeChild(nsp *Namespace) {
	p.ʘ.Lock()
	defer p.ʘ.Unlock()
	delete(p.children, nsp)
}
