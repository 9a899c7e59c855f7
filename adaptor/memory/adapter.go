// Package memory is the in-process room adapter. It keeps the room to socket
// and socket to room maps of one namespace and broadcasts to the sockets
// connected to this server.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/socketio/socket.io-sub001/adaptor"
	"github.com/socketio/socket.io-sub001/internal/listener"
	siop "github.com/socketio/socket.io-sub001/protocol"
	"go.uber.org/zap"
)

type (
	Room     = adaptor.Room
	SocketID = adaptor.SocketID
)

// Membership is the payload of the join and leave room events.
type Membership struct {
	Room Room
	ID   SocketID
}

type set[T comparable] map[T]struct{}

// Adapter holds the membership of one namespace. The two maps are always
// inverses of each other and a room without members is removed.
type Adapter struct {
	nsp adaptor.Namespace
	log *zap.Logger

	ṙ     sync.RWMutex
	rooms map[Room]set[SocketID]
	sids  map[SocketID]set[Room]

	onCreateRoom listener.Set[Room]
	onDeleteRoom listener.Set[Room]
	onJoinRoom   listener.Set[Membership]
	onLeaveRoom  listener.Set[Membership]
}

type Option func(*Adapter)

func WithLogger(log *zap.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

func NewAdapter(nsp adaptor.Namespace, opts ...Option) *Adapter {
	a := &Adapter{
		nsp:   nsp,
		log:   zap.NewNop(),
		rooms: make(map[Room]set[SocketID]),
		sids:  make(map[SocketID]set[Room]),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(zap.String("nsp", nsp.Name()))
	return a
}

// New is the adaptor.New for in-process adapters.
func New(opts ...Option) adaptor.New {
	return func(nsp adaptor.Namespace) adaptor.Adapter { return NewAdapter(nsp, opts...) }
}

func (a *Adapter) Init() error  { return nil }
func (a *Adapter) Close() error { return nil }

func (a *Adapter) ServerCount(context.Context) (int, error) { return 1, nil }

func (a *Adapter) OnCreateRoom(fn func(Room)) listener.Handle { return a.onCreateRoom.On(fn) }
func (a *Adapter) OnDeleteRoom(fn func(Room)) listener.Handle { return a.onDeleteRoom.On(fn) }
func (a *Adapter) OnJoinRoom(fn func(Membership)) listener.Handle {
	return a.onJoinRoom.On(fn)
}
func (a *Adapter) OnLeaveRoom(fn func(Membership)) listener.Handle {
	return a.onLeaveRoom.On(fn)
}

// events collects the room events of one operation so they can be emitted
// once the lock is released.
type events []func()

func (evs events) emit() {
	for _, fn := range evs {
		fn()
	}
}

func (a *Adapter) AddAll(id SocketID, rooms ...Room) {
	var evs events

	a.ṙ.Lock()
	if _, ok := a.sids[id]; !ok {
		a.sids[id] = set[Room]{}
	}
	for _, room := range rooms {
		room := room
		a.sids[id][room] = struct{}{}

		if _, ok := a.rooms[room]; !ok {
			a.rooms[room] = set[SocketID]{}
			evs = append(evs, func() { a.onCreateRoom.Emit(room) })
		}
		if _, ok := a.rooms[room][id]; !ok {
			a.rooms[room][id] = struct{}{}
			m := Membership{Room: room, ID: id}
			evs = append(evs, func() { a.onJoinRoom.Emit(m) })
		}
	}
	a.ṙ.Unlock()

	evs.emit()
}

func (a *Adapter) Del(id SocketID, room Room) {
	var evs events

	a.ṙ.Lock()
	if rooms, ok := a.sids[id]; ok {
		delete(rooms, room)
	}
	evs = a.delLocked(evs, room, id)
	a.ṙ.Unlock()

	evs.emit()
}

func (a *Adapter) delLocked(evs events, room Room, id SocketID) events {
	ids, ok := a.rooms[room]
	if !ok {
		return evs
	}
	if _, ok := ids[id]; ok {
		delete(ids, id)
		m := Membership{Room: room, ID: id}
		evs = append(evs, func() { a.onLeaveRoom.Emit(m) })
	}
	if len(ids) == 0 {
		delete(a.rooms, room)
		evs = append(evs, func() { a.onDeleteRoom.Emit(room) })
	}
	return evs
}

// DelAll removes id from every room, its own id room included.
func (a *Adapter) DelAll(id SocketID) {
	var evs events

	a.ṙ.Lock()
	for room := range a.sids[id] {
		evs = a.delLocked(evs, room, id)
	}
	delete(a.sids, id)
	a.ṙ.Unlock()

	evs.emit()
}

func (a *Adapter) Broadcast(packet siop.Packet, opts adaptor.BroadcastOptions) {
	packet.Namespace = a.nsp.Name()
	encoded, err := a.nsp.Encoder().Encode(packet)
	if err != nil {
		a.log.Warn("broadcast encode", zap.Error(err))
		return
	}

	a.apply(opts, func(socket adaptor.Socket) {
		socket.Deliver(packet, encoded, opts.Flags)
	})
}

func (a *Adapter) BroadcastWithAck(packet siop.Packet, opts adaptor.BroadcastOptions, clientCount func(int), ack func([]interface{})) {
	packet.Namespace = a.nsp.Name()
	packet.ID = siop.AckID(a.nsp.NextAckID())
	encoded, err := a.nsp.Encoder().Encode(packet)
	if err != nil {
		a.log.Warn("broadcast encode", zap.Error(err))
		clientCount(0)
		return
	}

	var count int
	a.apply(opts, func(socket adaptor.Socket) {
		count++
		socket.SetAck(*packet.ID, ack)
		socket.Deliver(packet, encoded, opts.Flags)
	})
	clientCount(count)
}

func (a *Adapter) Rooms() []Room {
	a.ṙ.RLock()
	defer a.ṙ.RUnlock()

	rooms := make([]Room, 0, len(a.rooms))
	for room := range a.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Sockets returns the ids in any of rooms, or every id when rooms is empty.
func (a *Adapter) Sockets(rooms ...Room) []SocketID {
	ids := a.targets(adaptor.BroadcastOptions{Rooms: rooms})
	sort.Strings(ids)
	return ids
}

func (a *Adapter) SocketRooms(id SocketID) []Room {
	a.ṙ.RLock()
	defer a.ṙ.RUnlock()

	rooms, ok := a.sids[id]
	if !ok {
		return nil
	}
	list := make([]Room, 0, len(rooms))
	for room := range rooms {
		list = append(list, room)
	}
	sort.Strings(list)
	return list
}

func (a *Adapter) FetchSockets(_ context.Context, opts adaptor.BroadcastOptions) ([]adaptor.SocketDetails, error) {
	var details []adaptor.SocketDetails
	a.apply(opts, func(socket adaptor.Socket) {
		details = append(details, socket.Details())
	})
	return details, nil
}

func (a *Adapter) AddSockets(opts adaptor.BroadcastOptions, rooms ...Room) {
	a.apply(opts, func(socket adaptor.Socket) { socket.Join(rooms...) })
}

func (a *Adapter) DelSockets(opts adaptor.BroadcastOptions, rooms ...Room) {
	a.apply(opts, func(socket adaptor.Socket) {
		for _, room := range rooms {
			socket.Leave(room)
		}
	})
}

func (a *Adapter) DisconnectSockets(opts adaptor.BroadcastOptions, close bool) {
	a.apply(opts, func(socket adaptor.Socket) { socket.Disconnect(close) })
}

// ServerSideEmit has no other server to reach, ack gets no replies.
func (a *Adapter) ServerSideEmit(args []interface{}, ack func(error, []interface{})) error {
	a.log.Debug("server side emit without other servers", zap.Int("args", len(args)))
	if ack != nil {
		ack(nil, nil)
	}
	return nil
}

// apply calls fn for every connected target of opts. The targets come from
// one snapshot of the membership, fn runs without the lock held.
func (a *Adapter) apply(opts adaptor.BroadcastOptions, fn func(adaptor.Socket)) {
	for _, id := range a.targets(opts) {
		if socket, ok := a.nsp.Socket(id); ok {
			fn(socket)
		}
	}
}

func (a *Adapter) targets(opts adaptor.BroadcastOptions) []SocketID {
	a.ṙ.RLock()
	defer a.ṙ.RUnlock()

	except := set[SocketID]{}
	for _, room := range opts.Except {
		for id := range a.rooms[room] {
			except[id] = struct{}{}
		}
	}

	var ids []SocketID
	if len(opts.Rooms) > 0 {
		seen := set[SocketID]{}
		for _, room := range opts.Rooms {
			for id := range a.rooms[room] {
				if _, ok := seen[id]; ok {
					continue
				}
				if _, ok := except[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
		return ids
	}

	for id := range a.sids {
		if _, ok := except[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}
