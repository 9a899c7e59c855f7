package socketio

import (
	"context"
	"sync"
	"time"

	"github.com/socketio/socket.io-sub001/adaptor"
	cabk "github.com/socketio/socket.io-sub001/callback"
	eios "github.com/socketio/socket.io-sub001/engineio/session"
	"github.com/socketio/socket.io-sub001/internal/listener"
	siop "github.com/socketio/socket.io-sub001/protocol"
	"go.uber.org/zap"
)

// reservedEvents cannot be emitted, the client would take them for its own.
var reservedEvents = map[Event]struct{}{
	"connect":        {},
	"connect_error":  {},
	"disconnect":     {},
	"disconnecting":  {},
	"newListener":    {},
	"removeListener": {},
}

// EventMiddleware sees the arguments of every incoming event, the event name
// first. An error stops the event and is reported to the error listeners.
type EventMiddleware func(args []interface{}, next func(error))

type eventArgs struct {
	args []interface{}
	ack  cabk.Ack
}

type pendingAck struct {
	fn    func([]interface{})
	fail  func(error)
	timer *time.Timer
}

// Socket is a client in one namespace.
type Socket struct {
	id        SocketID
	nsp       *Namespace
	client    *Client
	adapter   adaptor.Adapter
	request   *Request
	handshake adaptor.Handshake
	log       *zap.Logger

	ʘ            sync.RWMutex
	connected    bool
	disconnected bool
	data         interface{}
	acks         map[uint64]*pendingAck
	middleware   []EventMiddleware
	events       map[Event]*listener.Set[eventArgs]

	onAny           listener.Set[[]interface{}]
	onAnyOutgoing   listener.Set[[]interface{}]
	onDisconnecting listener.Set[string]
	onDisconnect    listener.Set[string]
	onErr           listener.Set[error]
}

func newSocket(nsp *Namespace, client *Client, auth map[string]interface{}) *Socket {
	id := SocketID(eios.GenerateID())
	if client.conn.Protocol() == 3 {
		// protocol v3 clients expect the engine.io id
		id = client.ID()
		if nsp.name != siop.DefaultNamespace {
			id = nsp.name + "#" + id
		}
	}

	s := &Socket{
		id:      id,
		nsp:     nsp,
		client:  client,
		adapter: nsp.adapter,
		request: sioRequest(client.conn.Request()),
		log:     nsp.log.With(zap.String("id", id)),
		acks:    make(map[uint64]*pendingAck),
		events:  make(map[Event]*listener.Set[eventArgs]),
	}
	s.handshake = s.request.handshake(auth)
	s.Join(id)
	return s
}

func (s *Socket) ID() SocketID                 { return s.id }
func (s *Socket) Namespace() *Namespace        { return s.nsp }
func (s *Socket) Client() *Client              { return s.client }
func (s *Socket) Request() *Request            { return s.request }
func (s *Socket) Handshake() adaptor.Handshake { return s.handshake }

func (s *Socket) Connected() bool {
	s.ʘ.RLock()
	defer s.ʘ.RUnlock()
	return s.connected
}

// Data is free for the application, it is shared with the other servers by
// FetchSockets.
func (s *Socket) Data() interface{} {
	s.ʘ.RLock()
	defer s.ʘ.RUnlock()
	return s.data
}

func (s *Socket) SetData(v interface{}) {
	s.ʘ.Lock()
	defer s.ʘ.Unlock()
	s.data = v
}

func (s *Socket) Details() adaptor.SocketDetails {
	return adaptor.SocketDetails{ID: s.id, Handshake: s.handshake, Rooms: s.Rooms(), Data: s.Data()}
}

func (s *Socket) Join(rooms ...Room) { s.adapter.AddAll(s.id, rooms...) }
func (s *Socket) Leave(room Room)    { s.adapter.Del(s.id, room) }
func (s *Socket) Rooms() []Room      { return s.adapter.SocketRooms(s.id) }

// On registers a handler for event. A handler that is a cabk.AckCallback
// answers the acknowledgement with its return values; any other handler
// gets a trailing cabk.Ack when the client asked for one.
//
// "disconnect" and "disconnecting" handlers are called with the reason,
// "error" handlers with the error.
func (s *Socket) On(event Event, fn cabk.EventCallback) listener.Handle {
	switch event {
	case "disconnect":
		return s.OnDisconnect(func(reason string) { s.call(event, fn, eventArgs{args: []interface{}{reason}}) })
	case "disconnecting":
		return s.OnDisconnecting(func(reason string) { s.call(event, fn, eventArgs{args: []interface{}{reason}}) })
	case "error":
		return s.OnError(func(err error) { fn.Callback(err) })
	}
	if _, ok := reservedEvents[event]; ok {
		s.log.Warn("handler of a reserved event is never called", zap.String("event", event))
		return listener.HandleFunc(func() {})
	}

	s.ʘ.Lock()
	set, ok := s.events[event]
	if !ok {
		set = &listener.Set[eventArgs]{}
		s.events[event] = set
	}
	s.ʘ.Unlock()

	return set.On(func(e eventArgs) { s.call(event, fn, e) })
}

// Once is On for a single call.
func (s *Socket) Once(event Event, fn cabk.EventCallback) listener.Handle {
	var h listener.Handle
	var once sync.Once
	h = s.On(event, cabk.FuncAny(func(v ...interface{}) error {
		var err error
		once.Do(func() {
			h.Dispose()
			err = fn.Callback(v...)
		})
		return err
	}))
	return h
}

func (s *Socket) call(event Event, fn cabk.EventCallback, e eventArgs) {
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
		s.log.Debug("event handler", zap.String("event", event), zap.Error(err))
		s.onError(err)
	}
}

func (s *Socket) OnAny(fn func([]interface{})) listener.Handle { return s.onAny.On(fn) }

// OnAnyOutgoing sees every event sent to the socket, broadcasts included.
func (s *Socket) OnAnyOutgoing(fn func([]interface{})) listener.Handle {
	return s.onAnyOutgoing.On(fn)
}

// OnDisconnecting is called before the socket leaves its rooms.
func (s *Socket) OnDisconnecting(fn func(reason string)) listener.Handle {
	return s.onDisconnecting.On(fn)
}

func (s *Socket) OnDisconnect(fn func(reason string)) listener.Handle { return s.onDisconnect.On(fn) }
func (s *Socket) OnError(fn func(error)) listener.Handle              { return s.onErr.On(fn) }

// Use adds a middleware for incoming events.
func (s *Socket) Use(fn EventMiddleware) {
	s.ʘ.Lock()
	defer s.ʘ.Unlock()
	s.middleware = append(s.middleware, fn)
}

// Emit sends an event to the socket. When the last argument is a
// cabk.FuncAck it is called with the acknowledgement of the client.
func (s *Socket) Emit(event Event, data ...interface{}) error {
	_, err := s.emit(event, data, adaptor.BroadcastFlags{})
	return err
}

// EmitWithAck emits and waits for the acknowledgement.
func (s *Socket) EmitWithAck(ctx context.Context, event Event, data ...interface{}) ([]interface{}, error) {
	return Emitter{s: s}.EmitWithAck(ctx, event, data...)
}

// Send emits a "message" event.
func (s *Socket) Send(data ...interface{}) error { return s.Emit("message", data...) }

func (s *Socket) Timeout(d time.Duration) Emitter { return Emitter{s: s}.Timeout(d) }
func (s *Socket) Volatile() Emitter               { return Emitter{s: s}.Volatile() }
func (s *Socket) Compress(compress bool) Emitter  { return Emitter{s: s}.Compress(compress) }

// To broadcasts to rooms, leaving this socket out.
func (s *Socket) To(rooms ...Room) *BroadcastOperator { return s.Broadcast().To(rooms...) }
func (s *Socket) In(rooms ...Room) *BroadcastOperator { return s.Broadcast().In(rooms...) }

func (s *Socket) Except(rooms ...Room) *BroadcastOperator { return s.Broadcast().Except(rooms...) }

// Broadcast sends to every socket of the namespace but this one.
func (s *Socket) Broadcast() *BroadcastOperator {
	return newBroadcastOperator(s.adapter).Except(s.id)
}

// Disconnect leaves the namespace. With close the whole connection is
// closed, disconnecting the socket from every namespace.
func (s *Socket) Disconnect(close bool) {
	if !s.Connected() {
		return
	}
	if close {
		s.client.disconnect()
		return
	}
	s.packet(siop.Packet{Type: siop.DisconnectPacket}, adaptor.BroadcastFlags{})
	s.onClose(reasonServerNamespaceDisconnect)
}

// Deliver writes a broadcast packet encoded by the adapter.
func (s *Socket) Deliver(packet siop.Packet, encoded []interface{}, flags adaptor.BroadcastFlags) {
	if args, ok := packet.Data.([]interface{}); ok && packet.Type == siop.EventPacket {
		s.notifyOutgoing(args)
	}
	s.client.writeToEngine(encoded, flags)
}

// SetAck registers the acknowledgement of a broadcast.
func (s *Socket) SetAck(id uint64, fn func([]interface{})) {
	s.ʘ.Lock()
	defer s.ʘ.Unlock()
	s.acks[id] = &pendingAck{fn: fn}
}

func (s *Socket) emit(event Event, data []interface{}, flags adaptor.BroadcastFlags) (uint64, error) {
	if _, ok := reservedEvents[event]; ok {
		return 0, ErrReservedEventName.F(event)
	}

	var fn cabk.FuncAck
	if n := len(data); n > 0 {
		if ack, ok := ackFunc(data[n-1]); ok {
			fn, data = ack, data[:n-1]
		}
	}

	args := append([]interface{}{event}, data...)
	packet := siop.Packet{Type: siop.EventPacket, Data: args}

	var id uint64
	if fn != nil {
		id = s.nsp.nextAckID()
		if !s.registerAck(id, fn, flags.Timeout) {
			s.log.Debug("emit after disconnect", zap.String("event", event))
			fn(ErrSocketDisconnected)
			return id, nil
		}
		packet.ID = siop.AckID(id)
	} else if s.isDisconnected() {
		s.log.Debug("emit after disconnect", zap.String("event", event))
		return 0, nil
	}

	s.notifyOutgoing(args)
	s.packet(packet, flags)
	return id, nil
}

// registerAck is false when the socket already left its namespace, the
// acknowledgement would never come.
func (s *Socket) registerAck(id uint64, fn cabk.FuncAck, timeout time.Duration) bool {
	ack := &pendingAck{
		fn:   func(args []interface{}) { fn(nil, args...) },
		fail: func(err error) { fn(err) },
	}

	s.ʘ.Lock()
	defer s.ʘ.Unlock()

	if s.disconnected {
		return false
	}
	s.acks[id] = ack
	if timeout > 0 {
		ack.timer = time.AfterFunc(timeout, func() {
			if a := s.takeAck(id); a != nil {
				s.log.Debug("ack timed out", zap.Uint64("ackId", id))
				a.fail(ErrAckTimeout)
			}
		})
	}
	return true
}

func (s *Socket) isDisconnected() bool {
	s.ʘ.RLock()
	defer s.ʘ.RUnlock()
	return s.disconnected
}

// takeAck removes the pending ack with id, whoever takes it answers it.
func (s *Socket) takeAck(id uint64) *pendingAck {
	s.ʘ.Lock()
	defer s.ʘ.Unlock()

	a, ok := s.acks[id]
	if !ok {
		return nil
	}
	delete(s.acks, id)
	if a.timer != nil {
		a.timer.Stop()
	}
	return a
}

func (s *Socket) packet(packet siop.Packet, flags adaptor.BroadcastFlags) {
	packet.Namespace = s.nsp.name
	s.client.packet(packet, flags)
}

func (s *Socket) notifyOutgoing(args []interface{}) {
	if s.onAnyOutgoing.Len() > 0 {
		s.onAnyOutgoing.Emit(args)
	}
}

func (s *Socket) onConnect() {
	s.ʘ.Lock()
	s.connected = true
	s.ʘ.Unlock()

	var data interface{}
	if s.client.conn.Protocol() != 3 {
		data = map[string]interface{}{"sid": s.id}
	}
	s.packet(siop.Packet{Type: siop.ConnectPacket, Data: data}, adaptor.BroadcastFlags{})
}

func (s *Socket) onPacket(packet siop.Packet) {
	switch packet.Type {
	case siop.EventPacket, siop.BinaryEventPacket:
		s.onEvent(packet)
	case siop.AckPacket, siop.BinaryAckPacket:
		s.onAck(packet)
	case siop.DisconnectPacket:
		s.onClose(reasonClientNamespaceDisconnect)
	default:
		s.log.Debug("unexpected packet", zap.Stringer("type", packet.Type))
	}
}

func (s *Socket) onEvent(packet siop.Packet) {
	args, ok := packet.Data.([]interface{})
	if !ok || len(args) == 0 {
		s.onError(ErrUnexpectedData.F(packet.Data))
		return
	}
	if _, ok := args[0].(string); !ok {
		s.onError(ErrUnknownEventName)
		return
	}

	var ack cabk.Ack
	if packet.ID != nil {
		ack = s.ackFn(*packet.ID)
	}

	if s.onAny.Len() > 0 {
		s.onAny.Emit(args)
	}
	s.dispatch(args, ack)
}

// ackFn answers the event with id, only the first call is sent.
func (s *Socket) ackFn(id uint64) cabk.Ack {
	var once sync.Once
	return func(v ...interface{}) {
		once.Do(func() {
			if v == nil {
				v = []interface{}{}
			}
			s.packet(siop.Packet{Type: siop.AckPacket, ID: siop.AckID(id), Data: v}, adaptor.BroadcastFlags{})
		})
	}
}

func (s *Socket) dispatch(args []interface{}, ack cabk.Ack) {
	s.ʘ.RLock()
	middleware := append([]EventMiddleware(nil), s.middleware...)
	s.ʘ.RUnlock()

	var next func(i int)
	next = func(i int) {
		if i < len(middleware) {
			var once sync.Once
			middleware[i](args, func(err error) {
				once.Do(func() {
					if err != nil {
						s.onError(err)
						return
					}
					next(i + 1)
				})
			})
			return
		}

		if !s.Connected() {
			return
		}

		event := args[0].(string)
		s.ʘ.RLock()
		set, ok := s.events[event]
		s.ʘ.RUnlock()

		if !ok || set.Len() == 0 {
			s.log.Debug("no handler", zap.String("event", event))
			return
		}
		set.Emit(eventArgs{args: args[1:], ack: ack})
	}
	next(0)
}

func (s *Socket) onAck(packet siop.Packet) {
	if packet.ID == nil {
		return
	}
	a := s.takeAck(*packet.ID)
	if a == nil {
		s.log.Debug("bad ack", zap.Uint64("ackId", *packet.ID))
		return
	}
	args, _ := packet.Data.([]interface{})
	a.fn(args)
}

func (s *Socket) onError(err error) {
	if s.onErr.Len() == 0 {
		s.log.Warn("socket error without handler", zap.Error(err))
		return
	}
	s.onErr.Emit(err)
}

// onClose runs once: the socket leaves its rooms and the namespace, the
// pending acks fail and the disconnect listeners get reason.
func (s *Socket) onClose(reason string) {
	s.ʘ.Lock()
	if !s.connected {
		s.ʘ.Unlock()
		return
	}
	s.connected = false
	s.disconnected = true
	s.ʘ.Unlock()

	s.log.Debug("disconnecting", zap.String("reason", reason))
	s.onDisconnecting.Emit(reason)

	s.cleanup()
	s.client.remove(s)

	s.ʘ.Lock()
	acks := s.acks
	s.acks = make(map[uint64]*pendingAck)
	s.ʘ.Unlock()

	for _, a := range acks {
		if a.timer != nil {
			a.timer.Stop()
		}
		if a.fail != nil {
			a.fail(ErrSocketDisconnected)
		}
	}

	s.onDisconnect.Emit(reason)
}

func (s *Socket) cleanup() {
	s.adapter.DelAll(s.id)
	s.nsp.remove(s)
}

// ackFunc reports whether v is an acknowledgement callback.
func ackFunc(v interface{}) (cabk.FuncAck, bool) {
	switch fn := v.(type) {
	case cabk.FuncAck:
		return fn, fn != nil
	case func(error, ...interface{}):
		return fn, fn != nil
	}
	return nil, false
}

// Emitter emits to one socket with flags.
type Emitter struct {
	s     *Socket
	flags adaptor.BroadcastFlags
}

// Timeout bounds the wait for the acknowledgement, the callback then gets
// ErrAckTimeout.
func (e Emitter) Timeout(d time.Duration) Emitter { e.flags.Timeout = d; return e }

// Volatile drops the event when the connection cannot take it right away.
func (e Emitter) Volatile() Emitter { e.flags.Volatile = true; return e }

// Compress(false) asks the transport not to compress the event.
func (e Emitter) Compress(compress bool) Emitter { e.flags.Compress = &compress; return e }

func (e Emitter) Emit(event Event, data ...interface{}) error {
	_, err := e.s.emit(event, data, e.flags)
	return err
}

func (e Emitter) EmitWithAck(ctx context.Context, event Event, data ...interface{}) ([]interface{}, error) {
	type result struct {
		args []interface{}
		err  error
	}
	ch := make(chan result, 1)
	fn := cabk.FuncAck(func(err error, args ...interface{}) { ch <- result{args: args, err: err} })

	id, err := e.s.emit(event, append(data[:len(data):len(data)], fn), e.flags)
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.args, r.err
	case <-ctx.Done():
		e.s.takeAck(id)
		return nil, ctx.Err()
	}
}
