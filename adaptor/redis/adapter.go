// Package redis is a room adapter that shares broadcasts and socket
// operations between servers through Redis pub/sub. Membership is still
// kept per server by the in-process adapter it wraps.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/socketio/socket.io-sub001/adaptor"
	"github.com/socketio/socket.io-sub001/adaptor/memory"
	siop "github.com/socketio/socket.io-sub001/protocol"
	"go.uber.org/zap"
)

const (
	defaultKey             = "socket.io"
	defaultRequestsTimeout = 5 * time.Second
)

type Adapter struct {
	*memory.Adapter

	nsp    adaptor.Namespace
	broker Broker
	uid    string
	log    *zap.Logger

	key             string
	requestsTimeout time.Duration

	channel         string
	requestChannel  string
	responseChannel string
	unsubscribe     func() error

	ʘ           sync.Mutex
	requests     map[string]*request
	ackRequests  map[string]*ackRequest
	emitRequests map[string]*emitRequest
}

// request is a fetch sockets call waiting for the other servers.
type request struct {
	expected int
	current  int
	sockets  []adaptor.SocketDetails
	done     chan struct{}
}

// emitRequest is a server side emit waiting for the reply of every other
// server.
type emitRequest struct {
	expected int
	replies  []interface{}
	ack      func(error, []interface{})
	timer    *time.Timer
}

type ackRequest struct {
	clientCount func(int)
	ack         func([]interface{})
}

type Option func(*Adapter)

// WithKey sets the prefix of the channel names. The default is "socket.io".
func WithKey(key string) Option {
	return func(a *Adapter) { a.key = key }
}

// WithRequestsTimeout bounds how long a request waits for the other servers
// when the broadcast flags carry no timeout.
func WithRequestsTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.requestsTimeout = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// New is the adaptor.New for namespaces sharing rdb.
func New(rdb redis.UniversalClient, opts ...Option) adaptor.New {
	broker := NewBroker(rdb)
	return func(nsp adaptor.Namespace) adaptor.Adapter { return NewAdapter(nsp, broker, opts...) }
}

func NewAdapter(nsp adaptor.Namespace, broker Broker, opts ...Option) *Adapter {
	a := &Adapter{
		nsp:             nsp,
		broker:          broker,
		uid:             uuid.NewString(),
		log:             zap.NewNop(),
		key:             defaultKey,
		requestsTimeout: defaultRequestsTimeout,
		requests:        make(map[string]*request),
		ackRequests:     make(map[string]*ackRequest),
		emitRequests:    make(map[string]*emitRequest),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.log = a.log.With(zap.String("nsp", nsp.Name()), zap.String("uid", a.uid))
	a.Adapter = memory.NewAdapter(nsp, memory.WithLogger(a.log))

	a.channel = a.key + "#" + nsp.Name() + "#"
	a.requestChannel = a.key + "-request#" + nsp.Name() + "#"
	a.responseChannel = a.responseChannelOf(a.uid)
	return a
}

func (a *Adapter) responseChannelOf(uid string) string {
	return a.key + "-response#" + a.nsp.Name() + "#" + uid + "#"
}

// Init subscribes to the broadcast, request and response channels.
func (a *Adapter) Init() error {
	unsubscribe, err := a.broker.Subscribe(context.Background(), a.onMessage, a.channel, a.requestChannel, a.responseChannel)
	if err != nil {
		return err
	}
	a.unsubscribe = unsubscribe
	return nil
}

func (a *Adapter) Close() error {
	if a.unsubscribe == nil {
		return nil
	}
	return a.unsubscribe()
}

// ServerCount counts the servers subscribed to the request channel of the
// namespace.
func (a *Adapter) ServerCount(ctx context.Context) (int, error) {
	n, err := a.broker.NumSub(ctx, a.requestChannel)
	return int(n), err
}

func (a *Adapter) Broadcast(packet siop.Packet, opts adaptor.BroadcastOptions) {
	if !opts.Flags.Local {
		packet.Namespace = a.nsp.Name()
		if err := a.publish(a.channel, message{Type: broadcastMessage, Packet: toWire(packet), Opts: &opts}); err != nil {
			a.log.Warn("broadcast", zap.Error(err))
			return
		}
	}
	a.Adapter.Broadcast(packet, opts)
}

func (a *Adapter) BroadcastWithAck(packet siop.Packet, opts adaptor.BroadcastOptions, clientCount func(int), ack func([]interface{})) {
	if !opts.Flags.Local {
		requestID := uuid.NewString()

		a.ʘ.Lock()
		a.ackRequests[requestID] = &ackRequest{clientCount: clientCount, ack: ack}
		a.ʘ.Unlock()

		// the acks of remote clients are not counted here, the entry is
		// dropped once the caller stopped waiting
		time.AfterFunc(a.timeout(opts), func() {
			a.ʘ.Lock()
			delete(a.ackRequests, requestID)
			a.ʘ.Unlock()
		})

		packet.Namespace = a.nsp.Name()
		m := message{Type: broadcastMessage, RequestID: requestID, Packet: toWire(packet), Opts: &opts}
		if err := a.publish(a.channel, m); err != nil {
			a.log.Warn("broadcast with ack", zap.Error(err))
		}
	}
	a.Adapter.BroadcastWithAck(packet, opts, clientCount, ack)
}

func (a *Adapter) AddSockets(opts adaptor.BroadcastOptions, rooms ...adaptor.Room) {
	a.Adapter.AddSockets(opts, rooms...)
	if opts.Flags.Local {
		return
	}
	if err := a.publish(a.requestChannel, message{Type: socketsJoinMessage, Opts: &opts, Rooms: rooms}); err != nil {
		a.log.Warn("sockets join", zap.Error(err))
	}
}

func (a *Adapter) DelSockets(opts adaptor.BroadcastOptions, rooms ...adaptor.Room) {
	a.Adapter.DelSockets(opts, rooms...)
	if opts.Flags.Local {
		return
	}
	if err := a.publish(a.requestChannel, message{Type: socketsLeaveMessage, Opts: &opts, Rooms: rooms}); err != nil {
		a.log.Warn("sockets leave", zap.Error(err))
	}
}

func (a *Adapter) DisconnectSockets(opts adaptor.BroadcastOptions, close bool) {
	a.Adapter.DisconnectSockets(opts, close)
	if opts.Flags.Local {
		return
	}
	if err := a.publish(a.requestChannel, message{Type: disconnectSocketsMessage, Opts: &opts, Close: close}); err != nil {
		a.log.Warn("disconnect sockets", zap.Error(err))
	}
}

// FetchSockets returns the local matches plus those of every other server.
// It fails when a server does not answer before the request timeout.
func (a *Adapter) FetchSockets(ctx context.Context, opts adaptor.BroadcastOptions) ([]adaptor.SocketDetails, error) {
	local, _ := a.Adapter.FetchSockets(ctx, opts)
	if opts.Flags.Local {
		return local, nil
	}

	count, err := a.ServerCount(ctx)
	if err != nil {
		return nil, err
	}
	expected := count - 1
	if expected <= 0 {
		return local, nil
	}

	requestID := uuid.NewString()
	req := &request{expected: expected, sockets: local, done: make(chan struct{})}
	a.ʘ.Lock()
	a.requests[requestID] = req
	a.ʘ.Unlock()

	defer func() {
		a.ʘ.Lock()
		delete(a.requests, requestID)
		a.ʘ.Unlock()
	}()

	if err := a.publish(a.requestChannel, message{Type: fetchSocketsMessage, RequestID: requestID, Opts: &opts}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(a.timeout(opts))
	defer timer.Stop()

	select {
	case <-req.done:
		a.ʘ.Lock()
		defer a.ʘ.Unlock()
		return req.sockets, nil
	case <-timer.C:
		a.ʘ.Lock()
		defer a.ʘ.Unlock()
		return nil, ErrRequestTimeout.F(req.current, req.expected)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ServerSideEmit publishes args on the request channel. With an ack it waits
// for the reply of every other server subscribed at the time of the call.
func (a *Adapter) ServerSideEmit(args []interface{}, ack func(error, []interface{})) error {
	m := message{Type: serverSideEmitMessage, Args: args}
	if ack == nil {
		return a.publish(a.requestChannel, m)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.requestsTimeout)
	count, err := a.ServerCount(ctx)
	cancel()
	if err != nil {
		return err
	}
	expected := count - 1
	if expected <= 0 {
		ack(nil, nil)
		return nil
	}

	requestID := uuid.NewString()
	req := &emitRequest{expected: expected, ack: ack}

	a.ʘ.Lock()
	a.emitRequests[requestID] = req
	req.timer = time.AfterFunc(a.requestsTimeout, func() {
		a.ʘ.Lock()
		_, ok := a.emitRequests[requestID]
		delete(a.emitRequests, requestID)
		replies := req.replies
		a.ʘ.Unlock()

		if ok {
			ack(ErrRequestTimeout.F(len(replies), expected), replies)
		}
	})
	a.ʘ.Unlock()

	m.RequestID = requestID
	if err := a.publish(a.requestChannel, m); err != nil {
		a.ʘ.Lock()
		delete(a.emitRequests, requestID)
		a.ʘ.Unlock()
		req.timer.Stop()
		return err
	}
	return nil
}

func (a *Adapter) timeout(opts adaptor.BroadcastOptions) time.Duration {
	if opts.Flags.Timeout > 0 {
		return opts.Flags.Timeout
	}
	return a.requestsTimeout
}

func (a *Adapter) publish(channel string, m message) error {
	m.UID = a.uid
	b, err := encodeMessage(m)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.requestsTimeout)
	defer cancel()
	return a.broker.Publish(ctx, channel, b)
}

func (a *Adapter) respond(uid string, m message) {
	if err := a.publish(a.responseChannelOf(uid), m); err != nil {
		a.log.Warn("response", zap.Stringer("type", m.Type), zap.Error(err))
	}
}

func (a *Adapter) onMessage(channel string, b []byte) {
	m, err := decodeMessage(b)
	if err != nil {
		a.log.Debug("invalid message", zap.String("channel", channel), zap.Error(err))
		return
	}
	if m.UID == a.uid {
		return
	}
	a.log.Debug("message", zap.String("channel", channel), zap.Stringer("type", m.Type), zap.String("from", m.UID))

	if channel == a.responseChannel {
		a.onResponse(m)
		return
	}

	var opts adaptor.BroadcastOptions
	if m.Opts != nil {
		opts = *m.Opts
	}

	switch m.Type {
	case broadcastMessage:
		if m.Packet == nil {
			return
		}
		packet := m.Packet.packet()
		if m.RequestID == "" {
			a.Adapter.Broadcast(packet, opts)
			return
		}
		a.Adapter.BroadcastWithAck(packet, opts,
			func(n int) {
				a.respond(m.UID, message{Type: broadcastClientCountResponse, RequestID: m.RequestID, ClientCount: n})
			},
			func(args []interface{}) {
				a.respond(m.UID, message{Type: broadcastAckResponse, RequestID: m.RequestID, Ack: args})
			},
		)

	case socketsJoinMessage:
		a.Adapter.AddSockets(opts, m.Rooms...)

	case socketsLeaveMessage:
		a.Adapter.DelSockets(opts, m.Rooms...)

	case disconnectSocketsMessage:
		a.Adapter.DisconnectSockets(opts, m.Close)

	case fetchSocketsMessage:
		sockets, _ := a.Adapter.FetchSockets(context.Background(), opts)
		a.respond(m.UID, message{Type: fetchSocketsResponse, RequestID: m.RequestID, Sockets: sockets})

	case serverSideEmitMessage:
		if len(m.Args) == 0 {
			return
		}
		if m.RequestID == "" {
			a.nsp.OnServerSideEmit(m.Args, nil)
			return
		}
		var once sync.Once
		a.nsp.OnServerSideEmit(m.Args, func(reply interface{}) {
			once.Do(func() {
				a.respond(m.UID, message{Type: serverSideEmitResponse, RequestID: m.RequestID, Reply: reply})
			})
		})
	}
}

func (a *Adapter) onResponse(m message) {
	a.ʘ.Lock()
	switch m.Type {
	case broadcastClientCountResponse:
		req, ok := a.ackRequests[m.RequestID]
		a.ʘ.Unlock()
		if ok {
			req.clientCount(m.ClientCount)
		}

	case broadcastAckResponse:
		req, ok := a.ackRequests[m.RequestID]
		a.ʘ.Unlock()
		if ok {
			req.ack(m.Ack)
		}

	case fetchSocketsResponse:
		defer a.ʘ.Unlock()
		req, ok := a.requests[m.RequestID]
		if !ok || req.current >= req.expected {
			return
		}
		req.current++
		req.sockets = append(req.sockets, m.Sockets...)
		if req.current == req.expected {
			close(req.done)
		}

	case serverSideEmitResponse:
		req, ok := a.emitRequests[m.RequestID]
		if !ok {
			a.ʘ.Unlock()
			return
		}
		req.replies = append(req.replies, m.Reply)
		done := len(req.replies) == req.expected
		if done {
			delete(a.emitRequests, m.RequestID)
			req.timer.Stop()
		}
		a.ʘ.Unlock()
		if done {
			req.ack(nil, req.replies)
		}

	default:
		a.ʘ.Unlock()
	}
}
