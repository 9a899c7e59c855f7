// Package transport has the two engine.io transports, HTTP long-polling and
// websocket, behind the Transporter interface.
package transport

import (
	"net/http"
	"sync"

	eiop "github.com/socketio/socket.io-sub001/engineio/protocol"
	"go.uber.org/zap"
)

type Name string

const (
	Polling   Name = "polling"
	Websocket Name = "websocket"
)

func (name Name) String() string { return string(name) }

// Upgrades lists the transports a session started on name may upgrade to.
func (name Name) Upgrades() []string {
	if name == Polling {
		return []string{Websocket.String()}
	}
	return []string{}
}

// CanUpgradeTo reports whether a session on name can move to next.
func (name Name) CanUpgradeTo(next Name) bool {
	for _, upgrade := range name.Upgrades() {
		if Name(upgrade) == next {
			return true
		}
	}
	return false
}

func ParseName(s string) (Name, bool) {
	switch Name(s) {
	case Polling, Websocket:
		return Name(s), true
	}
	return "", false
}

// Handler receives everything a transport observes. A transport never
// calls its handler while holding its own lock.
type Handler interface {
	OnPacket(eiop.Packet)
	OnDrain()
	OnError(error)
	OnClose()
}

// Transporter is one network channel carrying packets for a session.
//
// Send must only be called while Writable reports true; the transport is
// not writable again until the handler sees OnDrain. Close is silent: it
// never reports back through the handler.
type Transporter interface {
	Name() Name
	SetHandler(Handler)

	Run(http.ResponseWriter, *http.Request) error

	Send(eiop.Payload)
	Writable() bool
	Pause(onPause func())
	Close()
}

// New returns the transport registered for name.
func New(name Name, opts ...Option) (Transporter, error) {
	var t Transporter
	switch name {
	case Polling:
		t = NewPollingTransport()
	case Websocket:
		t = NewWebsocketTransport()
	default:
		return nil, ErrUnknownTransport.F(name)
	}

	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type nopHandler struct{}

func (nopHandler) OnPacket(eiop.Packet) {}
func (nopHandler) OnDrain()             {}
func (nopHandler) OnError(error)        {}
func (nopHandler) OnClose()             {}

// Transport has the state shared by both transports.
type Transport struct {
	ʘ sync.Mutex

	name       Name
	handler    Handler
	log        *zap.Logger
	maxPayload int64

	writable, paused, closed bool
}

func newTransport(name Name) *Transport {
	return &Transport{
		name:       name,
		handler:    nopHandler{},
		log:        zap.NewNop(),
		maxPayload: 1e6,
	}
}

func (t *Transport) Name() Name { return t.name }

func (t *Transport) SetHandler(h Handler) {
	if h == nil {
		h = nopHandler{}
	}
	t.ʘ.Lock()
	t.handler = h
	t.ʘ.Unlock()
}

func (t *Transport) Writable() bool {
	t.ʘ.Lock()
	defer t.ʘ.Unlock()
	return t.writable && !t.paused && !t.closed
}

func (t *Transport) InnerTransport() *Transport { return t }

func (t *Transport) current() Handler {
	t.ʘ.Lock()
	defer t.ʘ.Unlock()
	return t.handler
}

func (t *Transport) isClosed() bool {
	t.ʘ.Lock()
	defer t.ʘ.Unlock()
	return t.closed
}
