package engineio

import (
	"errors"
	"net/http"
	"sync"
	"time"

	eiop "github.com/socketio/socket.io-sub001/engineio/protocol"
	eiot "github.com/socketio/socket.io-sub001/engineio/transport"
	"github.com/socketio/socket.io-sub001/internal/listener"
	"go.uber.org/zap"
)

type ReadyState int

const (
	Opening ReadyState = iota
	Open
	Closing
	Closed
)

func (rs ReadyState) String() string {
	switch rs {
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Close reasons.
const (
	ReasonPingTimeout    = "ping timeout"
	ReasonTransportError = "transport error"
	ReasonTransportClose = "transport close"
	ReasonForcedClose    = "forced close"
	ReasonParseError     = "parse error"
)

type CloseEvent struct {
	Reason string
	Err    error
}

const probeNoopInterval = 100 * time.Millisecond

// Connection is one engine.io session. It owns exactly one active transport
// at a time, runs the heartbeat and handles upgrade probes.
type Connection struct {
	ʘ sync.Mutex

	id       SessionID
	protocol int
	request  *http.Request
	cfg      config
	log      *zap.Logger

	readyState  ReadyState
	transport   eiot.Transporter
	inflight    bool
	upgrading   bool
	upgraded    bool
	probes      map[eiot.Transporter]*probe
	writeBuffer eiop.Payload

	pingTimer        *time.Timer
	pingTimeoutTimer *time.Timer
	closeTimer       *time.Timer

	onMessage   listener.Set[interface{}]
	onClose     listener.Set[CloseEvent]
	onUpgrading listener.Set[eiot.Name]
	onUpgrade   listener.Set[eiot.Name]
	onDrain     listener.Set[struct{}]
}

type config struct {
	pingInterval   time.Duration
	pingTimeout    time.Duration
	upgradeTimeout time.Duration
	maxPayload     int64
	upgrades       []string
}

func newConnection(id SessionID, protocol int, r *http.Request, t eiot.Transporter, cfg config, log *zap.Logger) *Connection {
	c := &Connection{
		id:         id,
		protocol:   protocol,
		request:    r,
		cfg:        cfg,
		log:        log.With(zap.String("sid", id.String())),
		readyState: Opening,
		transport:  t,
		probes:     make(map[eiot.Transporter]*probe),
	}
	t.SetHandler(transportHandler{c: c, t: t})

	c.ʘ.Lock()
	c.readyState = Open
	c.sendPacketLocked(eiop.Packet{T: eiop.OpenPacket, D: &eiop.Handshake{
		SID:          id.String(),
		Upgrades:     cfg.upgrades,
		PingInterval: eiop.Duration(cfg.pingInterval),
		PingTimeout:  eiop.Duration(cfg.pingTimeout),
		MaxPayload:   int(cfg.maxPayload),
	}})
	c.resetPingTimeoutLocked()
	if protocol >= 4 {
		c.schedulePingLocked()
	}
	c.ʘ.Unlock()

	c.log.Debug("session opened", zap.Stringer("transport", t.Name()), zap.Int("protocol", protocol))
	return c
}

func (c *Connection) ID() SessionID          { return c.id }
func (c *Connection) Protocol() int          { return c.protocol }
func (c *Connection) Request() *http.Request { return c.request }

func (c *Connection) ReadyState() ReadyState {
	c.ʘ.Lock()
	defer c.ʘ.Unlock()
	return c.readyState
}

func (c *Connection) TransportName() eiot.Name {
	c.ʘ.Lock()
	defer c.ʘ.Unlock()
	return c.transport.Name()
}

func (c *Connection) currentTransport() eiot.Transporter {
	c.ʘ.Lock()
	defer c.ʘ.Unlock()
	return c.transport
}

func (c *Connection) Upgraded() bool {
	c.ʘ.Lock()
	defer c.ʘ.Unlock()
	return c.upgraded
}

// Writable reports whether a packet sent now would be written to the
// transport straight away instead of waiting in the buffer.
func (c *Connection) Writable() bool {
	c.ʘ.Lock()
	defer c.ʘ.Unlock()
	return c.readyState == Open && !c.upgrading && c.transport.Writable()
}

func (c *Connection) OnMessage(fn func(interface{})) listener.Handle { return c.onMessage.On(fn) }
func (c *Connection) OnClose(fn func(CloseEvent)) listener.Handle   { return c.onClose.On(fn) }
func (c *Connection) OnUpgrading(fn func(eiot.Name)) listener.Handle {
	return c.onUpgrading.On(fn)
}
func (c *Connection) OnUpgrade(fn func(eiot.Name)) listener.Handle { return c.onUpgrade.On(fn) }
func (c *Connection) OnDrain(fn func(struct{})) listener.Handle    { return c.onDrain.On(fn) }

// Send queues each value as one message packet. Values are strings or
// []byte. The packets stay together in the buffer and are flushed in order.
func (c *Connection) Send(data ...interface{}) { c.SendWith(SendOptions{Compress: true}, data...) }

// SendOptions apply to every message of one SendWith call.
type SendOptions struct {
	Compress bool
}

func (c *Connection) SendWith(opts SendOptions, data ...interface{}) {
	c.ʘ.Lock()
	defer c.ʘ.Unlock()

	if c.readyState != Open {
		return
	}
	for _, d := range data {
		c.writeBuffer = append(c.writeBuffer, eiop.Packet{T: eiop.MessagePacket, D: d, Compress: opts.Compress})
	}
	c.flushLocked()
}

// Close sends a close packet, waits for the buffer to drain and then closes
// the transport. Calling it again is a no-op.
func (c *Connection) Close() {
	c.ʘ.Lock()
	if c.readyState != Open {
		c.ʘ.Unlock()
		return
	}

	c.readyState = Closing
	c.writeBuffer = append(c.writeBuffer, eiop.Packet{T: eiop.ClosePacket})
	c.flushLocked()

	var emit func()
	if c.drainedLocked() {
		emit = c.onCloseLocked(ReasonForcedClose, nil)
	} else {
		c.closeTimer = time.AfterFunc(c.cfg.pingTimeout, func() { c.closeWith(ReasonForcedClose, nil) })
	}
	c.ʘ.Unlock()

	if emit != nil {
		emit()
	}
}

func (c *Connection) drainedLocked() bool { return len(c.writeBuffer) == 0 && !c.inflight }

func (c *Connection) sendPacketLocked(packet eiop.Packet) {
	if c.readyState != Open {
		return
	}
	c.writeBuffer = append(c.writeBuffer, packet)
	c.flushLocked()
}

func (c *Connection) flushLocked() {
	if c.readyState == Closed || len(c.writeBuffer) == 0 || !c.transport.Writable() {
		return
	}

	payload := c.writeBuffer
	c.writeBuffer = nil
	c.inflight = true
	c.transport.Send(payload)
}

func (c *Connection) schedulePingLocked() {
	if c.pingTimer != nil {
		c.pingTimer.Stop()
	}
	c.pingTimer = time.AfterFunc(c.cfg.pingInterval, func() {
		c.ʘ.Lock()
		defer c.ʘ.Unlock()

		c.log.Debug("ping")
		c.sendPacketLocked(eiop.Packet{T: eiop.PingPacket})
	})
}

// resetPingTimeoutLocked re-arms the liveness timer. It runs when the
// session opens and on every inbound packet, so a silent peer is dropped
// pingInterval+pingTimeout after the last thing it sent.
func (c *Connection) resetPingTimeoutLocked() {
	if c.pingTimeoutTimer != nil {
		c.pingTimeoutTimer.Stop()
	}
	c.pingTimeoutTimer = time.AfterFunc(c.cfg.pingInterval+c.cfg.pingTimeout, func() {
		c.closeWith(ReasonPingTimeout, nil)
	})
}

func (c *Connection) closeWith(reason string, err error) {
	c.ʘ.Lock()
	emit := c.onCloseLocked(reason, err)
	c.ʘ.Unlock()

	if emit != nil {
		emit()
	}
}

// onCloseLocked tears the session down and returns the function that
// notifies the close listeners; it must run after the lock is released.
func (c *Connection) onCloseLocked(reason string, err error) func() {
	if c.readyState == Closed {
		return nil
	}
	c.readyState = Closed

	for _, timer := range []*time.Timer{c.pingTimer, c.pingTimeoutTimer, c.closeTimer} {
		if timer != nil {
			timer.Stop()
		}
	}
	for _, p := range c.probes {
		p.stop()
		p.t.SetHandler(nil)
		p.t.Close()
	}
	c.probes = map[eiot.Transporter]*probe{}
	c.upgrading = false

	c.transport.SetHandler(nil)
	c.transport.Close()
	c.writeBuffer = nil

	c.log.Debug("session closed", zap.String("reason", reason), zap.Error(err))
	return func() {
		c.onClose.Emit(CloseEvent{Reason: reason, Err: err})
		c.onMessage.Clear()
		c.onUpgrading.Clear()
		c.onUpgrade.Clear()
		c.onDrain.Clear()
		c.onClose.Clear()
	}
}

func (c *Connection) onPacket(packet eiop.Packet) {
	c.ʘ.Lock()
	if c.readyState != Open {
		c.ʘ.Unlock()
		c.log.Debug("packet received with closed session", zap.Stringer("packet", packet))
		return
	}

	c.resetPingTimeoutLocked()

	switch packet.T {
	case eiop.PingPacket:
		c.sendPacketLocked(eiop.Packet{T: eiop.PongPacket, D: packet.D})
	case eiop.PongPacket:
		if c.protocol >= 4 {
			c.schedulePingLocked()
		}
	case eiop.MessagePacket:
		c.ʘ.Unlock()
		c.onMessage.Emit(packet.D)
		return
	}
	c.ʘ.Unlock()
}

func (c *Connection) onTransportDrain() {
	c.ʘ.Lock()
	c.inflight = false
	c.flushLocked()

	var emit func()
	if c.readyState == Closing && c.drainedLocked() {
		emit = c.onCloseLocked(ReasonForcedClose, nil)
	}
	drained := c.drainedLocked()
	c.ʘ.Unlock()

	if drained {
		c.onDrain.Emit(struct{}{})
	}
	if emit != nil {
		emit()
	}
}

func (c *Connection) onTransportError(err error) {
	reason := ReasonTransportError
	if errors.Is(err, eiop.ErrPacketDecode) || errors.Is(err, eiop.ErrPayloadDecode) {
		reason = ReasonParseError
	}
	c.log.Debug("transport error", zap.Error(err))
	c.closeWith(reason, err)
}

// transportHandler forwards the events of the active transport. Events
// from a transport that is no longer active are dropped.
type transportHandler struct {
	c *Connection
	t eiot.Transporter
}

func (h transportHandler) active() bool {
	h.c.ʘ.Lock()
	defer h.c.ʘ.Unlock()
	return h.c.transport == h.t
}

func (h transportHandler) OnPacket(packet eiop.Packet) {
	if h.active() {
		h.c.onPacket(packet)
	}
}

func (h transportHandler) OnDrain() {
	if h.active() {
		h.c.onTransportDrain()
	}
}

func (h transportHandler) OnError(err error) {
	if h.active() {
		h.c.onTransportError(err)
	}
}

func (h transportHandler) OnClose() {
	if h.active() {
		h.c.closeWith(ReasonTransportClose, nil)
	}
}
