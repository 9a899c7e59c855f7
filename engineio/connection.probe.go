package engineio

import (
	"time"

	eiop "github.com/socketio/socket.io-sub001/engineio/protocol"
	eiot "github.com/socketio/socket.io-sub001/engineio/transport"
	"go.uber.org/zap"
)

// probe is a transport being tested as an upgrade target. It is removed
// when the upgrade completes, fails or times out.
type probe struct {
	t       eiot.Transporter
	timeout *time.Timer
	check   *time.Ticker
	done    chan struct{}
}

func (p *probe) stop() {
	p.timeout.Stop()
	if p.check != nil {
		p.check.Stop()
	}
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

// maybeUpgrade registers t as a probe. Any error leaves the session on its
// current transport.
func (c *Connection) maybeUpgrade(t eiot.Transporter) error {
	c.ʘ.Lock()
	defer c.ʘ.Unlock()

	if c.readyState != Open {
		return ErrNotOpen.F(c.readyState)
	}
	if c.upgraded {
		return ErrAlreadyUpgraded
	}
	if !c.transport.Name().CanUpgradeTo(t.Name()) {
		return ErrUpgradeNotAllowed.F(c.transport.Name(), t.Name())
	}

	p := &probe{t: t, done: make(chan struct{})}
	p.timeout = time.AfterFunc(c.cfg.upgradeTimeout, func() {
		c.log.Debug("upgrade timeout", zap.Stringer("transport", t.Name()))
		c.abortProbe(p)
	})
	c.probes[t] = p
	t.SetHandler(probeHandler{c: c, p: p})
	return nil
}

func (c *Connection) abortProbe(p *probe) {
	c.ʘ.Lock()
	if _, ok := c.probes[p.t]; !ok {
		c.ʘ.Unlock()
		return
	}
	delete(c.probes, p.t)
	p.stop()
	if len(c.probes) == 0 {
		c.upgrading = false
	}
	c.ʘ.Unlock()

	p.t.SetHandler(nil)
	p.t.Close()
}

func (c *Connection) onProbePacket(p *probe, packet eiop.Packet) {
	switch {
	case packet.T == eiop.PingPacket && packet.D == eiop.ProbeData:
		c.ʘ.Lock()
		if _, ok := c.probes[p.t]; !ok || c.readyState != Open {
			c.ʘ.Unlock()
			return
		}
		p.t.Send(eiop.Payload{{T: eiop.PongPacket, D: eiop.ProbeData}})
		c.upgrading = true
		if p.check == nil {
			p.check = time.NewTicker(probeNoopInterval)
			go c.nudgePolling(p)
		}
		c.ʘ.Unlock()

		c.onUpgrading.Emit(p.t.Name())

	case packet.T == eiop.UpgradePacket:
		c.completeUpgrade(p)

	default:
		c.log.Debug("invalid probe packet", zap.Stringer("packet", packet))
		c.abortProbe(p)
	}
}

// nudgePolling answers a held polling request with a noop so the client
// stops polling and sends the upgrade packet.
func (c *Connection) nudgePolling(p *probe) {
	for {
		select {
		case <-p.done:
			return
		case <-p.check.C:
			c.ʘ.Lock()
			if c.transport.Name() == eiot.Polling && c.transport.Writable() {
				c.log.Debug("writing a noop packet to polling for fast upgrade")
				c.transport.Send(eiop.Payload{{T: eiop.NoopPacket}})
			}
			c.ʘ.Unlock()
		}
	}
}

func (c *Connection) completeUpgrade(p *probe) {
	c.ʘ.Lock()
	if _, ok := c.probes[p.t]; !ok || c.readyState == Closed {
		c.ʘ.Unlock()
		return
	}
	delete(c.probes, p.t)
	p.stop()

	others := make([]*probe, 0, len(c.probes))
	for _, other := range c.probes {
		other.stop()
		others = append(others, other)
	}
	c.probes = map[eiot.Transporter]*probe{}
	c.upgraded = true
	old := c.transport
	c.ʘ.Unlock()

	for _, other := range others {
		other.t.SetHandler(nil)
		other.t.Close()
	}

	old.Pause(func() {
		c.ʘ.Lock()
		if c.readyState == Closed {
			c.ʘ.Unlock()
			p.t.SetHandler(nil)
			p.t.Close()
			return
		}

		old.SetHandler(nil)
		c.transport = p.t
		c.inflight = false
		c.upgrading = false
		p.t.SetHandler(transportHandler{c: c, t: p.t})
		c.flushLocked()

		var emit func()
		if c.readyState == Closing && c.drainedLocked() {
			emit = c.onCloseLocked(ReasonForcedClose, nil)
		}
		c.ʘ.Unlock()

		old.Close()
		c.log.Debug("upgraded", zap.Stringer("from", old.Name()), zap.Stringer("to", p.t.Name()))
		c.onUpgrade.Emit(p.t.Name())
		if emit != nil {
			emit()
		}
	})
}

type probeHandler struct {
	c *Connection
	p *probe
}

func (h probeHandler) OnPacket(packet eiop.Packet) { h.c.onProbePacket(h.p, packet) }
func (h probeHandler) OnDrain()                    {}
func (h probeHandler) OnError(error)               { h.c.abortProbe(h.p) }
func (h probeHandler) OnClose()                    { h.c.abortProbe(h.p) }
