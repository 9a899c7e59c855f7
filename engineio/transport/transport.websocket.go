package transport

import (
	"bytes"
	"context"
	"net/http"

	eiop "github.com/socketio/socket.io-sub001/engineio/protocol"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	ws "nhooyr.io/websocket"
)

// WebsocketTransport carries one packet per websocket message. Text packets
// use the packet text form, binary messages are sent as binary frames.
type WebsocketTransport struct {
	*Transport

	accept ws.AcceptOptions

	queue  eiop.Payload
	signal chan struct{}
	done   chan struct{}
}

func NewWebsocketTransport() *WebsocketTransport {
	t := &WebsocketTransport{
		Transport: newTransport(Websocket),
		accept:    ws.AcceptOptions{CompressionMode: ws.CompressionDisabled},
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	t.writable = true
	return t
}

// Run accepts the websocket and serves it until either side closes it.
func (t *WebsocketTransport) Run(w http.ResponseWriter, r *http.Request) error {
	conn, err := ws.Accept(w, r, &t.accept)
	if err != nil {
		err = ErrWebsocketAccept.F(err)
		if !t.isClosed() {
			t.current().OnError(err)
		}
		return err
	}
	conn.SetReadLimit(t.maxPayload)

	if t.isClosed() {
		return conn.Close(ws.StatusGoingAway, "")
	}

	grp, ctx := errgroup.WithContext(r.Context())
	grp.Go(func() error { return t.incoming(ctx, conn) })
	grp.Go(func() error { return t.outgoing(ctx, conn) })
	err = grp.Wait()

	t.ʘ.Lock()
	closedLocally := t.closed
	t.closed, t.writable = true, false
	h := t.handler
	t.ʘ.Unlock()

	if closedLocally {
		return nil
	}

	defer conn.Close(ws.StatusNormalClosure, "")

	if err == errPeerClose || ws.CloseStatus(err) != -1 {
		t.log.Debug("websocket closed by peer")
		h.OnClose()
		return nil
	}
	t.log.Debug("websocket failed", zap.Error(err))
	h.OnError(err)
	return err
}

type peerClose struct{}

func (peerClose) Error() string { return "close packet from peer" }

var errPeerClose error = peerClose{}

func (t *WebsocketTransport) incoming(ctx context.Context, conn *ws.Conn) error {
	for {
		typ, p, err := conn.Read(ctx)
		if err != nil {
			return ErrWebsocketRead.F(err)
		}

		var packet eiop.Packet
		if typ == ws.MessageBinary {
			packet = eiop.DecodeBinaryPacket(p)
		} else if packet, err = eiop.DecodePacket(p); err != nil {
			return ErrDecodeFailed.F(t.name, err)
		}

		if packet.T == eiop.ClosePacket {
			return errPeerClose
		}
		if t.isClosed() {
			return nil
		}
		t.current().OnPacket(packet)
	}
}

func (t *WebsocketTransport) outgoing(ctx context.Context, conn *ws.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.done:
			// Close after the writes already taken have gone out.
			return conn.Close(ws.StatusNormalClosure, "")
		case <-t.signal:
		}

		t.ʘ.Lock()
		payload := t.queue
		t.queue = nil
		t.ʘ.Unlock()

		for _, packet := range payload {
			if err := t.writePacket(ctx, conn, packet); err != nil {
				return err
			}
		}

		t.ʘ.Lock()
		drained := len(t.queue) == 0
		if drained {
			t.writable = true
		}
		closed, h := t.closed, t.handler
		t.ʘ.Unlock()

		if drained && !closed {
			h.OnDrain()
		}
	}
}

func (t *WebsocketTransport) writePacket(ctx context.Context, conn *ws.Conn, packet eiop.Packet) error {
	typ, p := ws.MessageBinary, []byte(nil)
	if data, ok := packet.D.([]byte); ok {
		p = data
	} else {
		var buf bytes.Buffer
		if err := eiop.NewPacketEncoder(&buf).Encode(packet); err != nil {
			return ErrEncodeFailed.F(t.name, err)
		}
		typ, p = ws.MessageText, buf.Bytes()
	}

	if err := t.writeMessage(ctx, conn, typ, p, packet.Compress); err != nil {
		return ErrWebsocketWrite.F(err)
	}
	return nil
}

// writeMessage sends p as one message. The deflate extension only looks at
// the first frame of a message when deciding to compress, so an empty first
// frame keeps p uncompressed.
func (t *WebsocketTransport) writeMessage(ctx context.Context, conn *ws.Conn, typ ws.MessageType, p []byte, compress bool) error {
	if compress || t.accept.CompressionMode == ws.CompressionDisabled {
		return conn.Write(ctx, typ, p)
	}

	w, err := conn.Writer(ctx, typ)
	if err != nil {
		return err
	}
	if _, err := w.Write(nil); err != nil {
		w.Close()
		return err
	}
	if _, err := w.Write(p); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (t *WebsocketTransport) Send(payload eiop.Payload) {
	t.ʘ.Lock()
	defer t.ʘ.Unlock()

	if t.closed {
		return
	}
	t.writable = false
	t.queue = append(t.queue, payload...)

	select {
	case t.signal <- struct{}{}:
	default:
	}
}

func (t *WebsocketTransport) Pause(onPause func()) {
	t.ʘ.Lock()
	t.paused = true
	t.ʘ.Unlock()

	onPause()
}

func (t *WebsocketTransport) Close() {
	t.ʘ.Lock()
	defer t.ʘ.Unlock()

	if t.closed {
		return
	}
	t.closed, t.writable = true, false
	close(t.done)
}
