package transport

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	eiop "github.com/socketio/socket.io-sub001/engineio/protocol"
	"go.uber.org/zap"
)

// PollingTransport is HTTP long-polling. A GET request is held open until
// the session has packets for it; a POST request carries a payload from the
// client.
type PollingTransport struct {
	*Transport

	compress          bool
	compressThreshold int

	poll    chan eiop.Payload // the pending GET, nil when there is none
	backlog eiop.Payload
	dataReq bool
	writing bool
	onPause []func()
}

func NewPollingTransport() *PollingTransport {
	return &PollingTransport{
		Transport:         newTransport(Polling),
		compressThreshold: 1024,
	}
}

func (t *PollingTransport) Run(w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodGet:
		return t.onPollRequest(w, r)
	case http.MethodPost:
		return t.onDataRequest(w, r)
	}
	w.WriteHeader(http.StatusMethodNotAllowed)
	return ErrMethodNotAllowed.F(r.Method)
}

func (t *PollingTransport) onPollRequest(w http.ResponseWriter, r *http.Request) error {
	t.ʘ.Lock()
	if t.poll != nil {
		h := t.handler
		t.ʘ.Unlock()

		err := ErrPollOverlap.F(http.MethodGet)
		w.WriteHeader(http.StatusBadRequest)
		h.OnError(err)
		return err
	}

	var immediate eiop.Payload
	switch {
	case t.closed:
		immediate = eiop.Payload{{T: eiop.ClosePacket}}
	case t.paused:
		immediate = eiop.Payload{{T: eiop.NoopPacket}}
	case len(t.backlog) > 0:
		immediate, t.backlog = t.backlog, nil
	}
	if immediate != nil {
		t.writing = true
		t.ʘ.Unlock()
		return t.write(w, r, immediate)
	}

	poll := make(chan eiop.Payload, 1)
	t.poll, t.writable = poll, true
	h := t.handler
	t.ʘ.Unlock()

	t.log.Debug("poll request held")
	h.OnDrain()

	select {
	case payload := <-poll:
		return t.write(w, r, payload)
	case <-r.Context().Done():
		t.ʘ.Lock()
		if t.poll == poll {
			t.poll, t.writable = nil, false
		}
		closed, h := t.closed, t.handler
		t.ʘ.Unlock()

		if !closed {
			h.OnError(ErrPollClosedEarly)
		}
		return ErrPollClosedEarly
	}
}

func (t *PollingTransport) write(w http.ResponseWriter, r *http.Request, payload eiop.Payload) error {
	err := t.writePayload(w, r, payload)

	t.ʘ.Lock()
	t.writing = false
	onPause := t.onPause
	t.onPause = nil
	closed, h := t.closed, t.handler
	t.ʘ.Unlock()

	for _, fn := range onPause {
		fn()
	}

	if closed {
		return err
	}
	if err != nil {
		h.OnError(err)
		return err
	}
	h.OnDrain()
	return nil
}

func (t *PollingTransport) writePayload(w http.ResponseWriter, r *http.Request, payload eiop.Payload) error {
	var buf bytes.Buffer
	if err := eiop.NewPayloadEncoder(&buf).Encode(payload); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return ErrEncodeFailed.F(t.name, err)
	}

	header := w.Header()
	header.Set("Content-Type", "text/plain; charset=UTF-8")

	if t.compress && anyCompressed(payload) && buf.Len() >= t.compressThreshold && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		var zipped bytes.Buffer
		gz := gzip.NewWriter(&zipped)
		if _, err := gz.Write(buf.Bytes()); err != nil {
			return ErrEncodeFailed.F(t.name, err)
		}
		if err := gz.Close(); err != nil {
			return ErrEncodeFailed.F(t.name, err)
		}
		header.Set("Content-Encoding", "gzip")
		header.Add("Vary", "Accept-Encoding")
		buf = zipped
	}

	header.Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return ErrEncodeFailed.F(t.name, err)
	}
	t.log.Debug("poll response written", zap.Int("packets", len(payload)), zap.Int("bytes", buf.Len()))
	return nil
}

// anyCompressed reports whether a packet of the response may be compressed.
func anyCompressed(payload eiop.Payload) bool {
	for _, packet := range payload {
		if packet.Compress {
			return true
		}
	}
	return false
}

func (t *PollingTransport) onDataRequest(w http.ResponseWriter, r *http.Request) error {
	t.ʘ.Lock()
	if t.dataReq || t.closed {
		closed, h := t.closed, t.handler
		t.ʘ.Unlock()

		w.WriteHeader(http.StatusBadRequest)
		if closed {
			return ErrTransportClosed
		}
		err := ErrPollOverlap.F(http.MethodPost)
		h.OnError(err)
		return err
	}
	t.dataReq = true
	t.ʘ.Unlock()

	defer func() {
		t.ʘ.Lock()
		t.dataReq = false
		t.ʘ.Unlock()
	}()

	var payload eiop.Payload
	body := http.MaxBytesReader(w, r.Body, t.maxPayload)
	if err := eiop.NewPayloadDecoder(body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return ErrPayloadTooLarge.F(t.maxPayload)
		}

		err = ErrDecodeFailed.F(t.name, err)
		w.WriteHeader(http.StatusBadRequest)
		if !t.isClosed() {
			t.current().OnError(err)
		}
		return err
	}

	for _, packet := range payload {
		if t.isClosed() {
			break
		}
		if packet.T == eiop.ClosePacket {
			t.current().OnClose()
			break
		}
		t.current().OnPacket(packet)
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write([]byte("ok"))
	return err
}

func (t *PollingTransport) Send(payload eiop.Payload) {
	t.ʘ.Lock()
	defer t.ʘ.Unlock()

	if t.closed {
		return
	}
	if t.poll == nil {
		t.backlog = append(t.backlog, payload...)
		return
	}

	poll := t.poll
	t.poll, t.writable, t.writing = nil, false, true
	poll <- payload
}

// Pause stops writes. A held GET is answered with a noop, and onPause runs
// once no response is being written.
func (t *PollingTransport) Pause(onPause func()) {
	t.ʘ.Lock()
	t.paused = true
	if t.poll != nil {
		poll := t.poll
		t.poll, t.writable, t.writing = nil, false, true
		poll <- eiop.Payload{{T: eiop.NoopPacket}}
	}
	if t.writing {
		t.onPause = append(t.onPause, onPause)
		t.ʘ.Unlock()
		return
	}
	t.ʘ.Unlock()

	onPause()
}

// Close answers a held GET with a close packet.
func (t *PollingTransport) Close() {
	t.ʘ.Lock()
	defer t.ʘ.Unlock()

	if t.closed {
		return
	}
	t.closed, t.writable = true, false
	if t.poll != nil {
		poll := t.poll
		t.poll, t.writing = nil, true
		poll <- eiop.Payload{{T: eiop.ClosePacket}}
	}
}
