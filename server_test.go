package socketio_test

// THIS FILE DOES NOT CONTAIN TESTS...
// this file contains utilities for tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sio "github.com/socketio/socket.io-sub001"
	eio "github.com/socketio/socket.io-sub001/engineio"
	eiop "github.com/socketio/socket.io-sub001/engineio/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*sio.Server
	url string
}

func newTestServer(t *testing.T, opts ...sio.Option) *testServer {
	t.Helper()

	opts = append([]sio.Option{sio.WithEngineOptions(
		eio.WithPingInterval(10*time.Second),
		eio.WithPingTimeout(5*time.Second),
	)}, opts...)

	s := sio.NewServer(opts...)
	svr := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		svr.Close()
	})
	return &testServer{Server: s, url: svr.URL + "/socket.io/"}
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// testClient speaks engine.io long-polling and collects the socket.io
// packets it receives as strings.
type testClient struct {
	t       *testing.T
	url     string
	sid     string
	pending []string
	closed  bool
	gzipped bool
}

func (ts *testServer) client(t *testing.T) *testClient {
	t.Helper()

	resp, err := httpClient.Get(ts.url + "?EIO=4&transport=polling")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	payload, err := eiop.DecodePayload(body)
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	hs, ok := payload[0].D.(*eiop.Handshake)
	require.True(t, ok)
	return &testClient{t: t, url: ts.url + "?EIO=4&transport=polling&sid=" + hs.SID, sid: hs.SID}
}

func (c *testClient) send(packets ...string) {
	c.t.Helper()

	payload := make(eiop.Payload, len(packets))
	for i, p := range packets {
		payload[i] = eiop.Packet{T: eiop.MessagePacket, D: p}
	}
	var buf bytes.Buffer
	require.NoError(c.t, eiop.NewPayloadEncoder(&buf).Encode(payload))

	resp, err := httpClient.Post(c.url, "text/plain;charset=UTF-8", &buf)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
}

// poll does one GET and keeps the message packets. gzipped tells whether
// the response was compressed.
func (c *testClient) poll() {
	c.t.Helper()

	resp, err := httpClient.Get(c.url)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	c.gzipped = resp.Uncompressed

	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	payload, err := eiop.DecodePayload(body)
	require.NoError(c.t, err)

	for _, packet := range payload {
		switch packet.T {
		case eiop.MessagePacket:
			if s, ok := packet.D.(string); ok {
				c.pending = append(c.pending, s)
			}
		case eiop.ClosePacket:
			c.closed = true
		}
	}
}

func (c *testClient) next() string {
	c.t.Helper()

	for len(c.pending) == 0 {
		c.poll()
	}
	msg := c.pending[0]
	c.pending = c.pending[1:]
	return msg
}

// until returns the packets received up to and including last.
func (c *testClient) until(last string) []string {
	c.t.Helper()

	var list []string
	for {
		msg := c.next()
		list = append(list, msg)
		if msg == last {
			return list
		}
	}
}

// connect joins nsp and returns the socket id the server sent back.
func (c *testClient) connect(nsp string) string {
	c.t.Helper()

	prefix := "0"
	if nsp != "/" {
		prefix += nsp + ","
	}
	c.send(prefix)

	msg := c.next()
	require.True(c.t, strings.HasPrefix(msg, prefix+"{"), msg)

	var m map[string]interface{}
	require.NoError(c.t, json.Unmarshal([]byte(strings.TrimPrefix(msg, prefix)), &m))
	sid, _ := m["sid"].(string)
	assert.NotEmpty(c.t, sid)
	return sid
}

// connected waits for the sockets announced on ch.
func connected(t *testing.T, ch <-chan *sio.Socket) *sio.Socket {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("no connection")
	}
	return nil
}
