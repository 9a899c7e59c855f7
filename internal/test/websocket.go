package itst

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Logger writes through t so log lines show up next to a failing test.
func Logger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel))
}

// WSClient is a websocket client speaking raw frames.
type WSClient struct {
	t    *testing.T
	conn net.Conn
	rw   io.ReadWriter
}

// DialWS connects to an http:// url of a test server.
func DialWS(t *testing.T, url string) *WSClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, br, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(url, "http"))
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}

	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	c := &WSClient{t: t, conn: conn, rw: struct {
		io.Reader
		io.Writer
	}{r, conn}}
	t.Cleanup(func() { conn.Close() })
	return c
}

// Read returns the next data message. Control frames are answered.
func (c *WSClient) Read() (string, ws.OpCode, error) {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	p, op, err := wsutil.ReadServerData(c.rw)
	return string(p), op, err
}

func (c *WSClient) ReadText() string {
	c.t.Helper()
	msg, op, err := c.Read()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	if op != ws.OpText {
		c.t.Fatalf("read: want a text frame, have %v", op)
	}
	return msg
}

func (c *WSClient) WriteText(msg string) {
	c.t.Helper()
	if err := wsutil.WriteClientText(c.conn, []byte(msg)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *WSClient) WriteBinary(p []byte) {
	c.t.Helper()
	if err := wsutil.WriteClientBinary(c.conn, p); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *WSClient) Close() error { return c.conn.Close() }
