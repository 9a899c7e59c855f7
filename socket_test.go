package socketio_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sio "github.com/socketio/socket.io-sub001"
	cabk "github.com/socketio/socket.io-sub001/callback"
	eio "github.com/socketio/socket.io-sub001/engineio"
	eiot "github.com/socketio/socket.io-sub001/engineio/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketConnect(t *testing.T) {
	ts := newTestServer(t)

	conns := make(chan *sio.Socket, 1)
	ts.OnConnection(func(s *sio.Socket) { conns <- s })

	c := ts.client(t)
	sid := c.connect("/")

	s := connected(t, conns)
	assert.Equal(t, sid, s.ID())
	assert.NotEqual(t, c.sid, sid)
	assert.True(t, s.Connected())
	assert.Equal(t, []string{sid}, s.Rooms())
	assert.Equal(t, []string{"4"}, s.Handshake().Query["EIO"])
}

func TestSocketIncomingEvent(t *testing.T) {
	var opts = []func(*testing.T){}

	type (
		testFn          func(*testing.T)
		testParamsInFn  func(cabk.EventCallback, string, []string) testFn
		testParamsOutFn func(*testing.T) (cabk.EventCallback, string, []string)
	)

	runWithOptions := map[string]testParamsInFn{
		"Polling": func(fn cabk.EventCallback, in string, want []string) testFn {
			return func(t *testing.T) {
				for _, opt := range opts {
					opt(t)
				}

				ts := newTestServer(t)
				ts.OnConnection(func(s *sio.Socket) {
					s.On("test", fn)
					s.On("done", cabk.FuncAny(func(...interface{}) error { return s.Emit("done") }))
				})

				c := ts.client(t)
				c.connect("/")
				c.send(in, `2["done"]`)

				assert.Equal(t, want, c.until(`2["done"]`))
			}
		},
	}

	spec := map[string]testParamsOutFn{
		"Reply": func(*testing.T) (cabk.EventCallback, string, []string) {
			return cabk.FuncReply(func(v ...interface{}) []interface{} { return v }), `25["test","hi",1]`, []string{`35["hi",1]`, `2["done"]`}
		},
		"Reply Without Ack": func(*testing.T) (cabk.EventCallback, string, []string) {
			return cabk.FuncReply(func(v ...interface{}) []interface{} { return v }), `2["test","hi"]`, []string{`2["done"]`}
		},
		"Trailing Ack": func(t *testing.T) (cabk.EventCallback, string, []string) {
			return cabk.FuncAny(func(v ...interface{}) error {
				require.Len(t, v, 2)
				ack, ok := v[1].(cabk.Ack)
				require.True(t, ok)
				ack("ok")
				ack("twice")
				return nil
			}), `26["test","x"]`, []string{`36["ok"]`, `2["done"]`}
		},
		"Wrapped Func": func(t *testing.T) (cabk.EventCallback, string, []string) {
			return cabk.Wrap{Func: func(n int, ack cabk.Ack) { ack(n * 2) }}, `27["test",21]`, []string{`37[42]`, `2["done"]`}
		},
		"Plain Arguments": func(t *testing.T) (cabk.EventCallback, string, []string) {
			return cabk.FuncAny(func(v ...interface{}) error {
				assert.Equal(t, []interface{}{"plain"}, v)
				return nil
			}), `2["test","plain"]`, []string{`2["done"]`}
		},
	}

	for name, testParams := range spec {
		for suffix, run := range runWithOptions {
			t.Run(fmt.Sprintf("%s.%s", name, suffix), run(testParams(t)))
		}
	}
}

func TestSocketAckTimeout(t *testing.T) {
	ts := newTestServer(t)

	var (
		ʘ     sync.Mutex
		calls []error
	)
	ts.OnConnection(func(s *sio.Socket) {
		s.Timeout(50*time.Millisecond).Emit("ping", cabk.FuncAck(func(err error, args ...interface{}) {
			ʘ.Lock()
			defer ʘ.Unlock()
			calls = append(calls, err)
		}))
	})

	c := ts.client(t)
	c.connect("/")
	assert.Equal(t, `20["ping"]`, c.next())

	assert.Eventually(t, func() bool {
		ʘ.Lock()
		defer ʘ.Unlock()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)

	// too late, the callback already had its answer
	c.send(`30["pong"]`)
	time.Sleep(20 * time.Millisecond)

	ʘ.Lock()
	defer ʘ.Unlock()
	require.Len(t, calls, 1)
	assert.ErrorIs(t, calls[0], sio.ErrAckTimeout)
}

func TestSocketEmitWithAck(t *testing.T) {
	ts := newTestServer(t)

	type result struct {
		args []interface{}
		err  error
	}
	results := make(chan result, 1)
	ts.OnConnection(func(s *sio.Socket) {
		go func() {
			args, err := s.EmitWithAck(context.Background(), "question", "life")
			results <- result{args, err}
		}()
	})

	c := ts.client(t)
	c.connect("/")
	assert.Equal(t, `20["question","life"]`, c.next())
	c.send(`30[42]`)

	select {
	case r := <-results:
		require.NoError(t, r.err)
		assert.Equal(t, []interface{}{float64(42)}, r.args)
	case <-time.After(5 * time.Second):
		t.Fatal("no ack")
	}
}

func TestSocketDisconnect(t *testing.T) {
	var opts = []func(*testing.T){}

	type (
		testFn          func(*testing.T)
		testParamsInFn  func(func(*testClient, *sio.Socket), string) testFn
		testParamsOutFn func(*testing.T) (func(*testClient, *sio.Socket), string)
	)

	runWithOptions := map[string]testParamsInFn{
		"Reason": func(do func(*testClient, *sio.Socket), reason string) testFn {
			return func(t *testing.T) {
				for _, opt := range opts {
					opt(t)
				}

				ts := newTestServer(t)
				conns := make(chan *sio.Socket, 1)
				reasons := make(chan string, 2)
				acks := make(chan error, 1)
				ts.OnConnection(func(s *sio.Socket) {
					s.Join("room")
					s.OnDisconnecting(func(string) { assert.ElementsMatch(t, []string{s.ID(), "room"}, s.Rooms()) })
					s.OnDisconnect(func(reason string) { reasons <- reason })
					s.Emit("wait", cabk.FuncAck(func(err error, _ ...interface{}) { acks <- err }))
					conns <- s
				})

				c := ts.client(t)
				c.connect("/")
				s := connected(t, conns)

				do(c, s)

				select {
				case have := <-reasons:
					assert.Equal(t, reason, have)
				case <-time.After(5 * time.Second):
					t.Fatal("no disconnect")
				}
				assert.ErrorIs(t, <-acks, sio.ErrSocketDisconnected)
				assert.False(t, s.Connected())
				assert.Empty(t, s.Rooms())
				assert.Empty(t, ts.Of("/").Sockets())
			}
		},
	}

	spec := map[string]testParamsOutFn{
		"Client Namespace Disconnect": func(*testing.T) (func(*testClient, *sio.Socket), string) {
			return func(c *testClient, _ *sio.Socket) { c.send("1") }, "client namespace disconnect"
		},
		"Server Namespace Disconnect": func(t *testing.T) (func(*testClient, *sio.Socket), string) {
			return func(c *testClient, s *sio.Socket) {
				s.Disconnect(false)
				assert.Equal(t, []string{`20["wait"]`, "1"}, c.until("1"))
			}, "server namespace disconnect"
		},
		"Close Connection": func(t *testing.T) (func(*testClient, *sio.Socket), string) {
			return func(c *testClient, s *sio.Socket) {
				s.Disconnect(true)
				for !c.closed {
					c.poll()
				}
				assert.Contains(t, c.pending, "1")
			}, "server namespace disconnect"
		},
		"Parse Error": func(t *testing.T) (func(*testClient, *sio.Socket), string) {
			return func(c *testClient, s *sio.Socket) {
				errs := make(chan error, 1)
				s.OnError(func(err error) { errs <- err })
				c.send(`2["unterminated"`)
				assert.Error(t, <-errs)
				for !c.closed {
					c.poll()
				}
			}, "forced close"
		},
	}

	for name, testParams := range spec {
		for suffix, run := range runWithOptions {
			t.Run(fmt.Sprintf("%s.%s", name, suffix), run(testParams(t)))
		}
	}
}

func TestSocketEmitAfterDisconnect(t *testing.T) {
	ts := newTestServer(t)
	conns := make(chan *sio.Socket, 1)
	ts.OnConnection(func(s *sio.Socket) { conns <- s })

	c := ts.client(t)
	c.connect("/")
	s := connected(t, conns)

	s.Disconnect(false)
	assert.Equal(t, "1", c.next())

	acks := make(chan error, 1)
	require.NoError(t, s.Emit("late", cabk.FuncAck(func(err error, _ ...interface{}) { acks <- err })))
	select {
	case err := <-acks:
		assert.ErrorIs(t, err, sio.ErrSocketDisconnected)
	case <-time.After(time.Second):
		t.Fatal("ack callback not called")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.Timeout(time.Minute).EmitWithAck(ctx, "late")
	assert.ErrorIs(t, err, sio.ErrSocketDisconnected)

	require.NoError(t, s.Emit("late"))
	c.send(`0`)
	assert.True(t, strings.HasPrefix(c.next(), `0{"sid":`))
}

func TestSocketVolatile(t *testing.T) {
	var opts = []func(*testing.T){}

	type (
		testFn          func(*testing.T)
		testParamsInFn  func(func(*testServer, *sio.Socket)) testFn
		testParamsOutFn func(*testing.T) func(*testServer, *sio.Socket)
	)

	runWithOptions := map[string]testParamsInFn{
		"Polling": func(emit func(*testServer, *sio.Socket)) testFn {
			return func(t *testing.T) {
				for _, opt := range opts {
					opt(t)
				}

				ts := newTestServer(t)
				conns := make(chan *sio.Socket, 1)
				ts.OnConnection(func(s *sio.Socket) { conns <- s })

				c := ts.client(t)
				c.connect("/")
				s := connected(t, conns)

				// no GET is pending, the connection cannot take the packet
				emit(ts, s)
				require.NoError(t, s.Emit("after"))

				assert.Equal(t, `2["after"]`, c.next())
				assert.Empty(t, c.pending)

				// with a GET pending the volatile packet goes out
				go func() {
					time.Sleep(100 * time.Millisecond)
					emit(ts, s)
				}()
				assert.Equal(t, `2["volatile"]`, c.next())
			}
		},
	}

	spec := map[string]testParamsOutFn{
		"Socket": func(t *testing.T) func(*testServer, *sio.Socket) {
			return func(_ *testServer, s *sio.Socket) { assert.NoError(t, s.Volatile().Emit("volatile")) }
		},
		"Broadcast": func(t *testing.T) func(*testServer, *sio.Socket) {
			return func(ts *testServer, _ *sio.Socket) { assert.NoError(t, ts.Of("/").Volatile().Emit("volatile")) }
		},
		"Room Broadcast": func(t *testing.T) func(*testServer, *sio.Socket) {
			return func(ts *testServer, s *sio.Socket) { assert.NoError(t, ts.Of("/").To(s.ID()).Volatile().Emit("volatile")) }
		},
	}

	for name, testParams := range spec {
		for suffix, run := range runWithOptions {
			t.Run(fmt.Sprintf("%s.%s", name, suffix), run(testParams(t)))
		}
	}
}

func TestSocketCompress(t *testing.T) {
	ts := newTestServer(t, sio.WithEngineOptions(eio.WithTransportOptions(eiot.WithHTTPCompression(16))))
	conns := make(chan *sio.Socket, 1)
	ts.OnConnection(func(s *sio.Socket) { conns <- s })

	c := ts.client(t)
	c.connect("/")
	s := connected(t, conns)

	data := strings.Repeat("x", 100)

	require.NoError(t, s.Compress(false).Emit("big", data))
	assert.Equal(t, `2["big","`+data+`"]`, c.next())
	assert.False(t, c.gzipped)

	require.NoError(t, s.Emit("big", data))
	assert.Equal(t, `2["big","`+data+`"]`, c.next())
	assert.True(t, c.gzipped)

	require.NoError(t, ts.Of("/").Compress(false).Emit("big", data))
	assert.Equal(t, `2["big","`+data+`"]`, c.next())
	assert.False(t, c.gzipped)
}

func TestSocketMiddlewareAndAny(t *testing.T) {
	ts := newTestServer(t)

	var (
		ʘ        sync.Mutex
		incoming [][]interface{}
		outgoing [][]interface{}
		handled  []string
		errs     []error
	)
	ts.OnConnection(func(s *sio.Socket) {
		s.OnAny(func(args []interface{}) {
			ʘ.Lock()
			defer ʘ.Unlock()
			incoming = append(incoming, args)
		})
		s.OnAnyOutgoing(func(args []interface{}) {
			ʘ.Lock()
			defer ʘ.Unlock()
			outgoing = append(outgoing, args)
		})
		s.OnError(func(err error) {
			ʘ.Lock()
			defer ʘ.Unlock()
			errs = append(errs, err)
		})
		s.Use(func(args []interface{}, next func(error)) {
			if args[0] == "forbidden" {
				next(errors.New("not allowed"))
				return
			}
			next(nil)
		})
		for _, event := range []string{"allowed", "forbidden"} {
			event := event
			s.On(event, cabk.FuncAny(func(...interface{}) error {
				ʘ.Lock()
				handled = append(handled, event)
				ʘ.Unlock()
				return s.Emit("handled", event)
			}))
		}
	})

	c := ts.client(t)
	c.connect("/")
	c.send(`2["forbidden"]`, `2["allowed",1]`)
	assert.Equal(t, `2["handled","allowed"]`, c.next())

	ʘ.Lock()
	defer ʘ.Unlock()
	assert.Equal(t, [][]interface{}{{"forbidden"}, {"allowed", float64(1)}}, incoming)
	assert.Equal(t, [][]interface{}{{"handled", "allowed"}}, outgoing)
	assert.Equal(t, []string{"allowed"}, handled)
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "not allowed")
}

func TestSocketReservedEvents(t *testing.T) {
	ts := newTestServer(t)

	errs := make(chan error, 2)
	ts.OnConnection(func(s *sio.Socket) {
		errs <- s.Emit("disconnect")
		errs <- s.Broadcast().Emit("connect")
	})

	c := ts.client(t)
	c.connect("/")

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-errs, sio.ErrReservedEventName)
	}
}
