package socketio_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	sio "github.com/socketio/socket.io-sub001"
	"github.com/socketio/socket.io-sub001/adaptor"
	redisadapter "github.com/socketio/socket.io-sub001/adaptor/redis"
	cabk "github.com/socketio/socket.io-sub001/callback"
	itst "github.com/socketio/socket.io-sub001/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceMiddleware(t *testing.T) {
	var opts = []func(*testing.T){}

	type (
		testFn          func(*testing.T)
		testParamsInFn  func([]sio.Middleware, []string, string) testFn
		testParamsOutFn func(*testing.T) ([]sio.Middleware, []string, string)
	)

	var (
		ʘ     sync.Mutex
		order []string
	)
	mark := func(name string, err error) sio.Middleware {
		return func(_ *sio.Socket, next func(error)) {
			ʘ.Lock()
			order = append(order, name)
			ʘ.Unlock()
			next(err)
		}
	}

	runWithOptions := map[string]testParamsInFn{
		"Admission": func(middleware []sio.Middleware, want []string, reply string) testFn {
			return func(t *testing.T) {
				for _, opt := range opts {
					opt(t)
				}

				ʘ.Lock()
				order = nil
				ʘ.Unlock()

				ts := newTestServer(t)
				nsp := ts.Of("/admin")
				for _, fn := range middleware {
					nsp.Use(fn)
				}
				conns := make(chan *sio.Socket, 1)
				nsp.OnConnection(func(s *sio.Socket) { conns <- s })

				c := ts.client(t)
				c.send("0/admin,")
				msg := c.next()

				ʘ.Lock()
				assert.Equal(t, want, order)
				ʘ.Unlock()

				if reply != "" {
					assert.Equal(t, reply, msg)
					assert.Empty(t, nsp.Sockets())
					assert.Empty(t, nsp.Adapter().Rooms())
					assert.Len(t, conns, 0)
					return
				}
				assert.Regexp(t, `^0/admin,\{"sid":".+"\}$`, msg)
				s := connected(t, conns)
				assert.Equal(t, []string{s.ID()}, nsp.Adapter().Rooms())
			}
		},
	}

	spec := map[string]testParamsOutFn{
		"All Pass": func(*testing.T) ([]sio.Middleware, []string, string) {
			return []sio.Middleware{mark("m1", nil), mark("m2", nil)}, []string{"m1", "m2"}, ""
		},
		"Second Rejects": func(*testing.T) ([]sio.Middleware, []string, string) {
			return []sio.Middleware{mark("m1", nil), mark("m2", errors.New("no")), mark("m3", nil)},
				[]string{"m1", "m2"}, `4/admin,{"message":"no"}`
		},
		"Reject With Data": func(*testing.T) ([]sio.Middleware, []string, string) {
			return []sio.Middleware{mark("m1", sio.NewConnectError("no", map[string]interface{}{"code": 1}))},
				[]string{"m1"}, `4/admin,{"data":{"code":1},"message":"no"}`
		},
		"Wrapped Reject With Data": func(*testing.T) ([]sio.Middleware, []string, string) {
			err := fmt.Errorf("auth: %w", sio.NewConnectError("no", map[string]interface{}{"code": 2}))
			return []sio.Middleware{mark("m1", err)}, []string{"m1"}, `4/admin,{"data":{"code":2},"message":"auth: no"}`
		},
		"Rooms Joined Before Rejection": func(*testing.T) ([]sio.Middleware, []string, string) {
			join := func(s *sio.Socket, next func(error)) {
				s.Join("vip")
				next(nil)
			}
			return []sio.Middleware{join, mark("m2", errors.New("no"))}, []string{"m2"}, `4/admin,{"message":"no"}`
		},
		"Async Next": func(*testing.T) ([]sio.Middleware, []string, string) {
			later := func(s *sio.Socket, next func(error)) {
				time.AfterFunc(10*time.Millisecond, func() { next(nil) })
			}
			return []sio.Middleware{later, mark("m2", nil)}, []string{"m2"}, ""
		},
	}

	for name, testParams := range spec {
		for suffix, run := range runWithOptions {
			t.Run(fmt.Sprintf("%s.%s", name, suffix), run(testParams(t)))
		}
	}
}

func TestNamespaceInvalid(t *testing.T) {
	ts := newTestServer(t)

	c := ts.client(t)
	c.send("0/nope,")
	assert.Equal(t, `4/nope,{"message":"Invalid namespace"}`, c.next())

	// the main namespace still works on the same connection
	c.connect("/")
}

func TestNamespaceMultiplexing(t *testing.T) {
	ts := newTestServer(t)

	chat, news := ts.Of("/chat"), ts.Of("news")
	assert.Equal(t, "/news", news.Name())

	c := ts.client(t)
	chatID := c.connect("/chat")
	newsID := c.connect("/news")
	assert.NotEqual(t, chatID, newsID)

	require.NoError(t, chat.Emit("hello", "chat"))
	require.NoError(t, news.Emit("hello", "news"))
	assert.Equal(t, []string{`2/chat,["hello","chat"]`, `2/news,["hello","news"]`}, c.until(`2/news,["hello","news"]`))

	// leaving one namespace keeps the other
	c.send("1/chat,")
	assert.Eventually(t, func() bool { return len(chat.Sockets()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Len(t, news.Sockets(), 1)

	// events for a namespace the client left are dropped
	c.send(`2/chat,["ignored"]`)
	require.NoError(t, news.Emit("still", "here"))
	assert.Equal(t, `2/news,["still","here"]`, c.next())
}

func TestNamespaceDynamic(t *testing.T) {
	ts := newTestServer(t, sio.WithCleanupEmptyChildNamespaces(true))

	parent := ts.OfRegexp(regexp.MustCompile(`^/dyn-\d+$`))
	conns := make(chan *sio.Socket, 2)
	parent.OnConnection(func(s *sio.Socket) { conns <- s })

	var used []string
	parent.Use(func(s *sio.Socket, next func(error)) {
		used = append(used, s.Namespace().Name())
		next(nil)
	})

	ts.OfFunc(func(name string, auth map[string]interface{}) bool { return auth["token"] == "abc" })

	c := ts.client(t)
	c.connect("/dyn-1")
	s := connected(t, conns)
	assert.Equal(t, "/dyn-1", s.Namespace().Name())
	assert.Equal(t, []string{"/dyn-1"}, used)

	require.Len(t, parent.Children(), 1)
	assert.Equal(t, "/dyn-1", parent.Children()[0].Name())

	c.send("0/dyn-x,")
	assert.Equal(t, `4/dyn-x,{"message":"Invalid namespace"}`, c.next())

	c.send(`0/private,{"token":"abc"}`)
	assert.Regexp(t, `^0/private,\{"sid":".+"\}$`, c.next())

	require.NoError(t, parent.Emit("to", "children"))
	assert.Equal(t, `2/dyn-1,["to","children"]`, c.next())

	// the empty child is removed, a new connection creates it again
	c.send("1/dyn-1,")
	assert.Eventually(t, func() bool { return len(parent.Children()) == 0 }, time.Second, 5*time.Millisecond)

	c.connect("/dyn-1")
	connected(t, conns)
	assert.Len(t, parent.Children(), 1)
}

func TestNamespaceConnectTimeout(t *testing.T) {
	ts := newTestServer(t, sio.WithConnectTimeout(50*time.Millisecond))

	c := ts.client(t)
	start := time.Now()
	for !c.closed {
		c.poll()
	}
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Eventually(t, func() bool { return ts.Engine().ClientsCount() == 0 }, time.Second, 5*time.Millisecond)
}

// newCluster starts n servers whose namespaces share a broker.
func newCluster(t *testing.T, n int) []*testServer {
	t.Helper()

	broker := itst.NewBroker()
	newAdapter := func(nsp adaptor.Namespace) adaptor.Adapter {
		return redisadapter.NewAdapter(nsp, broker, redisadapter.WithRequestsTimeout(500*time.Millisecond))
	}

	servers := make([]*testServer, n)
	for i := range servers {
		servers[i] = newTestServer(t, sio.WithAdapter(newAdapter))
	}
	return servers
}

func TestNamespaceServerSideEmit(t *testing.T) {
	servers := newCluster(t, 3)

	received := make(chan []interface{}, 3)
	for _, ts := range servers {
		ts.OnServerSideEmit("hello", cabk.FuncAny(func(v ...interface{}) error {
			received <- v
			return nil
		}))
	}

	require.NoError(t, servers[0].ServerSideEmit("hello", "world", 1))
	for i := 0; i < 2; i++ {
		select {
		case v := <-received:
			assert.Equal(t, []interface{}{"world", int64(1)}, v)
		case <-time.After(2 * time.Second):
			t.Fatal("event not received")
		}
	}
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, received)

	assert.ErrorIs(t, servers[0].ServerSideEmit("connect"), sio.ErrReservedEventName)
}

func TestNamespaceServerSideEmitWithAck(t *testing.T) {
	servers := newCluster(t, 3)

	servers[1].OnServerSideEmit("count", cabk.FuncReply(func(...interface{}) []interface{} { return []interface{}{"one"} }))
	servers[2].OnServerSideEmit("count", cabk.Wrap{Func: func(ack cabk.Ack) {
		ack("two")
		ack("ignored")
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	replies, err := servers[0].ServerSideEmitWithAck(ctx, "count")
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{"one", "two"}, replies)

	// a server without a handler never replies
	servers[0].Of("/other")
	servers[1].Of("/other").OnServerSideEmit("count", cabk.FuncReply(func(...interface{}) []interface{} { return []interface{}{"one"} }))
	servers[2].Of("/other")

	replies, err = servers[0].Of("/other").ServerSideEmitWithAck(ctx, "count")
	assert.ErrorIs(t, err, redisadapter.ErrRequestTimeout)
	assert.Equal(t, []interface{}{"one"}, replies)

	single := newTestServer(t)
	replies, err = single.ServerSideEmitWithAck(ctx, "count")
	assert.NoError(t, err)
	assert.Empty(t, replies)
}
