package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/socketio/socket.io-sub001/adaptor"
	itst "github.com/socketio/socket.io-sub001/internal/test"
	siop "github.com/socketio/socket.io-sub001/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, ids ...string) (*Adapter, map[string]*itst.Socket) {
	t.Helper()

	nsp := itst.NewNamespace("/")
	a := NewAdapter(nsp)
	sockets := make(map[string]*itst.Socket)
	for _, id := range ids {
		s := &itst.Socket{Sid: id, Adapter: a}
		nsp.Add(s)
		a.AddAll(id, id)
		sockets[id] = s
	}
	return a, sockets
}

// inverse checks that every room membership is mirrored in the socket map
// and that no room is empty.
func inverse(t *testing.T, a *Adapter) {
	t.Helper()

	a.ṙ.RLock()
	defer a.ṙ.RUnlock()

	for room, ids := range a.rooms {
		assert.NotEmpty(t, ids, "empty room %q", room)
		for id := range ids {
			_, ok := a.sids[id][room]
			assert.True(t, ok, "%s in room %s but not in its room set", id, room)
		}
	}
	for id, rooms := range a.sids {
		for room := range rooms {
			_, ok := a.rooms[room][id]
			assert.True(t, ok, "room %s listed for %s but missing the member", room, id)
		}
	}
}

func TestAdapterMembership(t *testing.T) {
	var opts = []func(*testing.T){}

	type (
		testFn          func(*testing.T)
		testParamsInFn  func(*Adapter, []func(*Adapter), map[string][]string) testFn
		testParamsOutFn func(*testing.T) (*Adapter, []func(*Adapter), map[string][]string)
	)

	runWithOptions := map[string]testParamsInFn{
		"Rooms": func(a *Adapter, steps []func(*Adapter), want map[string][]string) testFn {
			return func(t *testing.T) {
				for _, opt := range opts {
					opt(t)
				}

				for _, step := range steps {
					step(a)
					inverse(t, a)
				}

				have := map[string][]string{}
				for _, room := range a.Rooms() {
					have[room] = a.Sockets(room)
				}
				assert.Equal(t, want, have)
			}
		},
	}

	spec := map[string]testParamsOutFn{
		"Join": func(t *testing.T) (*Adapter, []func(*Adapter), map[string][]string) {
			a, _ := newTestAdapter(t)
			return a, []func(*Adapter){
				func(a *Adapter) { a.AddAll("s1", "s1", "R") },
				func(a *Adapter) { a.AddAll("s2", "s2", "R") },
			}, map[string][]string{"s1": {"s1"}, "s2": {"s2"}, "R": {"s1", "s2"}}
		},
		"Join Twice": func(t *testing.T) (*Adapter, []func(*Adapter), map[string][]string) {
			a, _ := newTestAdapter(t)
			return a, []func(*Adapter){
				func(a *Adapter) { a.AddAll("s1", "R") },
				func(a *Adapter) { a.AddAll("s1", "R", "R") },
			}, map[string][]string{"R": {"s1"}}
		},
		"Leave Deletes Empty Room": func(t *testing.T) (*Adapter, []func(*Adapter), map[string][]string) {
			a, _ := newTestAdapter(t)
			return a, []func(*Adapter){
				func(a *Adapter) { a.AddAll("s1", "s1", "R") },
				func(a *Adapter) { a.Del("s1", "R") },
				func(a *Adapter) { a.Del("s1", "R") },
				func(a *Adapter) { a.Del("s9", "nowhere") },
			}, map[string][]string{"s1": {"s1"}}
		},
		"Leave All": func(t *testing.T) (*Adapter, []func(*Adapter), map[string][]string) {
			a, _ := newTestAdapter(t)
			return a, []func(*Adapter){
				func(a *Adapter) { a.AddAll("s1", "s1", "R", "Q") },
				func(a *Adapter) { a.AddAll("s2", "s2", "R") },
				func(a *Adapter) { a.DelAll("s1") },
				func(a *Adapter) { a.DelAll("s1") },
			}, map[string][]string{"s2": {"s2"}, "R": {"s2"}}
		},
	}

	for name, testParams := range spec {
		for suffix, run := range runWithOptions {
			t.Run(fmt.Sprintf("%s.%s", name, suffix), run(testParams(t)))
		}
	}
}

func TestAdapterRoomEvents(t *testing.T) {
	a, _ := newTestAdapter(t)

	var have []string
	a.OnCreateRoom(func(room Room) { have = append(have, "create "+room) })
	a.OnDeleteRoom(func(room Room) { have = append(have, "delete "+room) })
	a.OnJoinRoom(func(m Membership) { have = append(have, "join "+m.Room+" "+m.ID) })
	a.OnLeaveRoom(func(m Membership) { have = append(have, "leave "+m.Room+" "+m.ID) })

	a.AddAll("s1", "R")
	a.AddAll("s2", "R")
	a.AddAll("s2", "R")
	a.Del("s1", "R")
	a.DelAll("s2")

	assert.Equal(t, []string{
		"create R", "join R s1",
		"join R s2",
		"leave R s1",
		"leave R s2", "delete R",
	}, have)
}

func TestAdapterBroadcast(t *testing.T) {
	var opts = []func(*testing.T){}

	type (
		testFn          func(*testing.T)
		testParamsInFn  func(adaptor.BroadcastOptions, []string) testFn
		testParamsOutFn func(*testing.T) (adaptor.BroadcastOptions, []string)
	)

	event := siop.Packet{Type: siop.EventPacket, Data: []interface{}{"hello", "world"}}

	runWithOptions := map[string]testParamsInFn{
		"Broadcast": func(bo adaptor.BroadcastOptions, want []string) testFn {
			return func(t *testing.T) {
				for _, opt := range opts {
					opt(t)
				}

				a, sockets := newTestAdapter(t, "A", "B", "C")
				a.AddAll("A", "R")
				a.AddAll("B", "R")
				a.AddAll("C", "Q")

				a.Broadcast(event, bo)

				var have []string
				for _, id := range []string{"A", "B", "C"} {
					msgs := sockets[id].Messages()
					if len(msgs) == 0 {
						continue
					}
					require.Len(t, msgs, 1)
					assert.Equal(t, []interface{}{`2["hello","world"]`}, msgs[0])
					have = append(have, id)
				}
				assert.Equal(t, want, have)
			}
		},
	}

	spec := map[string]testParamsOutFn{
		"Everyone": func(*testing.T) (adaptor.BroadcastOptions, []string) {
			return adaptor.BroadcastOptions{}, []string{"A", "B", "C"}
		},
		"Room": func(*testing.T) (adaptor.BroadcastOptions, []string) {
			return adaptor.BroadcastOptions{Rooms: []string{"R"}}, []string{"A", "B"}
		},
		"Rooms Overlap": func(*testing.T) (adaptor.BroadcastOptions, []string) {
			return adaptor.BroadcastOptions{Rooms: []string{"R", "A", "Q"}}, []string{"A", "B", "C"}
		},
		"Room Except Socket": func(*testing.T) (adaptor.BroadcastOptions, []string) {
			return adaptor.BroadcastOptions{Rooms: []string{"R"}, Except: []string{"A"}}, []string{"B"}
		},
		"Everyone Except Room": func(*testing.T) (adaptor.BroadcastOptions, []string) {
			return adaptor.BroadcastOptions{Except: []string{"R"}}, []string{"C"}
		},
		"Unknown Room": func(*testing.T) (adaptor.BroadcastOptions, []string) {
			return adaptor.BroadcastOptions{Rooms: []string{"nowhere"}}, nil
		},
	}

	for name, testParams := range spec {
		for suffix, run := range runWithOptions {
			t.Run(fmt.Sprintf("%s.%s", name, suffix), run(testParams(t)))
		}
	}
}

func TestAdapterBroadcastWithAck(t *testing.T) {
	a, sockets := newTestAdapter(t, "A", "B", "C")

	var (
		ʘ       sync.Mutex
		count   int
		replies [][]interface{}
	)
	a.BroadcastWithAck(
		siop.Packet{Type: siop.EventPacket, Data: []interface{}{"ping"}},
		adaptor.BroadcastOptions{Except: []string{"C"}},
		func(n int) { count = n },
		func(args []interface{}) {
			ʘ.Lock()
			replies = append(replies, args)
			ʘ.Unlock()
		},
	)
	assert.Equal(t, 2, count)
	assert.Equal(t, []interface{}{`20["ping"]`}, sockets["A"].Messages()[0])

	assert.True(t, sockets["A"].Ack(0, "a"))
	assert.True(t, sockets["B"].Ack(0, "b"))
	assert.False(t, sockets["C"].Ack(0, "c"))
	assert.ElementsMatch(t, [][]interface{}{{"a"}, {"b"}}, replies)
}

func TestAdapterSocketOperations(t *testing.T) {
	a, sockets := newTestAdapter(t, "A", "B")
	a.AddAll("A", "R")

	details, err := a.FetchSockets(context.Background(), adaptor.BroadcastOptions{Rooms: []string{"R"}})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "A", details[0].ID)
	assert.Equal(t, []string{"A", "R"}, details[0].Rooms)

	a.AddSockets(adaptor.BroadcastOptions{}, "all")
	assert.Equal(t, []string{"A", "B"}, a.Sockets("all"))

	a.DelSockets(adaptor.BroadcastOptions{Rooms: []string{"R"}}, "all", "R")
	assert.Equal(t, []string{"B"}, a.Sockets("all"))
	assert.Empty(t, a.Sockets("R"))

	a.DisconnectSockets(adaptor.BroadcastOptions{Rooms: []string{"B"}}, true)
	assert.True(t, sockets["B"].Disconnected)
	assert.True(t, sockets["B"].Closed)
	assert.False(t, sockets["A"].Disconnected)
	assert.Nil(t, a.SocketRooms("B"))

	n, err := a.ServerCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	inverse(t, a)
}

func TestAdapterServerSideEmit(t *testing.T) {
	nsp := itst.NewNamespace("/")
	a := NewAdapter(nsp)

	require.NoError(t, a.ServerSideEmit([]interface{}{"hello"}, nil))

	var (
		called  bool
		replies []interface{}
	)
	require.NoError(t, a.ServerSideEmit([]interface{}{"hello", 1}, func(err error, r []interface{}) {
		assert.NoError(t, err)
		called, replies = true, r
	}))
	assert.True(t, called)
	assert.Empty(t, replies)
	assert.Empty(t, nsp.ServerSideEmits())
}
