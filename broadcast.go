package socketio

import (
	"context"
	"sync"
	"time"

	"github.com/socketio/socket.io-sub001/adaptor"
	cabk "github.com/socketio/socket.io-sub001/callback"
	siop "github.com/socketio/socket.io-sub001/protocol"
)

// BroadcastOperator selects the sockets of a broadcast. Every method returns
// a new operator, the receiver is never changed.
type BroadcastOperator struct {
	adapter adaptor.Adapter
	rooms   []Room
	except  []Room
	flags   adaptor.BroadcastFlags
}

func newBroadcastOperator(adapter adaptor.Adapter) *BroadcastOperator {
	return &BroadcastOperator{adapter: adapter}
}

func (op *BroadcastOperator) clone() *BroadcastOperator {
	rtn := *op
	rtn.rooms = append([]Room(nil), op.rooms...)
	rtn.except = append([]Room(nil), op.except...)
	return &rtn
}

// To targets the members of rooms. Calls add up.
func (op *BroadcastOperator) To(rooms ...Room) *BroadcastOperator {
	rtn := op.clone()
	rtn.rooms = appendRooms(rtn.rooms, rooms...)
	return rtn
}

func (op *BroadcastOperator) In(rooms ...Room) *BroadcastOperator { return op.To(rooms...) }

// Except leaves the members of rooms out.
func (op *BroadcastOperator) Except(rooms ...Room) *BroadcastOperator {
	rtn := op.clone()
	rtn.except = appendRooms(rtn.except, rooms...)
	return rtn
}

func (op *BroadcastOperator) Compress(compress bool) *BroadcastOperator {
	rtn := op.clone()
	rtn.flags.Compress = &compress
	return rtn
}

// Volatile drops the packet for every socket whose connection is not
// writable.
func (op *BroadcastOperator) Volatile() *BroadcastOperator {
	rtn := op.clone()
	rtn.flags.Volatile = true
	return rtn
}

// Local keeps the broadcast on this server.
func (op *BroadcastOperator) Local() *BroadcastOperator {
	rtn := op.clone()
	rtn.flags.Local = true
	return rtn
}

// Timeout is how long an Emit with an acknowledgement callback waits.
func (op *BroadcastOperator) Timeout(d time.Duration) *BroadcastOperator {
	rtn := op.clone()
	rtn.flags.Timeout = d
	return rtn
}

func (op *BroadcastOperator) opts() adaptor.BroadcastOptions {
	return adaptor.BroadcastOptions{Rooms: op.rooms, Except: op.except, Flags: op.flags}
}

// Emit broadcasts an event. With a trailing cabk.FuncAck the callback gets
// the acknowledgement of every target, or ErrAckTimeout and the
// ones that arrived in time. A timeout must be set for that.
func (op *BroadcastOperator) Emit(event Event, data ...interface{}) error {
	if _, ok := reservedEvents[event]; ok {
		return ErrReservedEventName.F(event)
	}

	var fn cabk.FuncAck
	if n := len(data); n > 0 {
		if ack, ok := ackFunc(data[n-1]); ok {
			fn, data = ack, data[:n-1]
		}
	}

	packet := siop.Packet{Type: siop.EventPacket, Data: append([]interface{}{event}, data...)}
	if fn == nil {
		op.adapter.Broadcast(packet, op.opts())
		return nil
	}

	if op.flags.Timeout <= 0 {
		return ErrBroadcastAckNoTimeout
	}

	agg := &ackAggregate{expectedServers: -1, fn: fn}
	agg.ʘ.Lock()
	agg.timer = time.AfterFunc(op.flags.Timeout, agg.timeout)
	agg.ʘ.Unlock()

	op.adapter.BroadcastWithAck(packet, op.opts(), agg.clientCount, agg.ack)

	ctx, cancel := context.WithTimeout(context.Background(), op.flags.Timeout)
	defer cancel()
	if n, err := op.adapter.ServerCount(ctx); err == nil {
		agg.serverCount(n)
	}
	return nil
}

// EmitWithAck is Emit waiting for the acknowledgements. Without a timeout
// the deadline of ctx is used.
func (op *BroadcastOperator) EmitWithAck(ctx context.Context, event Event, data ...interface{}) ([]interface{}, error) {
	if op.flags.Timeout <= 0 {
		deadline, ok := ctx.Deadline()
		if !ok {
			return nil, ErrBroadcastAckNoTimeout
		}
		op = op.Timeout(time.Until(deadline))
	}

	type result struct {
		args []interface{}
		err  error
	}
	ch := make(chan result, 1)
	fn := cabk.FuncAck(func(err error, args ...interface{}) { ch <- result{args: args, err: err} })

	if err := op.Emit(event, append(data[:len(data):len(data)], fn)...); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.args, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FetchSockets returns the matching sockets of every server.
func (op *BroadcastOperator) FetchSockets(ctx context.Context) ([]*RemoteSocket, error) {
	details, err := op.adapter.FetchSockets(ctx, op.opts())
	if err != nil {
		return nil, err
	}

	list := make([]*RemoteSocket, len(details))
	for i, d := range details {
		list[i] = &RemoteSocket{
			ID:        d.ID,
			Handshake: d.Handshake,
			Rooms:     d.Rooms,
			Data:      d.Data,
			operator:  &BroadcastOperator{adapter: op.adapter, rooms: []Room{d.ID}},
		}
	}
	return list, nil
}

// SocketsJoin makes the matching sockets join rooms.
func (op *BroadcastOperator) SocketsJoin(rooms ...Room) { op.adapter.AddSockets(op.opts(), rooms...) }

// SocketsLeave makes the matching sockets leave rooms.
func (op *BroadcastOperator) SocketsLeave(rooms ...Room) { op.adapter.DelSockets(op.opts(), rooms...) }

func (op *BroadcastOperator) DisconnectSockets(close bool) {
	op.adapter.DisconnectSockets(op.opts(), close)
}

func appendRooms(list []Room, rooms ...Room) []Room {
	for _, room := range rooms {
		found := false
		for _, have := range list {
			if have == room {
				found = true
				break
			}
		}
		if !found {
			list = append(list, room)
		}
	}
	return list
}

// ackAggregate collects the acknowledgements of a broadcast. It completes
// once every server reported its client count and every client answered.
type ackAggregate struct {
	ʘ               sync.Mutex
	done            bool
	expectedServers int
	actualServers   int
	expectedClients int
	responses       []interface{}
	timer           *time.Timer
	fn              cabk.FuncAck
}

func (agg *ackAggregate) serverCount(n int) {
	agg.ʘ.Lock()
	agg.expectedServers = n
	agg.check()
}

func (agg *ackAggregate) clientCount(n int) {
	agg.ʘ.Lock()
	agg.expectedClients += n
	agg.actualServers++
	agg.check()
}

func (agg *ackAggregate) ack(args []interface{}) {
	agg.ʘ.Lock()
	if agg.done {
		agg.ʘ.Unlock()
		return
	}
	var response interface{}
	if len(args) > 0 {
		response = args[0]
	}
	agg.responses = append(agg.responses, response)
	agg.check()
}

// check is called locked and unlocks.
func (agg *ackAggregate) check() {
	if agg.done || agg.expectedServers != agg.actualServers || len(agg.responses) != agg.expectedClients {
		agg.ʘ.Unlock()
		return
	}
	agg.done = true
	if agg.timer != nil {
		agg.timer.Stop()
	}
	responses := append([]interface{}{}, agg.responses...)
	agg.ʘ.Unlock()

	agg.fn(nil, responses...)
}

func (agg *ackAggregate) timeout() {
	agg.ʘ.Lock()
	if agg.done {
		agg.ʘ.Unlock()
		return
	}
	agg.done = true
	responses := append([]interface{}{}, agg.responses...)
	agg.ʘ.Unlock()

	agg.fn(ErrAckTimeout, responses...)
}

// RemoteSocket is a socket found by FetchSockets, possibly on another
// server. Its methods go through the adapter.
type RemoteSocket struct {
	ID        SocketID
	Handshake adaptor.Handshake
	Rooms     []Room
	Data      interface{}

	operator *BroadcastOperator
}

func (rs *RemoteSocket) Emit(event Event, data ...interface{}) error {
	return rs.operator.Emit(event, data...)
}

func (rs *RemoteSocket) Timeout(d time.Duration) *BroadcastOperator { return rs.operator.Timeout(d) }
func (rs *RemoteSocket) Join(rooms ...Room)                         { rs.operator.SocketsJoin(rooms...) }
func (rs *RemoteSocket) Leave(rooms ...Room)                        { rs.operator.SocketsLeave(rooms...) }
func (rs *RemoteSocket) Disconnect(close bool)                      { rs.operator.DisconnectSockets(close) }
