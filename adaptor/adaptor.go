// Package adaptor is the contract between a namespace and the room adapter
// that keeps its membership and runs its broadcasts. The in-process adapter
// lives in adaptor/memory; adaptor/redis fans out across servers.
package adaptor

import (
	"context"
	"time"

	siop "github.com/socketio/socket.io-sub001/protocol"
)

type (
	Room     = string
	SocketID = string
)

// BroadcastFlags change how a broadcast is delivered. Timeout only matters
// for broadcasts that wait for acknowledgements and for remote requests.
type BroadcastFlags struct {
	Volatile bool          `msgpack:"volatile,omitempty"`
	Compress *bool         `msgpack:"compress,omitempty"`
	Local    bool          `msgpack:"local,omitempty"`
	Binary   bool          `msgpack:"binary,omitempty"`
	Timeout  time.Duration `msgpack:"timeout,omitempty"`
}

// Compressed is the Compress flag, true when it was never set.
func (f BroadcastFlags) Compressed() bool { return f.Compress == nil || *f.Compress }

// BroadcastOptions selects the target sockets: the members of Rooms (every
// socket when Rooms is empty) minus the members of Except.
type BroadcastOptions struct {
	Rooms  []Room         `msgpack:"rooms"`
	Except []Room         `msgpack:"except"`
	Flags  BroadcastFlags `msgpack:"flags"`
}

// Handshake is what the server recorded about the request that opened the
// socket's connection.
type Handshake struct {
	Headers map[string][]string    `msgpack:"headers"`
	Time    string                 `msgpack:"time"`
	Address string                 `msgpack:"address"`
	XDomain bool                   `msgpack:"xdomain"`
	Secure  bool                   `msgpack:"secure"`
	Issued  int64                  `msgpack:"issued"`
	URL     string                 `msgpack:"url"`
	Query   map[string][]string    `msgpack:"query"`
	Auth    map[string]interface{} `msgpack:"auth"`
}

// SocketDetails describes a socket that may live on another server.
type SocketDetails struct {
	ID        SocketID    `msgpack:"id"`
	Handshake Handshake   `msgpack:"handshake"`
	Rooms     []Room      `msgpack:"rooms"`
	Data      interface{} `msgpack:"data"`
}

// Socket is a connected socket as seen by the adapter.
type Socket interface {
	ID() SocketID
	Details() SocketDetails

	Join(rooms ...Room)
	Leave(room Room)
	Disconnect(close bool)

	// Deliver sends packet, already encoded for the wire as encoded.
	Deliver(packet siop.Packet, encoded []interface{}, flags BroadcastFlags)
	// SetAck registers fn for the acknowledgement with id.
	SetAck(id uint64, fn func([]interface{}))
}

// Namespace is the side of a namespace the adapter needs.
type Namespace interface {
	Name() string
	Socket(SocketID) (Socket, bool)
	Encoder() siop.Encoder
	NextAckID() uint64

	// OnServerSideEmit receives the args (event name first) another server
	// sent with ServerSideEmit. reply is nil unless that server waits for
	// an answer.
	OnServerSideEmit(args []interface{}, reply func(interface{}))
}

// Adapter stores room membership for one namespace and delivers
// broadcasts to its sockets.
type Adapter interface {
	Init() error
	Close() error

	// ServerCount is the number of servers sharing this namespace.
	ServerCount(context.Context) (int, error)

	AddAll(id SocketID, rooms ...Room)
	Del(id SocketID, room Room)
	DelAll(id SocketID)

	Broadcast(packet siop.Packet, opts BroadcastOptions)
	// BroadcastWithAck reports the number of targets on each server through
	// clientCount, then every acknowledgement through ack.
	BroadcastWithAck(packet siop.Packet, opts BroadcastOptions, clientCount func(int), ack func([]interface{}))

	Rooms() []Room
	Sockets(rooms ...Room) []SocketID
	SocketRooms(id SocketID) []Room

	FetchSockets(ctx context.Context, opts BroadcastOptions) ([]SocketDetails, error)
	AddSockets(opts BroadcastOptions, rooms ...Room)
	DelSockets(opts BroadcastOptions, rooms ...Room)
	DisconnectSockets(opts BroadcastOptions, close bool)

	// ServerSideEmit sends args to the same namespace of the other servers.
	// A non nil ack gets one reply per server, or an error with the replies
	// received before the request timed out.
	ServerSideEmit(args []interface{}, ack func(error, []interface{})) error
}

// New makes the adapter of a namespace.
type New func(Namespace) Adapter
