package redis

import (
	"bytes"

	"github.com/socketio/socket.io-sub001/adaptor"
	siop "github.com/socketio/socket.io-sub001/protocol"
	"github.com/vmihailenco/msgpack"
)

type messageType int

const (
	broadcastMessage messageType = iota + 1
	socketsJoinMessage
	socketsLeaveMessage
	disconnectSocketsMessage
	fetchSocketsMessage
	fetchSocketsResponse
	broadcastClientCountResponse
	broadcastAckResponse
	serverSideEmitMessage
	serverSideEmitResponse
)

func (mt messageType) String() string {
	switch mt {
	case broadcastMessage:
		return "broadcast"
	case socketsJoinMessage:
		return "sockets join"
	case socketsLeaveMessage:
		return "sockets leave"
	case disconnectSocketsMessage:
		return "disconnect sockets"
	case fetchSocketsMessage:
		return "fetch sockets"
	case fetchSocketsResponse:
		return "fetch sockets response"
	case broadcastClientCountResponse:
		return "broadcast client count"
	case broadcastAckResponse:
		return "broadcast ack"
	case serverSideEmitMessage:
		return "server side emit"
	case serverSideEmitResponse:
		return "server side emit response"
	}
	return "unknown"
}

// message is the envelope of everything the servers exchange. Only the
// fields of its type are set.
type message struct {
	UID         string                    `msgpack:"uid"`
	Type        messageType               `msgpack:"type"`
	RequestID   string                    `msgpack:"requestId,omitempty"`
	Packet      *packet                   `msgpack:"packet,omitempty"`
	Opts        *adaptor.BroadcastOptions `msgpack:"opts,omitempty"`
	Rooms       []string                  `msgpack:"rooms,omitempty"`
	Close       bool                      `msgpack:"close,omitempty"`
	ClientCount int                       `msgpack:"clientCount,omitempty"`
	Ack         []interface{}             `msgpack:"ack,omitempty"`
	Sockets     []adaptor.SocketDetails   `msgpack:"sockets,omitempty"`
	Args        []interface{}             `msgpack:"args,omitempty"`
	Reply       interface{}               `msgpack:"reply,omitempty"`
}

type packet struct {
	Type uint8       `msgpack:"type"`
	Nsp  string      `msgpack:"nsp"`
	ID   *uint64     `msgpack:"id,omitempty"`
	Data interface{} `msgpack:"data,omitempty"`
}

func toWire(p siop.Packet) *packet {
	return &packet{Type: uint8(p.Type), Nsp: p.Namespace, ID: p.ID, Data: p.Data}
}

func (p *packet) packet() siop.Packet {
	return siop.Packet{Type: siop.PacketType(p.Type), Namespace: p.Nsp, ID: p.ID, Data: p.Data}
}

func encodeMessage(m message) ([]byte, error) {
	b, err := msgpack.Marshal(m)
	if err != nil {
		return nil, ErrMessageEncode.F(err)
	}
	return b, nil
}

func decodeMessage(b []byte) (message, error) {
	var m message
	if err := msgpack.NewDecoder(bytes.NewReader(b)).UseDecodeInterfaceLoose(true).Decode(&m); err != nil {
		return m, ErrMessageDecode.F(err)
	}
	return m, nil
}
