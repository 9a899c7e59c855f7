package protocol

import (
	"fmt"
	"strconv"
)

type PacketType byte

const (
	ConnectPacket PacketType = iota
	DisconnectPacket
	EventPacket
	AckPacket
	ConnectErrorPacket
	BinaryEventPacket
	BinaryAckPacket
)

func (pt PacketType) Byte() byte  { return byte(pt) + '0' }
func (pt PacketType) Valid() bool { return pt <= BinaryAckPacket }

func (pt PacketType) IsBinary() bool { return pt == BinaryEventPacket || pt == BinaryAckPacket }

// Binary returns the binary variant of an event or ack.
func (pt PacketType) Binary() PacketType {
	switch pt {
	case EventPacket:
		return BinaryEventPacket
	case AckPacket:
		return BinaryAckPacket
	}
	return pt
}

func (pt PacketType) String() string {
	switch pt {
	case ConnectPacket:
		return "CONNECT"
	case DisconnectPacket:
		return "DISCONNECT"
	case EventPacket:
		return "EVENT"
	case AckPacket:
		return "ACK"
	case ConnectErrorPacket:
		return "CONNECT_ERROR"
	case BinaryEventPacket:
		return "BINARY_EVENT"
	case BinaryAckPacket:
		return "BINARY_ACK"
	}
	return "UNKNOWN(" + strconv.Itoa(int(pt)) + ")"
}

const DefaultNamespace = "/"

// Packet is one socket.io packet. ID is nil when no acknowledgement is
// requested. Attachments is only set on the binary variants.
type Packet struct {
	Type        PacketType
	Namespace   string
	ID          *uint64
	Data        interface{}
	Attachments int
}

func AckID(id uint64) *uint64 { return &id }

func (p Packet) String() string {
	id := "-"
	if p.ID != nil {
		id = strconv.FormatUint(*p.ID, 10)
	}
	return fmt.Sprintf("%s %s id:%s %v", p.Type, p.Namespace, id, p.Data)
}

// Valid reports whether the payload has the shape its type requires.
func (p Packet) Valid() bool {
	switch p.Type {
	case ConnectPacket:
		return p.Data == nil || isObject(p.Data)
	case DisconnectPacket:
		return p.Data == nil
	case ConnectErrorPacket:
		_, isString := p.Data.(string)
		return isString || isObject(p.Data)
	case EventPacket, BinaryEventPacket:
		list, ok := p.Data.([]interface{})
		if !ok || len(list) == 0 {
			return false
		}
		_, isString := list[0].(string)
		return isString
	case AckPacket, BinaryAckPacket:
		_, ok := p.Data.([]interface{})
		return ok
	}
	return false
}

func isObject(v interface{}) bool {
	_, ok := v.(map[string]interface{})
	return ok
}
