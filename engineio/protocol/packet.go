// Package protocol is the engine.io wire codec: single packets, length
// prefixed payloads of packets, and the handshake sent with the open packet.
package protocol

const (
	OpenPacket PacketType = iota
	ClosePacket
	PingPacket
	PongPacket
	MessagePacket
	UpgradePacket
	NoopPacket
)

// binaryMarker replaces the type digit of a binary message carried inside a
// text payload.
const binaryMarker = 'b'

// Packet is one engine.io packet. D is nil, a string, a []byte (a binary
// message) or a *Handshake (an open packet).
type Packet struct {
	T PacketType  `json:"type"`
	D interface{} `json:"data"`

	// Compress lets the transport compress the packet. It is not part of
	// the wire format.
	Compress bool `json:"-"`
}

func (pac Packet) IsBinary() bool { _, ok := pac.D.([]byte); return ok }

func (pac Packet) String() string {
	switch data := pac.D.(type) {
	case nil:
		return pac.T.String()
	case string:
		return pac.T.String() + " " + data
	case []byte:
		return pac.T.String() + " <binary>"
	}
	return pac.T.String() + " <data>"
}

type PacketType byte

func (pt PacketType) Byte() byte { return byte(pt) + '0' }
func (pt PacketType) Valid() bool { return pt <= NoopPacket }

func (pt PacketType) String() string {
	switch pt {
	case OpenPacket:
		return "open"
	case ClosePacket:
		return "close"
	case PingPacket:
		return "ping"
	case PongPacket:
		return "pong"
	case MessagePacket:
		return "message"
	case UpgradePacket:
		return "upgrade"
	case NoopPacket:
		return "noop"
	}
	return "unknown packet type"
}

const ProbeData = "probe"
