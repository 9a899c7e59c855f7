package protocol

import (
	"encoding/base64"
	"fmt"
	"io"

	rw "github.com/socketio/socket.io-sub001/internal/readwriter"
)

// PacketEncoder writes the text form of a packet: the type digit followed by
// the data. A binary message is written as 'b' followed by base64 data.
type PacketEncoder struct{ write *rw.Writer }

func NewPacketEncoder(w io.Writer) *PacketEncoder {
	if wtr, ok := w.(*rw.Writer); ok {
		return &PacketEncoder{write: wtr}
	}
	return &PacketEncoder{write: rw.NewWriter(w)}
}

func (enc *PacketEncoder) Encode(packet Packet) error {
	if !packet.T.Valid() {
		return ErrPacketEncode.F(packet.T, ErrInvalidPacketType.F(packet.T.Byte()))
	}

	switch data := packet.D.(type) {
	case nil:
		enc.write.Byte(packet.T.Byte()).OnErrF(ErrPacketEncode, packet.T)
	case string:
		enc.write.Byte(packet.T.Byte()).OnErrF(ErrPacketEncode, packet.T)
		enc.write.String(data).OnErrF(ErrPacketEncode, packet.T)
	case []byte:
		if packet.T != MessagePacket {
			return ErrPacketEncode.F(packet.T, ErrInvalidPacketData.F(packet.T))
		}
		enc.write.Byte(binaryMarker).OnErrF(ErrPacketEncode, packet.T)
		enc.write.Base64(base64.StdEncoding, data).OnErrF(ErrPacketEncode, packet.T)
	case *Handshake:
		b, err := data.MarshalText()
		if err != nil {
			return ErrPacketEncode.F(packet.T, err)
		}
		enc.write.Byte(packet.T.Byte()).OnErrF(ErrPacketEncode, packet.T)
		enc.write.Bytes(b).OnErrF(ErrPacketEncode, packet.T)
	default:
		return ErrPacketEncode.F(packet.T, ErrInvalidPacketData.F(packet.T)).KV("data", fmt.Sprintf("%T", data))
	}

	return enc.write.Err()
}

// PacketDecoder reads the text form of exactly one packet from its reader.
type PacketDecoder struct{ r io.Reader }

func NewPacketDecoder(r io.Reader) *PacketDecoder { return &PacketDecoder{r: r} }

func (dec *PacketDecoder) Decode(packet *Packet) error {
	p, err := io.ReadAll(dec.r)
	if err != nil {
		return ErrPacketDecode.F(err)
	}
	*packet, err = DecodePacket(p)
	return err
}

// DecodePacket parses the text form of one packet.
func DecodePacket(p []byte) (Packet, error) {
	if len(p) == 0 {
		return Packet{}, ErrPacketDecode.F(ErrEmptyPacket)
	}

	if p[0] == binaryMarker {
		data := make([]byte, base64.StdEncoding.DecodedLen(len(p)-1))
		n, err := base64.StdEncoding.Decode(data, p[1:])
		if err != nil {
			return Packet{}, ErrPacketDecode.F(err)
		}
		return Packet{T: MessagePacket, D: data[:n]}, nil
	}

	if p[0] < '0' || p[0] > '9' {
		return Packet{}, ErrPacketDecode.F(ErrInvalidPacketType.F(p[0]))
	}
	pt := PacketType(p[0] - '0')
	if !pt.Valid() {
		return Packet{}, ErrPacketDecode.F(ErrInvalidPacketType.F(p[0]))
	}

	packet := Packet{T: pt}
	if len(p) == 1 {
		return packet, nil
	}

	switch pt {
	case OpenPacket:
		handshake := new(Handshake)
		if err := handshake.UnmarshalText(p[1:]); err != nil {
			return Packet{}, ErrPacketDecode.F(err)
		}
		packet.D = handshake
	default:
		packet.D = string(p[1:])
	}
	return packet, nil
}

// DecodeBinaryPacket wraps a raw binary frame as a binary message.
func DecodeBinaryPacket(p []byte) Packet {
	data := make([]byte, len(p))
	copy(data, p)
	return Packet{T: MessagePacket, D: data}
}
