package protocol

import (
	"bytes"

	"github.com/vmihailenco/msgpack"
)

// MsgpackParser sends every packet as one binary message. Binary data is
// carried inline so packets never have attachments.
type MsgpackParser struct{}

func (MsgpackParser) NewEncoder() Encoder { return msgpackEncoder{} }
func (MsgpackParser) NewDecoder() Decoder { return msgpackDecoder{} }

type msgpackPacket struct {
	Type PacketType  `msgpack:"type"`
	Nsp  string      `msgpack:"nsp"`
	Data interface{} `msgpack:"data,omitempty"`
	ID   *uint64     `msgpack:"id,omitempty"`
}

type msgpackEncoder struct{}

func (msgpackEncoder) Encode(packet Packet) ([]interface{}, error) {
	nsp := packet.Namespace
	if nsp == "" {
		nsp = DefaultNamespace
	}

	b, err := msgpack.Marshal(msgpackPacket{Type: packet.Type, Nsp: nsp, Data: packet.Data, ID: packet.ID})
	if err != nil {
		return nil, ErrEncode.F(packet.Type, ErrPayloadMarshal.F(err))
	}
	return []interface{}{b}, nil
}

type msgpackDecoder struct{}

func (msgpackDecoder) Reset() {}

func (msgpackDecoder) Add(msg interface{}) (*Packet, error) {
	p, ok := msg.([]byte)
	if !ok {
		return nil, ErrDecode.F(ErrUnknownInput.F(msg))
	}

	var wire msgpackPacket
	dec := msgpack.NewDecoder(bytes.NewReader(p)).UseDecodeInterfaceLoose(true)
	if err := dec.Decode(&wire); err != nil {
		return nil, ErrDecode.F(ErrPayloadUnmarshal.F(err))
	}
	if !wire.Type.Valid() {
		return nil, ErrDecode.F(ErrInvalidPacketType.F(wire.Type.Byte()))
	}

	packet := &Packet{Type: wire.Type, Namespace: wire.Nsp, ID: wire.ID, Data: wire.Data}
	if packet.Namespace == "" {
		packet.Namespace = DefaultNamespace
	}
	if !packet.Valid() {
		return nil, ErrDecode.F(ErrInvalidPayload.F(packet.Type))
	}
	return packet, nil
}
