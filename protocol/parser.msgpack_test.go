package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack"
)

func TestMsgpackParserRoundTrip(t *testing.T) {
	in := Packet{
		Type:      EventPacket,
		Namespace: "/chat",
		ID:        AckID(3),
		Data:      []interface{}{"file", []byte{0, 1, 2}, map[string]interface{}{"name": "a.bin"}},
	}

	wire, err := MsgpackParser{}.NewEncoder().Encode(in)
	require.NoError(t, err)
	require.Len(t, wire, 1)
	require.IsType(t, []byte{}, wire[0])

	have, err := MsgpackParser{}.NewDecoder().Add(wire[0])
	require.NoError(t, err)
	assert.Equal(t, in, *have)
}

func TestMsgpackParserDefaultNamespace(t *testing.T) {
	wire, err := MsgpackParser{}.NewEncoder().Encode(Packet{Type: ConnectPacket})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(wire[0].([]byte), &raw))
	assert.Equal(t, "/", raw["nsp"])
	assert.NotContains(t, raw, "id")
	assert.NotContains(t, raw, "data")

	have, err := MsgpackParser{}.NewDecoder().Add(wire[0])
	require.NoError(t, err)
	assert.Equal(t, Packet{Type: ConnectPacket, Namespace: "/"}, *have)
}

func TestMsgpackParserDecodeErrors(t *testing.T) {
	dec := MsgpackParser{}.NewDecoder()

	_, err := dec.Add(`2["text"]`)
	assert.ErrorIs(t, err, ErrUnknownInput)

	_, err = dec.Add([]byte{0xc1})
	assert.ErrorIs(t, err, ErrPayloadUnmarshal)

	b, _ := msgpack.Marshal(map[string]interface{}{"type": 9, "nsp": "/"})
	_, err = dec.Add(b)
	assert.ErrorIs(t, err, ErrInvalidPacketType)

	b, _ = msgpack.Marshal(map[string]interface{}{"type": 2, "nsp": "/", "data": "not an array"})
	_, err = dec.Add(b)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
