package protocol

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayload(t *testing.T) {
	var opts = []func(*testing.T){}

	type (
		testFn          func(*testing.T)
		testParamsInFn  func(Payload, string, error) testFn
		testParamsOutFn func(*testing.T) (Payload, string, error)
	)

	runWithOptions := map[string]testParamsInFn{
		"Decode": func(output Payload, input string, xErr error) testFn {
			return func(t *testing.T) {
				for _, opt := range opts {
					opt(t)
				}

				t.Parallel()

				var have Payload
				var err = NewPayloadDecoder(strings.NewReader(input)).Decode(&have)

				assert.ErrorIs(t, err, xErr)
				assert.Equal(t, output, have)
			}
		},
		"Encode": func(input Payload, output string, xErr error) testFn {
			return func(t *testing.T) {
				for _, opt := range opts {
					opt(t)
				}

				t.Parallel()

				var have = new(bytes.Buffer)
				var err = NewPayloadEncoder(have).Encode(input)

				assert.ErrorIs(t, err, xErr)
				assert.Equal(t, output, have.String())
			}
		},
	}

	spec := map[string]testParamsOutFn{
		"Single Packet": func(*testing.T) (Payload, string, error) {
			return Payload{{T: MessagePacket, D: "hello"}}, `6:4hello`, nil
		},
		"Many Packets": func(*testing.T) (Payload, string, error) {
			isPayload := Payload{
				{T: PingPacket},
				{T: MessagePacket, D: "hello"},
				{T: NoopPacket},
			}
			return isPayload, `1:26:4hello1:6`, nil
		},
		"Byte Length": func(*testing.T) (Payload, string, error) {
			return Payload{{T: MessagePacket, D: "€"}, {T: ClosePacket}}, "4:4€1:1", nil
		},
		"Binary": func(*testing.T) (Payload, string, error) {
			isPayload := Payload{
				{T: MessagePacket, D: []byte{0x0, 0x1, 0x2, 0x3, 0x4}},
				{T: MessagePacket, D: "x"},
			}
			return isPayload, `9:bAAECAwQ=2:4x`, nil
		},
		"Data with Colon": func(*testing.T) (Payload, string, error) {
			return Payload{{T: MessagePacket, D: "a:b:c"}}, `6:4a:b:c`, nil
		},
	}

	for name, testParams := range spec {
		for suffix, run := range runWithOptions {
			t.Run(fmt.Sprintf("%s.%s", name, suffix), run(testParams(t)))
		}
	}
}

// A payload that fails anywhere yields one error and no packets.
func TestPayloadDecodeFailClosed(t *testing.T) {
	tests := map[string]struct {
		input string
		xErr  error
	}{
		"Empty":               {"", ErrPayloadEmpty},
		"No Separator":        {"6", ErrInvalidPacketLength},
		"Missing Length":      {":4hello", ErrInvalidPacketLength},
		"Non Digit Length":    {"1x:4", ErrInvalidPacketLength},
		"Negative Length":     {"-1:4", ErrInvalidPacketLength},
		"Length Overrun":      {"1:27:4hello", ErrPacketLengthOverrun},
		"Trailing Overrun":    {"1:210:4hello", ErrPacketLengthOverrun},
		"Zero Length":         {"1:20:", ErrEmptyPacket},
		"Bad Packet In Batch": {"1:21:91:2", ErrInvalidPacketType},
		"Trailing Garbage":    {"1:2xyz", ErrInvalidPacketLength},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			have := Payload{{T: NoopPacket}}
			err := NewPayloadDecoder(strings.NewReader(test.input)).Decode(&have)

			assert.ErrorIs(t, err, ErrPayloadDecode)
			assert.ErrorIs(t, err, test.xErr)
			assert.Equal(t, Payload{{T: NoopPacket}}, have)

			list, err := DecodePayload([]byte(test.input))
			assert.Error(t, err)
			assert.Nil(t, list)
		})
	}
}

func TestPayloadEncodeError(t *testing.T) {
	var buf bytes.Buffer
	err := NewPayloadEncoder(&buf).Encode(Payload{{T: MessagePacket, D: "ok"}, {T: PacketType(8)}})

	assert.ErrorIs(t, err, ErrPayloadEncode)
	assert.ErrorIs(t, err, ErrInvalidPacketType)
	assert.Equal(t, 0, buf.Len())
}
