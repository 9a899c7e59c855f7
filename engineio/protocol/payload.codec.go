package protocol

import (
	"bytes"
	"io"
	"strconv"

	rw "github.com/socketio/socket.io-sub001/internal/readwriter"
)

// Payload is a batch of packets sent in one polling request or response. On
// the wire every packet is framed as <byte-length>:<packet>.
type Payload []Packet

type PayloadEncoder struct{ write *rw.Writer }

func NewPayloadEncoder(w io.Writer) *PayloadEncoder {
	return &PayloadEncoder{write: rw.NewWriter(w)}
}

func (enc *PayloadEncoder) Encode(payload Payload) error {
	var buf bytes.Buffer
	for _, packet := range payload {
		buf.Reset()
		if err := NewPacketEncoder(&buf).Encode(packet); err != nil {
			return ErrPayloadEncode.F(err)
		}
		enc.write.Int(buf.Len()).OnErrF(ErrPayloadEncode)
		enc.write.Byte(':').OnErrF(ErrPayloadEncode)
		enc.write.Bytes(buf.Bytes()).OnErrF(ErrPayloadEncode)
	}
	return enc.write.Err()
}

type PayloadDecoder struct{ r io.Reader }

func NewPayloadDecoder(r io.Reader) *PayloadDecoder { return &PayloadDecoder{r: r} }

// Decode reads the whole payload. Any framing or packet error fails the
// entire payload and leaves it untouched.
func (dec *PayloadDecoder) Decode(payload *Payload) error {
	p, err := io.ReadAll(dec.r)
	if err != nil {
		return ErrPayloadDecode.F(err)
	}
	list, err := DecodePayload(p)
	if err != nil {
		return err
	}
	*payload = list
	return nil
}

func DecodePayload(p []byte) (Payload, error) {
	if len(p) == 0 {
		return nil, ErrPayloadDecode.F(ErrPayloadEmpty)
	}

	var payload Payload
	for i := 0; i < len(p); {
		sep := bytes.IndexByte(p[i:], ':')
		if sep <= 0 || !isDigits(p[i:i+sep]) {
			return nil, ErrPayloadDecode.F(ErrInvalidPacketLength.F(i))
		}

		n, err := strconv.Atoi(string(p[i : i+sep]))
		if err != nil {
			return nil, ErrPayloadDecode.F(ErrInvalidPacketLength.F(i))
		}

		start := i + sep + 1
		if n == 0 {
			return nil, ErrPayloadDecode.F(ErrEmptyPacket)
		}
		if n > len(p)-start {
			return nil, ErrPayloadDecode.F(ErrPacketLengthOverrun.F(n, i))
		}

		packet, err := DecodePacket(p[start : start+n])
		if err != nil {
			return nil, ErrPayloadDecode.F(err)
		}
		payload = append(payload, packet)
		i = start + n
	}
	return payload, nil
}

func isDigits(p []byte) bool {
	for _, c := range p {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
