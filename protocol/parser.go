package protocol

// Parser makes the encoder and decoder for one client connection.
type Parser interface {
	NewEncoder() Encoder
	NewDecoder() Decoder
}

// Encoder turns a packet into engine.io messages, each a string or []byte,
// that must be sent in order.
type Encoder interface {
	Encode(Packet) ([]interface{}, error)
}

// Decoder is fed engine.io messages one at a time. Add returns a nil packet
// while it waits for more messages of the same packet.
type Decoder interface {
	Add(interface{}) (*Packet, error)
	Reset()
}
