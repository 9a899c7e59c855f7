package protocol

import erro "github.com/socketio/socket.io-sub001/internal/errors"

const (
	ErrInvalidPacketType   erro.String = "invalid packet type: %q"
	ErrInvalidPacketData   erro.String = "invalid packet data for %s"
	ErrEmptyPacket         erro.String = "empty packet"
	ErrInvalidHandshake    erro.String = "invalid handshake data"
	ErrHandshakeDecode     erro.String = "handshake decode: %w"
	ErrHandshakeEncode     erro.String = "handshake encode: %w"
	ErrPacketDecode        erro.String = "packet decode: %w"
	ErrPacketEncode        erro.String = "packet encode [%s]: %w"
	ErrPayloadEmpty        erro.String = "empty payload"
	ErrInvalidPacketLength erro.String = "invalid packet length at offset %d"
	ErrPacketLengthOverrun erro.String = "packet length %d overruns payload at offset %d"
	ErrPayloadDecode       erro.String = "payload decode: %w"
	ErrPayloadEncode       erro.String = "payload encode: %w"
)
