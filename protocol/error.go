package protocol

import erro "github.com/socketio/socket.io-sub001/internal/errors"

const (
	ErrEmptyPacket        erro.String = "empty packet"
	ErrInvalidPacketType  erro.String = "invalid packet type: %q"
	ErrIllegalAttachments erro.String = "illegal attachments"
	ErrInvalidAckID       erro.String = "invalid ack id: %w"
	ErrInvalidPayload     erro.String = "invalid payload for %s"
	ErrPayloadMarshal     erro.String = "payload marshal: %w"
	ErrPayloadUnmarshal   erro.String = "payload unmarshal: %w"
	ErrUnexpectedText     erro.String = "got plaintext data when reconstructing a packet"
	ErrUnexpectedBinary   erro.String = "got binary data when not reconstructing a packet"
	ErrUnknownInput       erro.String = "unknown input type %T"
	ErrDecode             erro.String = "decode: %w"
	ErrEncode             erro.String = "encode [%s]: %w"
)
