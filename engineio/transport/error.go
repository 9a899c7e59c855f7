package transport

import erro "github.com/socketio/socket.io-sub001/internal/errors"

const (
	ErrUnknownTransport erro.String = "unknown transport %q"
	ErrDecodeFailed     erro.String = "failed to decode the %q transport: %w"
	ErrEncodeFailed     erro.String = "failed to encode the %q transport: %w"
	ErrPollOverlap      erro.String = "overlapping %s request from client"
	ErrPollClosedEarly  erro.String = "poll connection closed prematurely"
	ErrTransportClosed  erro.String = "transport is closed"
	ErrMethodNotAllowed erro.String = "method %s is not allowed on the polling transport"
	ErrPayloadTooLarge  erro.String = "payload exceeds %d bytes"
	ErrWebsocketAccept  erro.String = "websocket accept: %w"
	ErrWebsocketRead    erro.String = "websocket read: %w"
	ErrWebsocketWrite   erro.String = "websocket write: %w"
)
