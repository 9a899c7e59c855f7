package socketio

import (
	"errors"

	erro "github.com/socketio/socket.io-sub001/internal/errors"
)

const (
	ErrInvalidNamespace      erro.String = "Invalid namespace"
	ErrReservedEventName     erro.String = "%q is a reserved event name"
	ErrUnknownEventName      erro.String = "unknown event name, the first field is not a string"
	ErrUnexpectedData        erro.String = "expected an []interface{}, found %T"
	ErrAckTimeout            erro.String = "operation has timed out"
	ErrSocketDisconnected    erro.String = "socket has been disconnected"
	ErrBroadcastAckNoTimeout erro.String = "a timeout is needed to wait for the acknowledgements of a broadcast"
	ErrUnknownParser         erro.String = "unknown parser %q"
	ErrUnknownTransport      erro.String = "unknown transport %q"
	ErrAdapterInit           erro.String = "adapter of namespace %s: %w"
)

// ConnectError rejects a socket from a middleware. The peer receives Message
// and Data in the connect_error packet.
type ConnectError struct {
	Message string
	Data    interface{}
}

func (e *ConnectError) Error() string { return e.Message }

// NewConnectError is a middleware rejection carrying data for the client.
func NewConnectError(message string, data interface{}) *ConnectError {
	return &ConnectError{Message: message, Data: data}
}

// serviceError is the payload of a connect_error packet. The data of a
// wrapped *ConnectError is kept.
func serviceError(err error) map[string]interface{} {
	rtn := map[string]interface{}{"message": err.Error()}
	var ce *ConnectError
	if errors.As(err, &ce) && ce.Data != nil {
		rtn["data"] = ce.Data
	}
	return rtn
}
