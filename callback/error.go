package callback

import (
	erro "github.com/socketio/socket.io-sub001/internal/errors"
)

const (
	ErrNotAFunc               erro.String = "expected a func, found %T"
	ErrUnexpectedDataInParams erro.String = "expected %d callback input parameters, found %d"
	ErrUnexpectedParamType    erro.String = "parameter %d: cannot use %T as %s"
	ErrUnexpectedOutParams    erro.String = "expected no return parameters or a single error, found %d return parameters"
	ErrUnknownPanic           erro.String = "unknown panic"
)
