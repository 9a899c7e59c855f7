package engineio

import (
	"net/http"

	erro "github.com/socketio/socket.io-sub001/internal/errors"
)

const (
	ErrUnknownTransport    erro.String = "Transport unknown"
	ErrUnknownSessionID    erro.String = "Session ID unknown"
	ErrBadHandshakeMethod  erro.String = "Bad handshake method"
	ErrBadRequest          erro.String = "Bad request"
	ErrForbidden           erro.String = "Forbidden"
	ErrUnsupportedProtocol erro.String = "Unsupported protocol version"

	ErrUpgradeNotAllowed erro.String = "upgrade from %s to %s is not allowed"
	ErrAlreadyUpgraded   erro.String = "session is already upgraded"
	ErrNotOpen           erro.String = "session is %s"
	ErrServerClosed      erro.String = "server is closed"
)

// HTTPError is a request rejected before it reaches a transport. It is sent
// to the client as {"code":N,"message":"..."}.
type HTTPError struct {
	Code   int
	Status int
	err    erro.String
	cause  error
}

var errorCodes = []erro.String{
	ErrUnknownTransport,
	ErrUnknownSessionID,
	ErrBadHandshakeMethod,
	ErrBadRequest,
	ErrForbidden,
	ErrUnsupportedProtocol,
}

func newHTTPError(err erro.String, cause error) HTTPError {
	e := HTTPError{Code: -1, Status: http.StatusBadRequest, err: err, cause: cause}
	for code, known := range errorCodes {
		if known == err {
			e.Code = code
		}
	}
	if err == ErrForbidden {
		e.Status = http.StatusForbidden
	}
	return e
}

func (e HTTPError) Error() string {
	if e.cause != nil {
		return e.err.Error() + ": " + e.cause.Error()
	}
	return e.err.Error()
}

func (e HTTPError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.err, e.cause}
	}
	return []error{e.err}
}

func (e HTTPError) write(w http.ResponseWriter) {
	body, _ := json.Marshal(struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{e.Code, e.err.Error()})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	w.Write(body)
}
