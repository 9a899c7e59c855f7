package engineio

import (
	"net/http"
	"time"

	eiot "github.com/socketio/socket.io-sub001/engineio/transport"
	"go.uber.org/zap"
)

type Option func(*Server)

// WithPath sets the request path prefix the server answers on. The default
// is "/engine.io/".
func WithPath(path string) Option {
	return func(s *Server) { s.path = path }
}

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.cfg.pingInterval = d }
}

func WithPingTimeout(d time.Duration) Option {
	return func(s *Server) { s.cfg.pingTimeout = d }
}

func WithUpgradeTimeout(d time.Duration) Option {
	return func(s *Server) { s.cfg.upgradeTimeout = d }
}

// WithMaxPayload limits the bytes the server accepts in one POST body or
// websocket message.
func WithMaxPayload(n int64) Option {
	return func(s *Server) { s.cfg.maxPayload = n }
}

// WithTransports restricts the transports a client may use.
func WithTransports(names ...eiot.Name) Option {
	return func(s *Server) { s.transports = names }
}

func WithAllowUpgrades(allow bool) Option {
	return func(s *Server) { s.allowUpgrades = allow }
}

// WithAllowRequest runs fn before a handshake or upgrade. An error rejects
// the request with code 4 (Forbidden).
func WithAllowRequest(fn func(*http.Request) error) Option {
	return func(s *Server) { s.allowRequest = fn }
}

// WithCookie sets a cookie holding the session id on the handshake response.
// An empty name disables it.
func WithCookie(name string) Option {
	return func(s *Server) { s.cookie = name }
}

func WithGenerateIDFunc(fn func() SessionID) Option {
	return func(s *Server) { s.generateID = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log.Named("engineio") }
}

// WithTransportOptions is applied to every transport the server creates.
func WithTransportOptions(opts ...eiot.Option) Option {
	return func(s *Server) { s.transportOpts = append(s.transportOpts, opts...) }
}
