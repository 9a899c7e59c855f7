package socketio

import (
	"time"

	"github.com/socketio/socket.io-sub001/adaptor"
	eio "github.com/socketio/socket.io-sub001/engineio"
	siop "github.com/socketio/socket.io-sub001/protocol"
	"go.uber.org/zap"
)

type Option func(*Server)

// WithPath sets the path the server answers on. The default is /socket.io/.
func WithPath(path string) Option {
	return func(s *Server) { s.path = path }
}

// WithParser selects the packet encoding, JSON by default.
func WithParser(parser siop.Parser) Option {
	return func(s *Server) { s.parser = parser }
}

// WithAdapter sets how the room adapter of every namespace is made.
func WithAdapter(fn adaptor.New) Option {
	return func(s *Server) { s.newAdapter = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithConnectTimeout closes clients that did not join a namespace in time.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Server) { s.connectTimeout = d }
}

// WithCleanupEmptyChildNamespaces removes a namespace created by OfFunc or
// OfRegexp once its last socket is gone.
func WithCleanupEmptyChildNamespaces(cleanup bool) Option {
	return func(s *Server) { s.cleanupEmptyChildNamespaces = cleanup }
}

// WithEngineOptions passes options to the engine.io server underneath.
func WithEngineOptions(opts ...eio.Option) Option {
	return func(s *Server) { s.eioOpts = append(s.eioOpts, opts...) }
}
