// Package socketio multiplexes namespaces over engine.io connections. A
// Server hands every connection to a Client, which admits sockets into
// namespaces and routes their packets. Rooms and broadcasts are kept by the
// adapter of each namespace.
package socketio

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/socketio/socket.io-sub001/adaptor"
	"github.com/socketio/socket.io-sub001/adaptor/memory"
	cabk "github.com/socketio/socket.io-sub001/callback"
	eio "github.com/socketio/socket.io-sub001/engineio"
	"github.com/socketio/socket.io-sub001/internal/listener"
	siop "github.com/socketio/socket.io-sub001/protocol"
	"go.uber.org/zap"
)

const (
	defaultPath           = "/socket.io/"
	defaultConnectTimeout = 45 * time.Second
)

type (
	SocketID = adaptor.SocketID
	Room     = adaptor.Room
	Event    = string
)

type Server struct {
	path                        string
	parser                      siop.Parser
	newAdapter                  adaptor.New
	connectTimeout              time.Duration
	cleanupEmptyChildNamespaces bool
	eioOpts                     []eio.Option
	log                         *zap.Logger

	eio *eio.Server

	ʘ       sync.RWMutex
	nsps    map[string]*Namespace
	parents []*ParentNamespace

	sockets *Namespace
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		path:           defaultPath,
		parser:         siop.JSONParser{},
		newAdapter:     memory.New(),
		connectTimeout: defaultConnectTimeout,
		log:            zap.NewNop(),
		nsps:           make(map[string]*Namespace),
	}
	for _, opt := range opts {
		opt(s)
	}

	eioOpts := append([]eio.Option{eio.WithPath(s.path), eio.WithLogger(s.log)}, s.eioOpts...)
	s.eio = eio.NewServer(eioOpts...)
	s.eio.OnConnection(func(conn *eio.Connection) { newClient(s, conn) })

	s.sockets = s.Of(siop.DefaultNamespace)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.eio.ServeHTTP(w, r) }

// Engine is the engine.io server the clients connect through.
func (s *Server) Engine() *eio.Server { return s.eio }

func (s *Server) Path() string { return s.path }

// Of returns the namespace called name, creating it on first use.
func (s *Server) Of(name string) *Namespace {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}

	s.ʘ.Lock()
	nsp, ok := s.nsps[name]
	if !ok {
		nsp = newNamespace(s, name)
		s.nsps[name] = nsp
	}
	s.ʘ.Unlock()

	if !ok {
		nsp.init()
	}
	return nsp
}

// OfFunc registers a parent namespace. A client connecting to a namespace
// that does not exist gets a child of the first parent whose fn accepts the
// name and the auth payload.
func (s *Server) OfFunc(fn func(name string, auth map[string]interface{}) bool) *ParentNamespace {
	parent := newParentNamespace(s, fn)

	s.ʘ.Lock()
	s.parents = append(s.parents, parent)
	s.ʘ.Unlock()
	return parent
}

// OfRegexp is OfFunc matching the namespace name against re.
func (s *Server) OfRegexp(re *regexp.Regexp) *ParentNamespace {
	return s.OfFunc(func(name string, _ map[string]interface{}) bool { return re.MatchString(name) })
}

func (s *Server) namespace(name string) (*Namespace, bool) {
	s.ʘ.RLock()
	defer s.ʘ.RUnlock()
	nsp, ok := s.nsps[name]
	return nsp, ok
}

// checkNamespace creates the child of the first parent accepting name.
func (s *Server) checkNamespace(name string, auth map[string]interface{}) (*Namespace, bool) {
	s.ʘ.RLock()
	parents := append([]*ParentNamespace(nil), s.parents...)
	s.ʘ.RUnlock()

	for _, parent := range parents {
		if !parent.fn(name, auth) {
			continue
		}

		s.ʘ.Lock()
		nsp, ok := s.nsps[name]
		if !ok {
			nsp = parent.createChild(name)
			s.nsps[name] = nsp
		}
		s.ʘ.Unlock()

		if !ok {
			nsp.init()
		}
		return nsp, true
	}
	return nil, false
}

// removeChild drops a child namespace left without sockets.
func (s *Server) removeChild(nsp *Namespace) {
	s.ʘ.Lock()
	if s.nsps[nsp.name] == nsp {
		delete(s.nsps, nsp.name)
	}
	s.ʘ.Unlock()

	nsp.parent.removeChild(nsp)
	if err := nsp.adapter.Close(); err != nil {
		s.log.Warn("close adapter", zap.String("nsp", nsp.name), zap.Error(err))
	}
}

// Close disconnects every socket with "server shutting down", closes the
// connections and the adapters.
func (s *Server) Close() {
	s.ʘ.RLock()
	nsps := make([]*Namespace, 0, len(s.nsps))
	for _, nsp := range s.nsps {
		nsps = append(nsps, nsp)
	}
	s.ʘ.RUnlock()

	for _, nsp := range nsps {
		for _, socket := range nsp.Sockets() {
			socket.onClose(reasonServerShuttingDown)
		}
	}

	s.eio.Close()

	for _, nsp := range nsps {
		if err := nsp.adapter.Close(); err != nil {
			s.log.Warn("close adapter", zap.String("nsp", nsp.name), zap.Error(err))
		}
	}
}

// The methods below act on the main namespace.

func (s *Server) Use(fn Middleware)                             { s.sockets.Use(fn) }
func (s *Server) OnConnection(fn func(*Socket)) listener.Handle { return s.sockets.OnConnection(fn) }
func (s *Server) To(rooms ...Room) *BroadcastOperator           { return s.sockets.To(rooms...) }
func (s *Server) In(rooms ...Room) *BroadcastOperator           { return s.sockets.In(rooms...) }
func (s *Server) Except(rooms ...Room) *BroadcastOperator       { return s.sockets.Except(rooms...) }
func (s *Server) Timeout(d time.Duration) *BroadcastOperator    { return s.sockets.Timeout(d) }
func (s *Server) Emit(event Event, data ...interface{}) error   { return s.sockets.Emit(event, data...) }
func (s *Server) Send(data ...interface{}) error                { return s.sockets.Send(data...) }
func (s *Server) SocketsJoin(rooms ...Room)                     { s.sockets.SocketsJoin(rooms...) }
func (s *Server) SocketsLeave(rooms ...Room)                    { s.sockets.SocketsLeave(rooms...) }
func (s *Server) DisconnectSockets(close bool)                  { s.sockets.DisconnectSockets(close) }

func (s *Server) FetchSockets(ctx context.Context) ([]*RemoteSocket, error) {
	return s.sockets.FetchSockets(ctx)
}

func (s *Server) ServerSideEmit(event Event, data ...interface{}) error {
	return s.sockets.ServerSideEmit(event, data...)
}

func (s *Server) ServerSideEmitWithAck(ctx context.Context, event Event, data ...interface{}) ([]interface{}, error) {
	return s.sockets.ServerSideEmitWithAck(ctx, event, data...)
}

func (s *Server) OnServerSideEmit(event Event, fn cabk.EventCallback) listener.Handle {
	return s.sockets.OnServerSideEmit(event, fn)
}
