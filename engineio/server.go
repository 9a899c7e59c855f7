// Package engineio is the session layer: it performs the handshake, keeps the
// heartbeat and moves sessions from polling to websocket without losing
// packets.
package engineio

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	eios "github.com/socketio/socket.io-sub001/engineio/session"
	eiot "github.com/socketio/socket.io-sub001/engineio/transport"
	"github.com/socketio/socket.io-sub001/internal/listener"
	"go.uber.org/zap"
)

const (
	defaultPath           = "/engine.io/"
	defaultPingInterval   = 25 * time.Second
	defaultPingTimeout    = 20 * time.Second
	defaultUpgradeTimeout = 10 * time.Second
	defaultMaxPayload     = 1e6
)

type Server struct {
	ʘ sync.Mutex

	path          string
	cfg           config
	transports    []eiot.Name
	transportOpts []eiot.Option
	allowUpgrades bool
	allowRequest  func(*http.Request) error
	cookie        string
	generateID    func() SessionID
	log           *zap.Logger

	sessions     *sessions
	onConnection listener.Set[*Connection]
	closed       bool
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		path: defaultPath,
		cfg: config{
			pingInterval:   defaultPingInterval,
			pingTimeout:    defaultPingTimeout,
			upgradeTimeout: defaultUpgradeTimeout,
			maxPayload:     defaultMaxPayload,
		},
		transports:    []eiot.Name{eiot.Polling, eiot.Websocket},
		allowUpgrades: true,
		generateID:    eios.GenerateID,
		log:           zap.NewNop(),
		sessions:      newSessions(),
	}
	s.With(opts...)
	return s
}

func (s *Server) With(opts ...Option) {
	for _, opt := range opts {
		opt(s)
	}
}

func (s *Server) Path() string { return s.path }

// OnConnection is called for every new session, before its first request
// is answered.
func (s *Server) OnConnection(fn func(*Connection)) listener.Handle {
	return s.onConnection.On(fn)
}

func (s *Server) ClientsCount() int { return s.sessions.Len() }

// Connection returns the open session with id.
func (s *Server) Connection(id SessionID) (*Connection, error) { return s.sessions.Get(id) }

// Close closes every session and rejects new handshakes.
func (s *Server) Close() {
	s.ʘ.Lock()
	s.closed = true
	s.ʘ.Unlock()

	for _, c := range s.sessions.All() {
		c.Close()
	}
}

func (s *Server) isClosed() bool {
	s.ʘ.Lock()
	defer s.ʘ.Unlock()
	return s.closed
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, strings.TrimSuffix(s.path, "/")) {
		http.NotFound(w, r)
		return
	}

	name, c, err := s.verify(r)
	if err != nil {
		s.log.Debug("request rejected", zap.Error(err), zap.String("query", r.URL.RawQuery))
		err.write(w)
		return
	}

	if c == nil {
		s.handshake(w, r, name)
		return
	}

	current := c.currentTransport()
	switch {
	case name == current.Name() && name == eiot.Polling:
		if err := current.Run(w, r); err != nil {
			s.log.Debug("polling request", zap.String("sid", c.ID().String()), zap.Error(err))
		}
	case current.Name().CanUpgradeTo(name) && s.allowUpgrades && isWebsocketRequest(r):
		s.upgrade(w, r, c, name)
	default:
		newHTTPError(ErrBadRequest, nil).write(w)
	}
}

// verify checks the query of r. A nil connection means r is a handshake.
func (s *Server) verify(r *http.Request) (eiot.Name, *Connection, *HTTPError) {
	name, ok := eiot.ParseName(transportNameFrom(r))
	if !ok || !s.allowed(name) {
		err := newHTTPError(ErrUnknownTransport, nil)
		return "", nil, &err
	}

	if sid := sessionIDFrom(r); sid != "" {
		c, cerr := s.sessions.Get(sid)
		if cerr != nil {
			err := newHTTPError(ErrUnknownSessionID, cerr)
			return "", nil, &err
		}
		if name == eiot.Polling && r.Method != http.MethodGet && r.Method != http.MethodPost {
			err := newHTTPError(ErrBadRequest, nil)
			return "", nil, &err
		}
		if err := s.allow(r); err != nil {
			return "", nil, err
		}
		return name, c, nil
	}

	if r.Method != http.MethodGet {
		err := newHTTPError(ErrBadHandshakeMethod, nil)
		return "", nil, &err
	}
	if _, ok := protocolFrom(eioVersionFrom(r)); !ok {
		err := newHTTPError(ErrUnsupportedProtocol, nil)
		return "", nil, &err
	}
	if name == eiot.Websocket && !isWebsocketRequest(r) {
		err := newHTTPError(ErrBadRequest, nil)
		return "", nil, &err
	}
	if err := s.allow(r); err != nil {
		return "", nil, err
	}
	return name, nil, nil
}

func (s *Server) allow(r *http.Request) *HTTPError {
	if s.allowRequest == nil {
		return nil
	}
	if err := s.allowRequest(r); err != nil {
		e := newHTTPError(ErrForbidden, err)
		return &e
	}
	return nil
}

func (s *Server) allowed(name eiot.Name) bool {
	for _, allowed := range s.transports {
		if allowed == name {
			return true
		}
	}
	return false
}

func (s *Server) transportOptions() []eiot.Option {
	return append([]eiot.Option{
		eiot.WithLogger(s.log),
		eiot.WithMaxPayload(s.cfg.maxPayload),
	}, s.transportOpts...)
}

func (s *Server) handshake(w http.ResponseWriter, r *http.Request, name eiot.Name) {
	if s.isClosed() {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	t, err := eiot.New(name, s.transportOptions()...)
	if err != nil {
		newHTTPError(ErrUnknownTransport, err).write(w)
		return
	}

	protocol, _ := protocolFrom(eioVersionFrom(r))
	cfg := s.cfg
	cfg.upgrades = []string{}
	if s.allowUpgrades {
		cfg.upgrades = upgradesFor(name, s.transports)
	}

	id := s.generateID()
	c := newConnection(id, protocol, r.Clone(context.Background()), t, cfg, s.log)
	s.sessions.Set(c)
	c.OnClose(func(CloseEvent) { s.sessions.Delete(id, c) })

	if s.cookie != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     s.cookie,
			Value:    id.String(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	s.onConnection.Emit(c)

	if err := t.Run(w, r); err != nil {
		s.log.Debug("handshake request", zap.String("sid", id.String()), zap.Error(err))
	}
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request, c *Connection, name eiot.Name) {
	t, err := eiot.New(name, s.transportOptions()...)
	if err != nil {
		newHTTPError(ErrUnknownTransport, err).write(w)
		return
	}
	if err := c.maybeUpgrade(t); err != nil {
		s.log.Debug("upgrade refused", zap.String("sid", c.ID().String()), zap.Error(err))
		newHTTPError(ErrBadRequest, err).write(w)
		return
	}

	if err := t.Run(w, r); err != nil {
		s.log.Debug("websocket request", zap.String("sid", c.ID().String()), zap.Error(err))
	}
}
