package socketio

import (
	"sync"
	"time"

	"github.com/socketio/socket.io-sub001/adaptor"
	eio "github.com/socketio/socket.io-sub001/engineio"
	"github.com/socketio/socket.io-sub001/internal/listener"
	siop "github.com/socketio/socket.io-sub001/protocol"
	"go.uber.org/zap"
)

// Disconnect reasons added on top of the engine.io close reasons.
const (
	reasonForcedServerClose         = "forced server close"
	reasonServerNamespaceDisconnect = "server namespace disconnect"
	reasonClientNamespaceDisconnect = "client namespace disconnect"
	reasonServerShuttingDown        = "server shutting down"
)

// Client is one engine.io connection and the sockets it opened, at most one
// per namespace.
type Client struct {
	server  *Server
	conn    *eio.Connection
	encoder siop.Encoder
	log     *zap.Logger

	ḋ       sync.Mutex
	decoder siop.Decoder

	ʘ            sync.Mutex
	sockets      map[SocketID]*Socket
	nsps         map[string]*Socket
	connectTimer *time.Timer
	closed       bool
	handles      listener.Handles
}

func newClient(s *Server, conn *eio.Connection) *Client {
	c := &Client{
		server:  s,
		conn:    conn,
		encoder: s.parser.NewEncoder(),
		decoder: s.parser.NewDecoder(),
		log:     s.log.With(zap.Stringer("sid", conn.ID())),
		sockets: make(map[SocketID]*Socket),
		nsps:    make(map[string]*Socket),
	}
	c.handles.Add(
		conn.OnMessage(c.onData),
		conn.OnClose(func(ev eio.CloseEvent) { c.onClose(ev.Reason) }),
	)

	// a protocol v3 client is in the main namespace without asking
	if conn.Protocol() == 3 {
		c.connect(siop.DefaultNamespace, nil)
		return c
	}

	c.ʘ.Lock()
	c.connectTimer = time.AfterFunc(s.connectTimeout, func() {
		c.ʘ.Lock()
		joined := len(c.nsps) > 0
		c.ʘ.Unlock()

		if !joined {
			c.log.Debug("no namespace joined, closing")
			c.close()
		}
	})
	c.ʘ.Unlock()
	return c
}

func (c *Client) ID() string { return c.conn.ID().String() }

// Conn is the engine.io connection of the client.
func (c *Client) Conn() *eio.Connection { return c.conn }

func (c *Client) onData(data interface{}) {
	c.ḋ.Lock()
	packet, err := c.decoder.Add(data)
	c.ḋ.Unlock()

	if err != nil {
		c.onError(err)
		return
	}
	if packet == nil {
		return // waiting for attachments
	}
	c.onDecoded(*packet)
}

func (c *Client) onDecoded(packet siop.Packet) {
	nsp := packet.Namespace
	if nsp == "" {
		nsp = siop.DefaultNamespace
	}

	if packet.Type == siop.ConnectPacket {
		auth, _ := packet.Data.(map[string]interface{})
		c.connect(nsp, auth)
		return
	}

	c.ʘ.Lock()
	socket, ok := c.nsps[nsp]
	c.ʘ.Unlock()

	if !ok {
		c.log.Debug("no socket for namespace, packet dropped", zap.String("nsp", nsp), zap.Stringer("type", packet.Type))
		return
	}
	socket.onPacket(packet)
}

func (c *Client) connect(name string, auth map[string]interface{}) {
	nsp, ok := c.server.namespace(name)
	if !ok {
		nsp, ok = c.server.checkNamespace(name, auth)
	}
	if !ok {
		c.log.Debug("invalid namespace", zap.String("nsp", name))
		c.packet(siop.Packet{
			Type:      siop.ConnectErrorPacket,
			Namespace: name,
			Data:      serviceError(ErrInvalidNamespace),
		}, adaptor.BroadcastFlags{})
		return
	}

	nsp.add(c, auth, func(socket *Socket) {
		c.ʘ.Lock()
		defer c.ʘ.Unlock()

		c.sockets[socket.id] = socket
		c.nsps[name] = socket
		if c.connectTimer != nil {
			c.connectTimer.Stop()
			c.connectTimer = nil
		}
	})
}

// packet encodes and writes a packet that is not a broadcast.
func (c *Client) packet(packet siop.Packet, flags adaptor.BroadcastFlags) {
	encoded, err := c.encoder.Encode(packet)
	if err != nil {
		c.log.Warn("encode", zap.Stringer("type", packet.Type), zap.Error(err))
		return
	}
	c.writeToEngine(encoded, flags)
}

func (c *Client) writeToEngine(encoded []interface{}, flags adaptor.BroadcastFlags) {
	if flags.Volatile && !c.conn.Writable() {
		c.log.Debug("volatile packet discarded")
		return
	}
	c.conn.SendWith(eio.SendOptions{Compress: flags.Compressed()}, encoded...)
}

// remove forgets a socket that left its namespace.
func (c *Client) remove(socket *Socket) {
	c.ʘ.Lock()
	defer c.ʘ.Unlock()

	if s, ok := c.sockets[socket.id]; ok && s == socket {
		delete(c.sockets, socket.id)
		delete(c.nsps, socket.nsp.name)
	}
}

func (c *Client) socketList() []*Socket {
	c.ʘ.Lock()
	defer c.ʘ.Unlock()

	list := make([]*Socket, 0, len(c.sockets))
	for _, s := range c.sockets {
		list = append(list, s)
	}
	return list
}

// disconnect disconnects every socket and closes the connection.
func (c *Client) disconnect() {
	for _, socket := range c.socketList() {
		socket.Disconnect(false)
	}
	c.close()
}

func (c *Client) close() {
	if c.conn.ReadyState() == eio.Open {
		c.onClose(reasonForcedServerClose)
		c.conn.Close()
	}
}

func (c *Client) onError(err error) {
	c.log.Debug("decode", zap.Error(err))
	for _, socket := range c.socketList() {
		socket.onError(err)
	}
	c.conn.Close()
}

func (c *Client) onClose(reason string) {
	c.ʘ.Lock()
	if c.closed {
		c.ʘ.Unlock()
		return
	}
	c.closed = true
	if c.connectTimer != nil {
		c.connectTimer.Stop()
		c.connectTimer = nil
	}
	c.ʘ.Unlock()

	c.log.Debug("client closed", zap.String("reason", reason))
	for _, socket := range c.socketList() {
		socket.onClose(reason)
	}

	c.ḋ.Lock()
	c.decoder.Reset()
	c.ḋ.Unlock()

	c.handles.Dispose()
}
