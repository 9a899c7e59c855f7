package socketio

import (
	"time"

	eio "github.com/socketio/socket.io-sub001/engineio"
	eiot "github.com/socketio/socket.io-sub001/engineio/transport"
	siop "github.com/socketio/socket.io-sub001/protocol"
)

// Config is the file and environment form of the server options. Zero
// values keep the defaults.
type Config struct {
	Path           string        `mapstructure:"path"`
	Parser         string        `mapstructure:"parser"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	CleanupEmptyChildNamespaces bool `mapstructure:"cleanup_empty_child_namespaces"`

	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PingTimeout       time.Duration `mapstructure:"ping_timeout"`
	UpgradeTimeout    time.Duration `mapstructure:"upgrade_timeout"`
	MaxHTTPBufferSize int64         `mapstructure:"max_http_buffer_size"`
	Transports        []string      `mapstructure:"transports"`
	AllowUpgrades     *bool         `mapstructure:"allow_upgrades"`
	Cookie            string        `mapstructure:"cookie"`

	HTTPCompression   int      `mapstructure:"http_compression"`
	PerMessageDeflate int      `mapstructure:"per_message_deflate"`
	OriginPatterns    []string `mapstructure:"origin_patterns"`
}

func DefaultConfig() Config {
	return Config{
		Path:              defaultPath,
		Parser:            "json",
		ConnectTimeout:    defaultConnectTimeout,
		PingInterval:      25 * time.Second,
		PingTimeout:       20 * time.Second,
		UpgradeTimeout:    10 * time.Second,
		MaxHTTPBufferSize: 1e6,
		Transports:        []string{eiot.Polling.String(), eiot.Websocket.String()},
		HTTPCompression:   1024,
	}
}

// Options turns the config into server options.
func (c Config) Options() ([]Option, error) {
	var opts []Option
	if c.Path != "" {
		opts = append(opts, WithPath(c.Path))
	}

	switch c.Parser {
	case "", "json":
	case "msgpack":
		opts = append(opts, WithParser(siop.MsgpackParser{}))
	default:
		return nil, ErrUnknownParser.F(c.Parser)
	}

	if c.ConnectTimeout > 0 {
		opts = append(opts, WithConnectTimeout(c.ConnectTimeout))
	}
	if c.CleanupEmptyChildNamespaces {
		opts = append(opts, WithCleanupEmptyChildNamespaces(true))
	}

	var eioOpts []eio.Option
	if c.PingInterval > 0 {
		eioOpts = append(eioOpts, eio.WithPingInterval(c.PingInterval))
	}
	if c.PingTimeout > 0 {
		eioOpts = append(eioOpts, eio.WithPingTimeout(c.PingTimeout))
	}
	if c.UpgradeTimeout > 0 {
		eioOpts = append(eioOpts, eio.WithUpgradeTimeout(c.UpgradeTimeout))
	}
	if c.MaxHTTPBufferSize > 0 {
		eioOpts = append(eioOpts, eio.WithMaxPayload(c.MaxHTTPBufferSize))
	}
	if len(c.Transports) > 0 {
		names := make([]eiot.Name, 0, len(c.Transports))
		for _, t := range c.Transports {
			name, ok := eiot.ParseName(t)
			if !ok {
				return nil, ErrUnknownTransport.F(t)
			}
			names = append(names, name)
		}
		eioOpts = append(eioOpts, eio.WithTransports(names...))
	}
	if c.AllowUpgrades != nil {
		eioOpts = append(eioOpts, eio.WithAllowUpgrades(*c.AllowUpgrades))
	}
	if c.Cookie != "" {
		eioOpts = append(eioOpts, eio.WithCookie(c.Cookie))
	}

	var transportOpts []eiot.Option
	if c.HTTPCompression > 0 {
		transportOpts = append(transportOpts, eiot.WithHTTPCompression(c.HTTPCompression))
	}
	if c.PerMessageDeflate > 0 {
		transportOpts = append(transportOpts, eiot.WithPerMessageDeflate(c.PerMessageDeflate))
	}
	if len(c.OriginPatterns) > 0 {
		transportOpts = append(transportOpts, eiot.WithOriginPatterns(c.OriginPatterns...))
	}
	if len(transportOpts) > 0 {
		eioOpts = append(eioOpts, eio.WithTransportOptions(transportOpts...))
	}

	if len(eioOpts) > 0 {
		opts = append(opts, WithEngineOptions(eioOpts...))
	}
	return opts, nil
}
