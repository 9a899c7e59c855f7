package transport

import (
	"go.uber.org/zap"
	ws "nhooyr.io/websocket"
)

type Option func(Transporter)

func WithLogger(log *zap.Logger) Option {
	return func(t Transporter) {
		switch v := t.(type) {
		case interface{ InnerTransport() *Transport }:
			v.InnerTransport().log = log.With(zap.Stringer("transport", t.Name()))
		}
	}
}

// WithMaxPayload limits the bytes accepted in one POST body or one
// websocket message.
func WithMaxPayload(n int64) Option {
	return func(t Transporter) {
		switch v := t.(type) {
		case interface{ InnerTransport() *Transport }:
			v.InnerTransport().maxPayload = n
		}
	}
}

// WithHTTPCompression gzips polling responses of at least threshold bytes
// when the client accepts gzip.
func WithHTTPCompression(threshold int) Option {
	return func(t Transporter) {
		switch v := t.(type) {
		case *PollingTransport:
			v.compress = true
			v.compressThreshold = threshold
		}
	}
}

// WithPerMessageDeflate enables the websocket deflate extension for messages
// of at least threshold bytes.
func WithPerMessageDeflate(threshold int) Option {
	return func(t Transporter) {
		switch v := t.(type) {
		case *WebsocketTransport:
			v.accept.CompressionMode = ws.CompressionNoContextTakeover
			v.accept.CompressionThreshold = threshold
		}
	}
}

func WithOriginPatterns(patterns ...string) Option {
	return func(t Transporter) {
		switch v := t.(type) {
		case *WebsocketTransport:
			v.accept.OriginPatterns = patterns
		}
	}
}
