package redis

import (
	erro "github.com/socketio/socket.io-sub001/internal/errors"
)

const (
	ErrPublish         erro.String = "publish to %s: %w"
	ErrSubscribe       erro.String = "subscribe: %w"
	ErrServerCount     erro.String = "server count: %w"
	ErrMessageDecode   erro.String = "decode message: %w"
	ErrMessageEncode   erro.String = "encode message: %w"
	ErrRequestTimeout  erro.String = "timeout reached: only %d responses received out of %d"
	ErrAdapterNotReady erro.String = "adapter is not subscribed"
)
