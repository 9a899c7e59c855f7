package main

import (
	sio "github.com/socketio/socket.io-sub001"
	cabk "github.com/socketio/socket.io-sub001/callback"
	"go.uber.org/zap"
)

// demo registers the handlers of the main namespace:
//
//	echo  replies with its arguments
//	join  joins a room, leave leaves it
//	say   sends "said" (sender id, text) to the other members of a room
func demo(server *sio.Server, log *zap.Logger) {
	server.OnConnection(func(s *sio.Socket) {
		log := log.With(zap.String("socket", s.ID()), zap.String("nsp", s.Namespace().Name()))
		log.Info("connected")

		s.On("echo", cabk.FuncReply(func(v ...interface{}) []interface{} { return v }))
		s.On("join", cabk.FuncString(func(room string) { s.Join(room) }))
		s.On("leave", cabk.FuncString(func(room string) { s.Leave(room) }))
		s.On("say", cabk.Wrap{Func: func(room, text string) error {
			return s.To(room).Emit("said", s.ID(), text)
		}})

		s.OnError(func(err error) { log.Warn("socket error", zap.Error(err)) })
		s.OnDisconnect(func(reason string) { log.Info("disconnected", zap.String("reason", reason)) })
	})
}
