package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"
	sio "github.com/socketio/socket.io-sub001"
	redisadapter "github.com/socketio/socket.io-sub001/adaptor/redis"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve socket.io over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		c, err := loadConfig(v)
		if err != nil {
			return err
		}

		log, level, err := newLogger(c.Log)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		if v.ConfigFileUsed() != "" {
			watchLevel(v, level, log)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, c, log)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("log-level", "info", "debug, info, warn or error")
	rootCmd.AddCommand(serveCmd)
}

// watchLevel applies the log level of the config file whenever it changes.
// The other settings need a restart.
func watchLevel(v *viper.Viper, level zap.AtomicLevel, log *zap.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		text := v.GetString("log.level")
		if err := level.UnmarshalText([]byte(text)); err != nil {
			log.Warn("config reload", zap.String("file", e.Name), zap.Error(err))
			return
		}
		log.Info("log level", zap.String("level", level.String()))
	})
	v.WatchConfig()
}

// serverOptions turns c into server options. The engine.io server logs
// through a child of the socketio logger. closeFn releases the redis client.
func serverOptions(ctx context.Context, c config, log *zap.Logger) (opts []sio.Option, closeFn func(), err error) {
	closeFn = func() {}

	opts, err = c.Server.Options()
	if err != nil {
		return nil, closeFn, err
	}
	opts = append(opts, sio.WithLogger(log.Named("socketio")))

	if c.Redis.Addr == "" {
		return opts, closeFn, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, closeFn, err
	}

	adapterOpts := []redisadapter.Option{redisadapter.WithLogger(log.Named("redis"))}
	if c.Redis.Key != "" {
		adapterOpts = append(adapterOpts, redisadapter.WithKey(c.Redis.Key))
	}
	if c.Redis.RequestsTimeout > 0 {
		adapterOpts = append(adapterOpts, redisadapter.WithRequestsTimeout(c.Redis.RequestsTimeout))
	}
	opts = append(opts, sio.WithAdapter(redisadapter.New(rdb, adapterOpts...)))
	return opts, func() { rdb.Close() }, nil
}

func serve(ctx context.Context, c config, log *zap.Logger) error {
	opts, closeFn, err := serverOptions(ctx, c, log)
	if err != nil {
		return err
	}
	defer closeFn()

	server := sio.NewServer(opts...)
	demo(server, log)

	mux := http.NewServeMux()
	mux.Handle(server.Path(), server)
	svr := &http.Server{Addr: c.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errs := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", c.Addr), zap.String("path", server.Path()))
		errs <- svr.ListenAndServe()
	}()

	select {
	case err := <-errs:
		server.Close()
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	server.Close()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svr.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
