package main

import (
	"strings"
	"time"

	sio "github.com/socketio/socket.io-sub001"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SIO"

type config struct {
	Addr   string      `mapstructure:"addr"`
	Server sio.Config  `mapstructure:"server"`
	Log    logConfig   `mapstructure:"log"`
	Redis  redisConfig `mapstructure:"redis"`
}

type logConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// redisConfig switches the namespaces to the redis adapter when Addr is set.
type redisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	Key             string        `mapstructure:"key"`
	RequestsTimeout time.Duration `mapstructure:"requests_timeout"`
}

// newViper reads file (when given) and the SIO_ environment, with flags
// bound on top.
func newViper(file string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	def := sio.DefaultConfig()
	v.SetDefault("addr", ":8080")
	v.SetDefault("server.path", def.Path)
	v.SetDefault("server.parser", def.Parser)
	v.SetDefault("server.connect_timeout", def.ConnectTimeout)
	v.SetDefault("server.cleanup_empty_child_namespaces", def.CleanupEmptyChildNamespaces)
	v.SetDefault("server.ping_interval", def.PingInterval)
	v.SetDefault("server.ping_timeout", def.PingTimeout)
	v.SetDefault("server.upgrade_timeout", def.UpgradeTimeout)
	v.SetDefault("server.max_http_buffer_size", def.MaxHTTPBufferSize)
	v.SetDefault("server.transports", def.Transports)
	v.SetDefault("server.http_compression", def.HTTPCompression)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.requests_timeout", 5*time.Second)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if f := flags.Lookup("addr"); f != nil {
			if err := v.BindPFlag("addr", f); err != nil {
				return nil, err
			}
		}
		if f := flags.Lookup("log-level"); f != nil {
			if err := v.BindPFlag("log.level", f); err != nil {
				return nil, err
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (config, error) {
	var c config
	err := v.Unmarshal(&c)
	return c, err
}
