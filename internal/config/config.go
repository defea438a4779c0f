// Package config loads the collector's single Config struct via viper,
// replacing the original's scattered `config.getint('SECTION', 'key',
// fallback=...)` calls with one typed value built once in main and
// threaded through every component's constructor.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/yobol/iec104collector/internal/device"
	"github.com/yobol/iec104collector/internal/link"
)

// Config is the collector's entire runtime configuration.
type Config struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	HTTPAddr string `mapstructure:"http_addr"`

	Link         LinkConfig    `mapstructure:"link"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	GatewayTimeout   time.Duration `mapstructure:"gateway_timeout"`

	Protocol string `mapstructure:"protocol"`

	LogLevel  string `mapstructure:"log_level"`
	LogFrames bool   `mapstructure:"log_frames"`
}

// LinkConfig mirrors link.Config with mapstructure tags, the IEC-104
// K/W/T0-T3 parameters the original read from the `[IEC104]` ini
// section.
type LinkConfig struct {
	K  int           `mapstructure:"k"`
	W  int           `mapstructure:"w"`
	T0 time.Duration `mapstructure:"t0"`
	T1 time.Duration `mapstructure:"t1"`
	T2 time.Duration `mapstructure:"t2"`
	T3 time.Duration `mapstructure:"t3"`
}

// ToLinkConfig converts to the internal/link shape.
func (l LinkConfig) ToLinkConfig() link.Config {
	return link.Config{K: l.K, W: l.W, T0: l.T0, T1: l.T1, T2: l.T2, T3: l.T3}
}

// Defaults returns the collector's default configuration: K=12, W=8,
// T0=30s, T1=15s, T2=10s, T3=20s (spec.md §6), poll interval once a
// minute, Redis and HTTP on their conventional local addresses.
func Defaults() Config {
	d := link.DefaultConfig()
	return Config{
		RedisAddr:        "127.0.0.1:6379",
		RedisDB:          1,
		HTTPAddr:         ":8080",
		Link:             LinkConfig{K: d.K, W: d.W, T0: d.T0, T1: d.T1, T2: d.T2, T3: d.T3},
		PollInterval:     time.Minute,
		ReconnectBackoff: 5 * time.Second,
		DialTimeout:      10 * time.Second,
		GatewayTimeout:   10 * time.Second,
		Protocol:         "iec104",
		LogLevel:         "info",
		LogFrames:        false,
	}
}

// DeviceConfig builds a per-device actor config from this Config's
// defaults, parameterized only by the device's own common address.
func (c Config) DeviceConfig(commonAddr uint16) device.Config {
	return device.Config{
		Link:             c.Link.ToLinkConfig(),
		PollInterval:     c.PollInterval,
		ReconnectBackoff: c.ReconnectBackoff,
		DialTimeout:      c.DialTimeout,
		CommonAddr:       commonAddr,
	}
}

// Load builds a viper instance seeded with Defaults(), overlays an
// optional config file and the COLLECTOR_-prefixed environment, and
// unmarshals into Config.
func Load(configFile string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLECTOR")
	v.AutomaticEnv()

	def := Defaults()
	v.SetDefault("redis_addr", def.RedisAddr)
	v.SetDefault("redis_password", def.RedisPassword)
	v.SetDefault("redis_db", def.RedisDB)
	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("link.k", def.Link.K)
	v.SetDefault("link.w", def.Link.W)
	v.SetDefault("link.t0", def.Link.T0)
	v.SetDefault("link.t1", def.Link.T1)
	v.SetDefault("link.t2", def.Link.T2)
	v.SetDefault("link.t3", def.Link.T3)
	v.SetDefault("poll_interval", def.PollInterval)
	v.SetDefault("reconnect_backoff", def.ReconnectBackoff)
	v.SetDefault("dial_timeout", def.DialTimeout)
	v.SetDefault("gateway_timeout", def.GatewayTimeout)
	v.SetDefault("protocol", def.Protocol)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_frames", def.LogFrames)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
