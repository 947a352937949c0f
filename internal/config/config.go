package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kyleoneill/etch/internal/logger"
)

const defaultConfig = `
# etch configuration

[server]
listen-addr = "127.0.0.1:6379"
read-timeout = "5m"
write-timeout = "10s"
request-timeout = "30s"

[storage]
data-dir = "db_files"
records-per-shard = 1000
# 0 disables the in-memory id index
index-cache-size = 0

[log]
# debug, info, warn, error
level = "info"

[metrics]
# empty disables the metrics endpoint
listen-addr = ""
`

var ErrInvalidConfig = errors.New("etch: invalid config")

// Duration lets durations be written as "10s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("time.ParseDuration: %w", err)
	}
	d.Duration = duration
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ServerConfig struct {
	ListenAddr     string   `toml:"listen-addr,omitempty" json:"listen-addr"`
	ReadTimeout    Duration `toml:"read-timeout,omitempty" json:"read-timeout"`
	WriteTimeout   Duration `toml:"write-timeout,omitempty" json:"write-timeout"`
	RequestTimeout Duration `toml:"request-timeout,omitempty" json:"request-timeout"`
}

func (cfg *ServerConfig) adjust() error {
	if err := adjustString(&cfg.ListenAddr, "no server listen-addr"); err != nil {
		return err
	}
	if cfg.ReadTimeout.Duration < 0 || cfg.WriteTimeout.Duration < 0 || cfg.RequestTimeout.Duration < 0 {
		return fmt.Errorf("%w: negative server timeout", ErrInvalidConfig)
	}
	return nil
}

type StorageConfig struct {
	DataDir         string `toml:"data-dir,omitempty" json:"data-dir"`
	RecordsPerShard int    `toml:"records-per-shard,omitempty" json:"records-per-shard"`
	IndexCacheSize  int    `toml:"index-cache-size" json:"index-cache-size"`
}

func (cfg *StorageConfig) adjust() error {
	if err := adjustString(&cfg.DataDir, "no storage data-dir"); err != nil {
		return err
	}
	if cfg.RecordsPerShard <= 0 {
		return fmt.Errorf("%w: storage records-per-shard must be positive, got %d", ErrInvalidConfig, cfg.RecordsPerShard)
	}
	if cfg.IndexCacheSize < 0 {
		return fmt.Errorf("%w: storage index-cache-size must not be negative", ErrInvalidConfig)
	}
	return nil
}

type LogConfig struct {
	Level string `toml:"level,omitempty" json:"level"`
}

func (cfg *LogConfig) adjust() error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

type MetricsConfig struct {
	ListenAddr string `toml:"listen-addr" json:"listen-addr"`
}

type Config struct {
	Server  ServerConfig  `toml:"server" json:"server"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" json:"log"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`
}

// Load decodes the built-in defaults and then fileName on top of them.
// An empty fileName means defaults only. The result is not adjusted yet,
// callers apply overrides and call Adjust.
func Load(fileName string) (*Config, error) {
	config := &Config{}
	if _, err := toml.Decode(defaultConfig, config); err != nil {
		return nil, fmt.Errorf("toml.Decode: %w", err)
	}

	if fileName != "" {
		meta, err := toml.DecodeFile(fileName, config)
		if err != nil {
			return nil, fmt.Errorf("toml.DecodeFile: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) != 0 {
			return nil, fmt.Errorf("%w: unknown key %s in %s", ErrInvalidConfig, undecoded[0].String(), fileName)
		}
	}

	return config, nil
}

func (c *Config) Adjust() error {
	if err := c.Server.adjust(); err != nil {
		return err
	}
	if err := c.Storage.adjust(); err != nil {
		return err
	}
	return c.Log.adjust()
}

func adjustString(v *string, errMsg string) error {
	if len(*v) == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, errMsg)
	}
	return nil
}
