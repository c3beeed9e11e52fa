package config

import (
	"net/url"
	"os"
	"time"

	"github.com/code-tutor/tutor/internal/backoff"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Transport TransportConfig `yaml:"transport"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Mock      MockConfig      `yaml:"mock"`
}

// ServerConfig locates the execution service.
type ServerConfig struct {
	URL string `yaml:"url"`
}

type ReconnectConfig struct {
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RecoveryDelay time.Duration `yaml:"recovery_delay"`
}

type TransportConfig struct {
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	SendBuffer   int           `yaml:"send_buffer"`
}

// DispatchConfig limits outbound commands. Rate 0 disables the limit.
type DispatchConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// MockConfig configures the mock execution service.
type MockConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	LineDelay      time.Duration `yaml:"line_delay"`
	MaxConnections int           `yaml:"max_connections"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "ws://127.0.0.1:8000/ws",
		},
		Reconnect: ReconnectConfig{
			BaseDelay:     backoff.DefaultBase,
			MaxAttempts:   backoff.DefaultMaxAttempts,
			RecoveryDelay: backoff.DefaultRecoveryDelay,
		},
		Transport: TransportConfig{
			DialTimeout:  20 * time.Second,
			PingInterval: 25 * time.Second,
			PongTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			SendBuffer:   64,
		},
		Dispatch: DispatchConfig{
			Burst: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Mock: MockConfig{
			Host:      "127.0.0.1",
			Port:      8000,
			LineDelay: 50 * time.Millisecond,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Backoff returns the reconnect policy described by the config.
func (c *Config) Backoff() backoff.Policy {
	return backoff.Policy{
		Base:          c.Reconnect.BaseDelay,
		MaxAttempts:   c.Reconnect.MaxAttempts,
		RecoveryDelay: c.Reconnect.RecoveryDelay,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return errors.Wrap(err, "server.url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Errorf("server.url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("server.url: missing host")
	}
	if err := c.Backoff().Validate(); err != nil {
		return err
	}
	if c.Transport.SendBuffer <= 0 {
		return errors.Errorf("transport.send_buffer must be positive, got %d", c.Transport.SendBuffer)
	}
	if c.Dispatch.Rate < 0 {
		return errors.Errorf("dispatch.rate must not be negative, got %v", c.Dispatch.Rate)
	}
	if c.Dispatch.Rate > 0 && c.Dispatch.Burst <= 0 {
		return errors.Errorf("dispatch.burst must be positive when rate is set, got %d", c.Dispatch.Burst)
	}
	if c.Mock.Port < 0 || c.Mock.Port > 65535 {
		return errors.Errorf("mock.port out of range: %d", c.Mock.Port)
	}
	return nil
}
