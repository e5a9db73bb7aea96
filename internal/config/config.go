// Package config handles YAML configuration parsing and validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"lbsim/internal/core"
	"lbsim/internal/simulate"
	"lbsim/internal/stats"
)

// Sink types.
const (
	SinkFile   = "file"
	SinkStdout = "stdout"
	SinkRedis  = "redis"
	SinkNone   = "none"
)

// Config is the root configuration structure.
type Config struct {
	Pool       PoolConfig        `yaml:"pool"`
	Server     ServerConfig      `yaml:"server"`
	Sink       SinkConfig        `yaml:"sink"`
	Log        LogConfig         `yaml:"log"`
	Load       DriverConfig      `yaml:"load"`
	Thresholds *stats.Thresholds `yaml:"thresholds,omitempty"`
}

// PoolConfig describes the simulated worker pool.
type PoolConfig struct {
	Workers           int     `yaml:"workers"`
	WorkerWeight      int     `yaml:"workerWeight"`
	RequestPoolSize   int     `yaml:"requestPoolSize"`
	AverageDelay      float64 `yaml:"averageDelay"` // seconds
	FailurePercentage int     `yaml:"failurePercentage"`
	Jitter            float64 `yaml:"jitter"` // seconds
	Seed              int64   `yaml:"seed"`   // 0 = time seeded
}

// ServerConfig controls the HTTP transport.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       float64       `yaml:"rateLimit"` // hello requests per second, 0 = unlimited
	Burst           int           `yaml:"burst"`
}

// SinkConfig selects where outcome lines are appended.
type SinkConfig struct {
	Type  string      `yaml:"type"`
	Path  string      `yaml:"path"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis sink.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DriverConfig controls the load driver.
type DriverConfig struct {
	Concurrency int    `yaml:"concurrency"`
	RPS         int    `yaml:"rps"`
	Target      string `yaml:"target"` // base URL of a running server, empty = in-process
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Workers:           4,
			WorkerWeight:      1,
			RequestPoolSize:   100,
			AverageDelay:      0.5,
			FailurePercentage: 12,
			Jitter:            simulate.DefaultJitter,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Sink: SinkConfig{
			Type: SinkNone,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Load: DriverConfig{
			Concurrency: 10,
		},
	}
}

// requiredPoolKeys must be present in every configuration file.
var requiredPoolKeys = []string{"workers", "averageDelay", "failurePercentage"}

// LoadConfig reads, parses and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.ConfigurationError{Reason: "reading config file", Err: err}
	}
	return Parse(data)
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadConfig(path)
}

// Parse decodes and validates YAML configuration. Fields not present keep
// their defaults, except the pool keys in requiredPoolKeys.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, core.NewConfigurationError("", "config file is empty")
		}
		return nil, &core.ConfigurationError{Reason: "parsing config file", Err: err}
	}

	var raw struct {
		Pool map[string]yaml.Node `yaml:"pool"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &core.ConfigurationError{Reason: "parsing config file", Err: err}
	}
	for _, key := range requiredPoolKeys {
		if _, ok := raw.Pool[key]; !ok {
			return nil, core.NewConfigurationError("pool."+key, "is required")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and returns the first problem found as a
// *core.ConfigurationError.
func (c *Config) Validate() error {
	p := c.Pool
	if p.Workers < 1 {
		return &core.ConfigurationError{Field: "pool.workers", Reason: fmt.Sprintf("must be >= 1, got %d", p.Workers), Err: core.ErrEmptyPool}
	}
	if p.WorkerWeight < 1 {
		return core.NewConfigurationError("pool.workerWeight", "must be >= 1, got %d", p.WorkerWeight)
	}
	if p.RequestPoolSize < 0 {
		return core.NewConfigurationError("pool.requestPoolSize", "must be >= 0, got %d", p.RequestPoolSize)
	}
	if p.Jitter < 0 || p.Jitter > simulate.MaxDelay {
		return core.NewConfigurationError("pool.jitter", "must be within [0,%v], got %v", simulate.MaxDelay, p.Jitter)
	}
	if err := c.SimulateParams().Validate(); err != nil {
		return err
	}

	if c.Server.ShutdownTimeout < 0 {
		return core.NewConfigurationError("server.shutdownTimeout", "must be >= 0")
	}
	if c.Server.RateLimit < 0 {
		return core.NewConfigurationError("server.rateLimit", "must be >= 0, got %v", c.Server.RateLimit)
	}
	if c.Server.Burst < 0 {
		return core.NewConfigurationError("server.burst", "must be >= 0, got %d", c.Server.Burst)
	}

	switch c.Sink.Type {
	case SinkNone, SinkStdout:
	case SinkFile:
		if c.Sink.Path == "" {
			return core.NewConfigurationError("sink.path", "is required for the file sink")
		}
	case SinkRedis:
		if c.Sink.Redis.Addr == "" {
			return core.NewConfigurationError("sink.redis.addr", "is required for the redis sink")
		}
	default:
		return core.NewConfigurationError("sink.type", "unknown sink %q (use file, stdout, redis or none)", c.Sink.Type)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return core.NewConfigurationError("log.level", "unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return core.NewConfigurationError("log.format", "unknown format %q (use console or json)", c.Log.Format)
	}

	if c.Load.Concurrency < 1 {
		return core.NewConfigurationError("load.concurrency", "must be >= 1, got %d", c.Load.Concurrency)
	}
	if c.Load.RPS < 0 {
		return core.NewConfigurationError("load.rps", "must be >= 0, got %d", c.Load.RPS)
	}
	if c.Load.Target != "" {
		u, err := url.Parse(c.Load.Target)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return core.NewConfigurationError("load.target", "must be an absolute URL, got %q", c.Load.Target)
		}
	}

	if err := c.Thresholds.Validate(); err != nil {
		return &core.ConfigurationError{Field: "thresholds.failureRate", Err: err}
	}
	return nil
}

// SimulateParams returns the outcome distribution described by the pool.
func (c *Config) SimulateParams() simulate.Params {
	return simulate.Params{
		AvgDelay:       c.Pool.AverageDelay,
		FailurePercent: c.Pool.FailurePercentage,
	}
}
