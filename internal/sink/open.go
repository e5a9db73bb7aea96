package sink

import (
	"context"
	"io"
	"os"

	"lbsim/internal/config"
	"lbsim/internal/core"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the sink selected by cfg. The returned closer must be
// called on shutdown.
func Open(ctx context.Context, cfg config.SinkConfig) (core.LineSink, io.Closer, error) {
	switch cfg.Type {
	case config.SinkFile:
		f, err := OpenFile(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	case config.SinkStdout:
		return NewWriter(os.Stdout), nopCloser{}, nil
	case config.SinkRedis:
		r, err := OpenRedis(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case config.SinkNone, "":
		return Discard{}, nopCloser{}, nil
	default:
		return nil, nil, core.NewConfigurationError("sink.type", "unknown sink %q", cfg.Type)
	}
}
