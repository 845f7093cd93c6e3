package state

import (
	"context"
	"flag"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/state/memory"
	"github.com/ValerySidorin/eprints-adaptor/pkg/state/outcome"
	"github.com/ValerySidorin/eprints-adaptor/pkg/state/pg"
	"github.com/ValerySidorin/eprints-adaptor/pkg/state/redis"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
)

type Config struct {
	Store string       `yaml:"store"`
	Pg    pg.Config    `yaml:"pg"`
	Redis redis.Config `yaml:"redis"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Store, flagPrefix+"store", "", `Store, that will be used to persist the watermark and record outcomes: pg, redis or memory.`)
	c.Pg.RegisterFlags(flagPrefix, f)
	c.Redis.RegisterFlags(flagPrefix, f)
}

// Store persists harvest progress: the global watermark and the outcome of
// the latest attempt per record identifier.
type Store interface {
	GetWatermark(ctx context.Context) (time.Time, bool, error)
	SetWatermark(ctx context.Context, wm time.Time) error
	GetOutcome(ctx context.Context, identifier string) (outcome.Status, bool, error)
	SetOutcome(ctx context.Context, o *outcome.Outcome) error
	Dispose(ctx context.Context) error
}

func NewStore(ctx context.Context, cfg Config, log log.Logger) (Store, error) {
	switch cfg.Store {
	case "pg":
		return pg.NewStore(ctx, cfg.Pg, log)
	case "redis":
		return redis.NewStore(ctx, cfg.Redis, log)
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, errors.New("invalid state store in config")
	}
}
