package redis

import (
	"context"
	"flag"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/state/outcome"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	watermarkKey = "watermark"
	processedKey = "processed:"
)

type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Addr, flagPrefix+"redis.addr", "localhost:6379", `Redis address.`)
	f.StringVar(&c.Password, flagPrefix+"redis.password", "", `Redis password.`)
	f.IntVar(&c.DB, flagPrefix+"redis.db", 0, `Redis database.`)
	f.StringVar(&c.Prefix, flagPrefix+"redis.prefix", "eprints:", `Prefix of every key written by the adaptor.`)
}

// Store keeps the watermark in a string key and each outcome in its own hash.
type Store struct {
	cfg    Config
	log    log.Logger
	client *redis.Client
}

func NewStore(ctx context.Context, cfg Config, log log.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis: ping")
	}

	return &Store{
		cfg:    cfg,
		log:    log,
		client: client,
	}, nil
}

func (s *Store) key(k string) string {
	return s.cfg.Prefix + k
}

func (s *Store) GetWatermark(ctx context.Context) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.key(watermarkKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}

		return time.Time{}, false, errors.Wrap(err, "redis: get watermark")
	}

	wm, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "redis: parse watermark")
	}

	return wm.UTC(), true, nil
}

func (s *Store) SetWatermark(ctx context.Context, wm time.Time) error {
	if err := s.client.Set(ctx, s.key(watermarkKey), wm.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return errors.Wrap(err, "redis: set watermark")
	}

	return nil
}

func (s *Store) GetOutcome(ctx context.Context, identifier string) (outcome.Status, bool, error) {
	val, err := s.client.HGet(ctx, s.key(processedKey+identifier), "status").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, errors.Wrap(err, "redis: get outcome")
	}

	st, err := outcome.ParseStatus(val)
	if err != nil {
		return "", false, errors.Wrap(err, "redis: get outcome")
	}

	return st, true, nil
}

func (s *Store) SetOutcome(ctx context.Context, o *outcome.Outcome) error {
	err := s.client.HSet(ctx, s.key(processedKey+o.Identifier),
		"status", string(o.Status),
		"message", o.Message,
		"reason", o.Reason,
		"updated_at", o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return errors.Wrap(err, "redis: set outcome")
	}

	return nil
}

func (s *Store) Dispose(ctx context.Context) error {
	if err := s.client.Close(); err != nil {
		return errors.Wrap(err, "redis: close client")
	}

	return nil
}
