package pg

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/state/outcome"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const watermarkID = 1

type Config struct {
	Conn           string `yaml:"conn"`
	WatermarkTable string `yaml:"watermark_table"`
	ProcessedTable string `yaml:"processed_table"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Conn, flagPrefix+"pg.conn", "", `Postgres connection string`)
	f.StringVar(&c.WatermarkTable, flagPrefix+"pg.watermark-table", "eprints_watermark", `Table holding the harvest high watermark.`)
	f.StringVar(&c.ProcessedTable, flagPrefix+"pg.processed-table", "eprints_processed", `Table holding per-record processing outcomes.`)
}

type Store struct {
	cfg  Config
	log  log.Logger
	conn *pgx.Conn

	watermarkTable string
	processedTable string
}

func NewStore(ctx context.Context, cfg Config, log log.Logger) (*Store, error) {
	conn, err := pgx.Connect(ctx, cfg.Conn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: init connection")
	}

	s := &Store{
		cfg:            cfg,
		log:            log,
		conn:           conn,
		watermarkTable: pgx.Identifier{cfg.WatermarkTable}.Sanitize(),
		processedTable: pgx.Identifier{cfg.ProcessedTable}.Sanitize(),
	}

	q := fmt.Sprintf(`create table if not exists %s (
		id smallint primary key,
		watermark timestamptz not null);`, s.watermarkTable)
	if _, err := conn.Exec(ctx, q); err != nil {
		return nil, errors.Wrap(err, "postgres: init watermark table")
	}

	q = fmt.Sprintf(`create table if not exists %s (
		identifier text primary key,
		status text not null,
		message text not null,
		reason text not null,
		updated_at timestamptz not null);`, s.processedTable)
	if _, err := conn.Exec(ctx, q); err != nil {
		return nil, errors.Wrap(err, "postgres: init processed table")
	}

	return s, nil
}

func (s *Store) GetWatermark(ctx context.Context) (time.Time, bool, error) {
	q := fmt.Sprintf("select watermark from %s where id = $1;", s.watermarkTable)

	var wm time.Time
	if err := s.conn.QueryRow(ctx, q, watermarkID).Scan(&wm); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}

		return time.Time{}, false, errors.Wrap(err, "postgres: get watermark")
	}

	return wm.UTC(), true, nil
}

func (s *Store) SetWatermark(ctx context.Context, wm time.Time) error {
	q := fmt.Sprintf(`insert into %s (id, watermark) values ($1, $2)
	on conflict (id) do update set watermark = excluded.watermark;`, s.watermarkTable)

	if _, err := s.conn.Exec(ctx, q, watermarkID, wm.UTC()); err != nil {
		return errors.Wrap(err, "postgres: set watermark")
	}

	_ = level.Debug(s.log).Log("msg", "watermark updated", "watermark", wm.UTC().Format(time.RFC3339))
	return nil
}

func (s *Store) GetOutcome(ctx context.Context, identifier string) (outcome.Status, bool, error) {
	q := fmt.Sprintf("select status from %s where identifier = $1;", s.processedTable)

	var status string
	if err := s.conn.QueryRow(ctx, q, identifier).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}

		return "", false, errors.Wrap(err, "postgres: get outcome")
	}

	st, err := outcome.ParseStatus(status)
	if err != nil {
		return "", false, errors.Wrap(err, "postgres: get outcome")
	}

	return st, true, nil
}

func (s *Store) SetOutcome(ctx context.Context, o *outcome.Outcome) error {
	q := fmt.Sprintf(`insert into %s (identifier, status, message, reason, updated_at)
	values ($1, $2, $3, $4, $5)
	on conflict (identifier) do update
	set status = excluded.status,
	message = excluded.message,
	reason = excluded.reason,
	updated_at = excluded.updated_at;`, s.processedTable)

	if _, err := s.conn.Exec(ctx, q, o.Identifier, string(o.Status), o.Message, o.Reason, o.UpdatedAt); err != nil {
		return errors.Wrap(err, "postgres: set outcome")
	}

	return nil
}

func (s *Store) Dispose(ctx context.Context) error {
	if err := s.conn.Close(ctx); err != nil {
		return errors.Wrap(err, "postgres: close connection")
	}

	return nil
}
