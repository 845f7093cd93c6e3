package processor

import (
	"context"
	"flag"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/message"
	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/ValerySidorin/eprints-adaptor/pkg/relocator"
	"github.com/ValerySidorin/eprints-adaptor/pkg/state/outcome"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Config struct {
	RelocationWorkers int            `yaml:"relocation_workers"`
	StateBackoff      backoff.Config `yaml:"state_backoff"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.IntVar(&c.RelocationWorkers, flagPrefix+"relocation-workers", 2, `Number of files of a single record relocated concurrently.`)
	f.DurationVar(&c.StateBackoff.MinBackoff, flagPrefix+"state-backoff.min-period", 100*time.Millisecond, `Minimum delay between state write attempts.`)
	f.DurationVar(&c.StateBackoff.MaxBackoff, flagPrefix+"state-backoff.max-period", 5*time.Second, `Maximum delay between state write attempts.`)
	f.IntVar(&c.StateBackoff.MaxRetries, flagPrefix+"state-backoff.max-retries", 3, `Number of state write attempts before the run is aborted.`)
}

type Relocator interface {
	Relocate(ctx context.Context, sourceURL string) (*relocator.File, bool, error)
}

type StateWriter interface {
	SetOutcome(ctx context.Context, o *outcome.Outcome) error
	SetWatermark(ctx context.Context, wm time.Time) error
}

type Output interface {
	PublishPrimary(ctx context.Context, msg string) error
	PublishInvalid(ctx context.Context, msg string) error
}

type metrics struct {
	records        *prometheus.CounterVec
	filesRelocated prometheus.Counter
	filesMissed    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	reg = prometheus.WrapRegistererWithPrefix("eprints_adaptor_", reg)
	return &metrics{
		records: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "records_processed_total",
			Help: "Records attempted, by outcome status.",
		}, []string{"status"}),
		filesRelocated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "files_relocated_total",
			Help: "Files copied from the repository to the object store.",
		}),
		filesMissed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "files_download_failed_total",
			Help: "Files that could not be downloaded and were left out of their message.",
		}),
	}
}

// Processor takes a single record through relocation, message assembly and
// publishing, and records the outcome. Gate failures end up on the invalid
// channel; only state write failures are returned.
type Processor struct {
	cfg Config
	log log.Logger

	relocator Relocator
	generator message.Generator
	validator message.Validator
	out       Output
	state     StateWriter

	metrics *metrics
}

func New(cfg Config, rel Relocator, gen message.Generator, val message.Validator,
	out Output, state StateWriter, reg prometheus.Registerer, logger log.Logger) *Processor {
	if cfg.RelocationWorkers <= 0 {
		cfg.RelocationWorkers = 1
	}
	if cfg.StateBackoff.MaxRetries <= 0 {
		cfg.StateBackoff.MaxRetries = 1
	}

	return &Processor{
		cfg:       cfg,
		log:       log.With(logger, "component", "processor"),
		relocator: rel,
		generator: gen,
		validator: val,
		out:       out,
		state:     state,
		metrics:   newMetrics(reg),
	}
}

func (p *Processor) Process(ctx context.Context, rec *record.Record) error {
	logger := log.With(p.log, "record", rec)

	res := p.run(ctx, rec)

	var o *outcome.Outcome
	if res.err == nil {
		o = outcome.New(rec.Identifier, outcome.Success, res.msg, "")
		_ = level.Info(logger).Log("msg", "record processed")
	} else {
		o = p.fail(ctx, logger, rec, res)
	}
	p.metrics.records.WithLabelValues(string(o.Status)).Inc()

	if err := p.retry(ctx, logger, func() error { return p.state.SetOutcome(ctx, o) }); err != nil {
		return errors.Wrapf(err, "processor: store outcome of %s", rec.Identifier)
	}

	if err := p.retry(ctx, logger, func() error { return p.state.SetWatermark(ctx, rec.Datestamp) }); err != nil {
		return errors.Wrapf(err, "processor: advance watermark to %s", rec.Datestamp.UTC().Format(time.RFC3339))
	}

	return nil
}

func (p *Processor) run(ctx context.Context, rec *record.Record) result {
	rel := p.relocate(ctx, rec)
	if rel.err != nil {
		return result{err: rel.err}
	}
	p.metrics.filesRelocated.Add(float64(len(rel.files)))
	p.metrics.filesMissed.Add(float64(rel.missed))

	res := p.assemble(rec, rel.files)
	if res.err != nil {
		return res
	}

	if err := p.publish(ctx, res.msg); err != nil {
		return result{msg: res.msg, err: err}
	}

	return res
}

func (p *Processor) fail(ctx context.Context, logger log.Logger, rec *record.Record, res result) *outcome.Outcome {
	reason := res.err.Error()
	code := res.err.Code()
	_ = level.Warn(logger).Log("msg", "record failed", "gate", res.err.gate, "code", code, "err", reason)

	msg, err := message.Decorate(res.msg, code, reason)
	if err != nil {
		_ = level.Warn(logger).Log("msg", "unable to add error header, publishing message unmodified", "err", err)
	}

	if err := p.out.PublishInvalid(ctx, msg); err != nil {
		_ = level.Error(logger).Log("msg", "unable to publish to invalid channel", "err", err)
	}

	return outcome.New(rec.Identifier, outcome.Failure, msg, reason)
}

func (p *Processor) retry(ctx context.Context, logger log.Logger, fn func() error) error {
	var err error
	b := backoff.New(ctx, p.cfg.StateBackoff)
	for b.Ongoing() {
		if err = fn(); err == nil {
			return nil
		}

		_ = level.Warn(logger).Log("msg", "state write failed", "retries", b.NumRetries(), "err", err)
		if b.NumRetries()+1 >= p.cfg.StateBackoff.MaxRetries {
			break
		}
		b.Wait()
	}

	if err == nil {
		err = b.Err()
	}

	return err
}
