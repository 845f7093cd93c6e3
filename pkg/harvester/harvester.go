package harvester

import (
	"context"
	"flag"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/ValerySidorin/eprints-adaptor/pkg/stream"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

type Config struct {
	FlowLimit       int           `yaml:"flow_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.IntVar(&c.FlowLimit, flagPrefix+"flow-limit", 0, `Maximum number of records processed in a single run.`)
	f.DurationVar(&c.ShutdownTimeout, flagPrefix+"shutdown-timeout", 30*time.Second, `Time allowed for closing the output channel at the end of a run.`)
}

func (c *Config) Validate() error {
	if c.FlowLimit <= 0 {
		return errors.New("harvester: flow limit must be greater than zero")
	}

	return nil
}

// Source lists records modified at or after a point in time. Truncate rounds
// a time down to the datestamp granularity of the source.
type Source interface {
	RecordsSince(ctx context.Context, from time.Time) stream.Iterator
	Truncate(t time.Time) time.Time
}

type WatermarkStore interface {
	GetWatermark(ctx context.Context) (time.Time, bool, error)
	SetWatermark(ctx context.Context, wm time.Time) error
}

type Filter interface {
	ShouldProcess(ctx context.Context, rec *record.Record) (bool, error)
}

type Processor interface {
	Process(ctx context.Context, rec *record.Record) error
}

type Closer interface {
	ClosePrimary(ctx context.Context) error
}

type Shutdowner interface {
	Shutdown()
}

// Deps are the collaborators of a harvest run. Output and Validator may be
// nil, they are skipped on shutdown then.
type Deps struct {
	Source    Source
	Store     WatermarkStore
	Filter    Filter
	Processor Processor
	Output    Closer
	Validator Shutdowner
}

type metrics struct {
	skipped     prometheus.Counter
	watermark   prometheus.Gauge
	runDuration prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	reg = prometheus.WrapRegistererWithPrefix("eprints_adaptor_", reg)
	return &metrics{
		skipped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "records_skipped_total",
			Help: "Records skipped because they were already processed successfully.",
		}),
		watermark: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "watermark_seconds",
			Help: "Datestamp of the most recently attempted record, in unix seconds.",
		}),
		runDuration: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "run_duration_seconds",
			Help: "Duration of the last harvest run.",
		}),
	}
}

// Harvester runs a single incremental harvest: every record changed since the
// watermark that has not been processed successfully yet, up to the flow
// limit, is handed to the processor in source order. The service terminates
// once the run is over.
type Harvester struct {
	services.Service

	cfg  Config
	deps Deps
	log  log.Logger

	shutdownDone *atomic.Bool
	now          func() time.Time
	metrics      *metrics
}

func New(cfg Config, deps Deps, reg prometheus.Registerer, logger log.Logger) (*Harvester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	h := &Harvester{
		cfg:          cfg,
		deps:         deps,
		log:          log.With(logger, "service", "harvester"),
		shutdownDone: atomic.NewBool(false),
		now:          time.Now,
		metrics:      newMetrics(reg),
	}
	h.Service = services.NewBasicService(nil, h.run, h.stop)

	return h, nil
}

func (h *Harvester) run(ctx context.Context) error {
	start := h.now()
	defer func() {
		h.metrics.runDuration.Set(time.Since(start).Seconds())
	}()

	wm, err := h.watermark(ctx)
	if err != nil {
		return err
	}
	_ = level.Info(h.log).Log("msg", "harvest started", "from", wm.Format(time.RFC3339), "flow_limit", h.cfg.FlowLimit)

	it := stream.Take(stream.Filter(h.deps.Source.RecordsSince(ctx, wm), h.shouldProcess), h.cfg.FlowLimit)

	processed := 0
	for {
		rec, ok, err := it.Next(ctx)
		if err != nil {
			return errors.Wrap(err, "harvester: fetch records")
		}
		if !ok {
			break
		}

		if err := h.deps.Processor.Process(ctx, rec); err != nil {
			return errors.Wrapf(err, "harvester: process %s", rec.Identifier)
		}
		h.metrics.watermark.Set(float64(rec.Datestamp.Unix()))
		processed++
	}

	_ = level.Info(h.log).Log("msg", "harvest finished", "processed", processed)
	return nil
}

// watermark returns the stored watermark, initializing it with the current
// time on the very first run.
func (h *Harvester) watermark(ctx context.Context) (time.Time, error) {
	wm, ok, err := h.deps.Store.GetWatermark(ctx)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "harvester: get watermark")
	}

	if !ok {
		wm = h.deps.Source.Truncate(h.now())
		if err := h.deps.Store.SetWatermark(ctx, wm); err != nil {
			return time.Time{}, errors.Wrap(err, "harvester: initialize watermark")
		}
		_ = level.Info(h.log).Log("msg", "watermark initialized", "watermark", wm.Format(time.RFC3339))
	}

	h.metrics.watermark.Set(float64(wm.Unix()))
	return wm, nil
}

func (h *Harvester) shouldProcess(ctx context.Context, rec *record.Record) (bool, error) {
	ok, err := h.deps.Filter.ShouldProcess(ctx, rec)
	if err != nil {
		return false, err
	}
	if !ok {
		h.metrics.skipped.Inc()
	}

	return ok, nil
}

func (h *Harvester) stop(failureCase error) error {
	if failureCase != nil {
		_ = level.Error(h.log).Log("msg", "harvest failed", "err", failureCase)
	}

	h.shutdown()
	return nil
}

// shutdown closes the primary output channel and releases the validator. It
// runs at most once per harvester.
func (h *Harvester) shutdown() {
	if !h.shutdownDone.CompareAndSwap(false, true) {
		return
	}

	if h.deps.Output != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ShutdownTimeout)
		defer cancel()

		if err := h.deps.Output.ClosePrimary(ctx); err != nil {
			_ = level.Error(h.log).Log("msg", "unable to close output channel", "err", err)
		}
	}

	if h.deps.Validator != nil {
		h.deps.Validator.Shutdown()
	}

	_ = level.Debug(h.log).Log("msg", "harvester shut down")
}
