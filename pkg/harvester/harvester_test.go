package harvester

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/filter"
	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/ValerySidorin/eprints-adaptor/pkg/state/memory"
	"github.com/ValerySidorin/eprints-adaptor/pkg/state/outcome"
	"github.com/ValerySidorin/eprints-adaptor/pkg/stream"
	"github.com/go-kit/log"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now  = time.Date(2023, 3, 14, 10, 0, 0, 0, time.UTC)
	base = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
)

type fakeSource struct {
	recs  []*record.Record
	err   error
	from  []time.Time
	pulls int
}

func (s *fakeSource) RecordsSince(_ context.Context, from time.Time) stream.Iterator {
	s.from = append(s.from, from)
	i := 0
	return stream.Func(func(ctx context.Context) (*record.Record, bool, error) {
		s.pulls++
		if i >= len(s.recs) {
			return nil, false, s.err
		}
		rec := s.recs[i]
		i++
		return rec, true, nil
	})
}

func (s *fakeSource) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

type fakeProcessor struct {
	state  *memory.Store
	failOn string
	seen   []string
}

func (p *fakeProcessor) Process(ctx context.Context, rec *record.Record) error {
	if rec.Identifier == p.failOn {
		return errors.New("connection reset")
	}

	p.seen = append(p.seen, rec.Identifier)
	if err := p.state.SetOutcome(ctx, outcome.New(rec.Identifier, outcome.Success, "{}", "")); err != nil {
		return err
	}
	return p.state.SetWatermark(ctx, rec.Datestamp)
}

type fakeOutput struct {
	closed int
}

func (o *fakeOutput) ClosePrimary(context.Context) error {
	o.closed++
	return nil
}

type fakeValidator struct {
	shutdowns int
}

func (v *fakeValidator) Shutdown() {
	v.shutdowns++
}

type fixture struct {
	h     *Harvester
	src   *fakeSource
	proc  *fakeProcessor
	state *memory.Store
	out   *fakeOutput
	val   *fakeValidator
}

func newFixture(t *testing.T, flowLimit int, recs ...*record.Record) *fixture {
	state := memory.NewStore()
	f := &fixture{
		src:   &fakeSource{recs: recs},
		proc:  &fakeProcessor{state: state},
		state: state,
		out:   &fakeOutput{},
		val:   &fakeValidator{},
	}

	h, err := New(Config{FlowLimit: flowLimit}, Deps{
		Source:    f.src,
		Store:     state,
		Filter:    filter.New(state, log.NewNopLogger()),
		Processor: f.proc,
		Output:    f.out,
		Validator: f.val,
	}, prometheus.NewPedanticRegistry(), log.NewNopLogger())
	require.NoError(t, err)
	h.now = func() time.Time { return now }
	f.h = h

	return f
}

func (f *fixture) run(t *testing.T) error {
	ctx := context.Background()
	require.NoError(t, f.h.StartAsync(ctx))
	return f.h.AwaitTerminated(ctx)
}

func newRecords(n int) []*record.Record {
	recs := make([]*record.Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, record.New(string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour), nil))
	}
	return recs
}

func TestNewRejectsFlowLimit(t *testing.T) {
	for _, limit := range []int{0, -1} {
		_, err := New(Config{FlowLimit: limit}, Deps{}, prometheus.NewPedanticRegistry(), log.NewNopLogger())
		assert.Error(t, err)
	}
}

func TestRunEmpty(t *testing.T) {
	f := newFixture(t, 10)

	require.NoError(t, f.run(t))

	wm, ok, err := f.state.GetWatermark(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now, wm)
	assert.Equal(t, []time.Time{now}, f.src.from)

	assert.Empty(t, f.proc.seen)
	assert.Equal(t, 1, f.out.closed)
	assert.Equal(t, 1, f.val.shutdowns)
	assert.Equal(t, services.Terminated, f.h.State())
}

func TestRunTruncatesInitialWatermark(t *testing.T) {
	f := newFixture(t, 10)
	f.h.now = func() time.Time { return now.Add(750 * time.Millisecond) }

	require.NoError(t, f.run(t))

	wm, ok, err := f.state.GetWatermark(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now, wm)
	assert.Equal(t, []time.Time{now}, f.src.from)
}

func TestRunResumesFromWatermark(t *testing.T) {
	f := newFixture(t, 10, newRecords(3)...)
	require.NoError(t, f.state.SetWatermark(context.Background(), base))

	require.NoError(t, f.run(t))

	assert.Equal(t, []time.Time{base}, f.src.from)
	assert.Equal(t, []string{"a", "b", "c"}, f.proc.seen)

	wm, _, err := f.state.GetWatermark(context.Background())
	require.NoError(t, err)
	assert.Equal(t, base.Add(2*time.Hour), wm)
	assert.Equal(t, float64(wm.Unix()), testutil.ToFloat64(f.h.metrics.watermark))
}

func TestRunFlowLimit(t *testing.T) {
	f := newFixture(t, 2, newRecords(5)...)

	require.NoError(t, f.run(t))

	assert.Equal(t, []string{"a", "b"}, f.proc.seen)
	assert.Equal(t, 2, f.src.pulls)
}

func TestRunSkipsSucceeded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2, newRecords(4)...)
	require.NoError(t, f.state.SetOutcome(ctx, outcome.New("a", outcome.Success, "{}", "")))
	require.NoError(t, f.state.SetOutcome(ctx, outcome.New("b", outcome.Failure, "-", "boom")))

	require.NoError(t, f.run(t))

	assert.Equal(t, []string{"b", "c"}, f.proc.seen)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.h.metrics.skipped))
}

func TestRunProcessorError(t *testing.T) {
	f := newFixture(t, 10, newRecords(3)...)
	f.proc.failOn = "b"

	assert.Error(t, f.run(t))
	assert.Equal(t, services.Failed, f.h.State())
	assert.ErrorContains(t, f.h.FailureCase(), "connection reset")

	assert.Equal(t, []string{"a"}, f.proc.seen)
	assert.Equal(t, 1, f.out.closed)
	assert.Equal(t, 1, f.val.shutdowns)

	f.h.shutdown()
	assert.Equal(t, 1, f.out.closed)
	assert.Equal(t, 1, f.val.shutdowns)
}

func TestRunSourceError(t *testing.T) {
	f := newFixture(t, 10, newRecords(1)...)
	f.src.err = errors.New("oai: badResumptionToken")

	assert.Error(t, f.run(t))
	assert.ErrorContains(t, f.h.FailureCase(), "badResumptionToken")
	assert.Equal(t, []string{"a"}, f.proc.seen)
	assert.Equal(t, 1, f.out.closed)
}

func TestShutdownSkipsNilCollaborators(t *testing.T) {
	h, err := New(Config{FlowLimit: 1}, Deps{}, prometheus.NewPedanticRegistry(), log.NewNopLogger())
	require.NoError(t, err)

	assert.NotPanics(t, h.shutdown)
	assert.True(t, h.shutdownDone.Load())
}
