package stream_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/ValerySidorin/eprints-adaptor/pkg/stream"
	"github.com/ValerySidorin/eprints-adaptor/pkg/stream/streamtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(n int) []*record.Record {
	base := time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC)
	recs := make([]*record.Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, record.New(fmt.Sprintf("oai:eprints:%d", i), base.Add(time.Duration(i)*time.Minute), nil))
	}

	return recs
}

// counting wraps an iterator and records how many times it was pulled.
type counting struct {
	src   stream.Iterator
	pulls int
}

func (c *counting) Next(ctx context.Context) (*record.Record, bool, error) {
	c.pulls++
	return c.src.Next(ctx)
}

func TestFilterAndTakeAreLazy(t *testing.T) {
	src := &counting{src: streamtest.FromSlice(records(100))}

	odd := func(ctx context.Context, rec *record.Record) (bool, error) {
		return rec.Datestamp.Minute()%2 == 1, nil
	}

	got, err := streamtest.Collect(context.Background(), stream.Take(stream.Filter(src, odd), 3))
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, rec := range got {
		ids = append(ids, rec.Identifier)
	}
	assert.Equal(t, []string{"oai:eprints:1", "oai:eprints:3", "oai:eprints:5"}, ids)
	assert.Equal(t, 6, src.pulls)
}

type takeTest struct {
	available int
	limit     int
	expected  int
}

var takeTests = []takeTest{
	{10, 3, 3},
	{2, 3, 2},
	{0, 3, 0},
	{5, 0, 0},
}

func TestTake(t *testing.T) {
	for _, v := range takeTests {
		got, err := streamtest.Collect(context.Background(), stream.Take(streamtest.FromSlice(records(v.available)), v.limit))
		require.NoError(t, err)
		assert.Len(t, got, v.expected, fmt.Sprintf("available %d limit %d", v.available, v.limit))
	}
}

func TestTakeDoesNotPullAfterLimit(t *testing.T) {
	src := &counting{src: streamtest.FromSlice(records(10))}
	it := stream.Take(src, 2)

	_, err := streamtest.Collect(context.Background(), it)
	require.NoError(t, err)

	_, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, src.pulls)
}

func TestFilterPropagatesPredicateError(t *testing.T) {
	boom := errors.New("state store unavailable")
	it := stream.Filter(streamtest.FromSlice(records(3)), func(ctx context.Context, rec *record.Record) (bool, error) {
		return false, boom
	})

	_, ok, err := it.Next(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}
