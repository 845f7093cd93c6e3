package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/state/outcome"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermark(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, found, err := s.GetWatermark(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	wm := time.Date(2004, 2, 16, 17, 10, 55, 0, time.FixedZone("MSK", 3*60*60))
	require.NoError(t, s.SetWatermark(ctx, wm))

	got, found, err := s.GetWatermark(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, wm.Equal(got))
	assert.Equal(t, time.UTC, got.Location())
}

func TestOutcomeIsOverwritten(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, found, err := s.GetOutcome(ctx, "hdl:1765/1163")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetOutcome(ctx, outcome.New("hdl:1765/1163", outcome.Failure, "", "download failed")))
	require.NoError(t, s.SetOutcome(ctx, outcome.New("hdl:1765/1163", outcome.Success, `{"a":1}`, "")))

	st, found, err := s.GetOutcome(ctx, "hdl:1765/1163")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, outcome.Success, st)

	o, ok := s.Outcome("hdl:1765/1163")
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, o.Message)
	assert.Equal(t, outcome.Placeholder, o.Reason)
}
