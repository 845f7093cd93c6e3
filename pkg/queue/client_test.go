package queue

import (
	"context"
	"testing"

	"github.com/ValerySidorin/eprints-adaptor/pkg/queue/memory"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutput(t *testing.T) {
	ctx := context.Background()
	pub := memory.NewPublisher()
	out := NewOutput(pub, "rdss.primary", "rdss.invalid")

	require.NoError(t, out.PublishPrimary(ctx, `{"a":1}`))
	require.NoError(t, out.PublishInvalid(ctx, `{"b":2}`))
	require.NoError(t, out.ClosePrimary(ctx))

	assert.Equal(t, []string{`{"a":1}`}, pub.Messages("rdss.primary"))
	assert.Equal(t, []string{`{"b":2}`}, pub.Messages("rdss.invalid"))
	assert.True(t, pub.Closed("rdss.primary"))
	assert.False(t, pub.Closed("rdss.invalid"))

	assert.Error(t, out.PublishPrimary(ctx, `{"c":3}`))
	assert.NoError(t, out.PublishInvalid(ctx, `{"d":4}`))
}

func TestNewPublisher(t *testing.T) {
	pub, err := NewPublisher(Config{Type: "memory"}, log.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &memory.Publisher{}, pub)

	_, err = NewPublisher(Config{Type: "carrier-pigeon"}, log.NewNopLogger())
	assert.Error(t, err)

	_, err = NewPublisher(Config{Type: "kafka"}, log.NewNopLogger())
	assert.Error(t, err)
}
