// Package streamtest holds iterator helpers for tests.
package streamtest

import (
	"context"

	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/ValerySidorin/eprints-adaptor/pkg/stream"
)

// FromSlice iterates over an in-memory slice.
func FromSlice(recs []*record.Record) stream.Iterator {
	i := 0
	return stream.Func(func(ctx context.Context) (*record.Record, bool, error) {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		if i >= len(recs) {
			return nil, false, nil
		}

		rec := recs[i]
		i++
		return rec, true, nil
	})
}

// Collect drains it into a slice.
func Collect(ctx context.Context, it stream.Iterator) ([]*record.Record, error) {
	res := make([]*record.Record, 0)
	for {
		rec, ok, err := it.Next(ctx)
		if err != nil {
			return res, err
		}

		if !ok {
			return res, nil
		}

		res = append(res, rec)
	}
}
