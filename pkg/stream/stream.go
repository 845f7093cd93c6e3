package stream

import (
	"context"

	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
)

// Iterator is a pull-based record sequence. Next returns false once the
// sequence is exhausted; an error ends the sequence as well.
type Iterator interface {
	Next(ctx context.Context) (*record.Record, bool, error)
}

// Func adapts a plain function to Iterator.
type Func func(ctx context.Context) (*record.Record, bool, error)

func (f Func) Next(ctx context.Context) (*record.Record, bool, error) {
	return f(ctx)
}

type Predicate func(ctx context.Context, rec *record.Record) (bool, error)

type filter struct {
	src  Iterator
	pred Predicate
}

// Filter yields only the records accepted by pred. Records are pulled from
// src one at a time, only when the caller asks for the next one.
func Filter(src Iterator, pred Predicate) Iterator {
	return &filter{src: src, pred: pred}
}

func (f *filter) Next(ctx context.Context) (*record.Record, bool, error) {
	for {
		rec, ok, err := f.src.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}

		keep, err := f.pred(ctx, rec)
		if err != nil {
			return nil, false, err
		}

		if keep {
			return rec, true, nil
		}
	}
}

type take struct {
	src  Iterator
	left int
}

// Take yields at most n records. Once n records were yielded src is never
// pulled again.
func Take(src Iterator, n int) Iterator {
	return &take{src: src, left: n}
}

func (t *take) Next(ctx context.Context) (*record.Record, bool, error) {
	if t.left <= 0 {
		return nil, false, nil
	}

	rec, ok, err := t.src.Next(ctx)
	if err != nil || !ok {
		t.left = 0
		return nil, false, err
	}

	t.left--
	return rec, true, nil
}
