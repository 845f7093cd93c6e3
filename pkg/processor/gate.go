package processor

import (
	"context"

	"github.com/ValerySidorin/eprints-adaptor/pkg/message"
	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/ValerySidorin/eprints-adaptor/pkg/relocator"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

type gate int

const (
	gateRelocation gate = iota
	gateGeneration
	gateSerialization
	gateValidation
	gatePublish
)

func (g gate) String() string {
	switch g {
	case gateRelocation:
		return "relocation"
	case gateGeneration:
		return "generation"
	case gateSerialization:
		return "serialization"
	case gateValidation:
		return "validation"
	case gatePublish:
		return "publish"
	}

	return "unknown"
}

// gateError is the failure of one processing gate.
type gateError struct {
	gate gate
	err  error
}

func (e *gateError) Error() string {
	return e.err.Error()
}

func (e *gateError) Code() message.ErrorCode {
	switch e.gate {
	case gateSerialization:
		return message.ErrMalformedJSON
	case gateValidation:
		return message.ErrInvalidMessage
	default:
		return message.ErrUnexpected
	}
}

// result carries the message as far as it got through the gates. On failure
// msg holds the last message produced, possibly empty.
type result struct {
	msg string
	err *gateError
}

type relocation struct {
	files  []*relocator.File
	missed int
	err    *gateError
}

func (p *Processor) relocate(ctx context.Context, rec *record.Record) relocation {
	urls := lo.Filter(rec.Values(record.IdentifierField), func(v string, _ int) bool {
		return record.IsFileURL(v)
	})
	if len(urls) == 0 {
		return relocation{}
	}

	slots := make([]*relocator.File, len(urls))
	wp := pool.New().WithContext(ctx).WithMaxGoroutines(p.cfg.RelocationWorkers)
	for i, u := range urls {
		i, u := i, u
		wp.Go(func(ctx context.Context) error {
			f, ok, err := p.relocator.Relocate(ctx, u)
			if err != nil {
				return err
			}
			if ok {
				slots[i] = f
			}
			return nil
		})
	}

	if err := wp.Wait(); err != nil {
		return relocation{err: &gateError{gate: gateRelocation, err: err}}
	}

	files := lo.Filter(slots, func(f *relocator.File, _ int) bool {
		return f != nil
	})

	return relocation{
		files:  files,
		missed: len(urls) - len(files),
	}
}

func (p *Processor) assemble(rec *record.Record, files []*relocator.File) result {
	raw, err := p.generator.Generate(rec, files)
	if err != nil {
		return result{err: &gateError{gate: gateGeneration, err: err}}
	}

	canonical, err := message.Canonicalize(raw)
	if err != nil {
		return result{msg: raw, err: &gateError{gate: gateSerialization, err: err}}
	}

	if err := p.validator.Validate(canonical); err != nil {
		return result{msg: canonical, err: &gateError{gate: gateValidation, err: err}}
	}

	return result{msg: canonical}
}

func (p *Processor) publish(ctx context.Context, msg string) *gateError {
	if err := p.out.PublishPrimary(ctx, msg); err != nil {
		return &gateError{gate: gatePublish, err: errors.Wrap(err, "processor: publish message")}
	}

	return nil
}
