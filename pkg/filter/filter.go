package filter

import (
	"context"

	"github.com/ValerySidorin/eprints-adaptor/pkg/oai/record"
	"github.com/ValerySidorin/eprints-adaptor/pkg/state/outcome"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// OutcomeReader is the part of the state store the filter needs.
type OutcomeReader interface {
	GetOutcome(ctx context.Context, identifier string) (outcome.Status, bool, error)
}

// Filter drops records that were already processed successfully. Records
// never seen before and records whose last attempt failed pass through.
type Filter struct {
	store OutcomeReader
	log   log.Logger
}

func New(store OutcomeReader, log log.Logger) *Filter {
	return &Filter{
		store: store,
		log:   log,
	}
}

func (f *Filter) ShouldProcess(ctx context.Context, rec *record.Record) (bool, error) {
	status, ok, err := f.store.GetOutcome(ctx, rec.Identifier)
	if err != nil {
		return false, errors.Wrapf(err, "filter: get outcome of %s", rec.Identifier)
	}

	if !ok {
		_ = level.Debug(f.log).Log("msg", "new record, processing", "record", rec)
		return true, nil
	}

	if status == outcome.Success {
		_ = level.Info(f.log).Log("msg", "record already processed, skipping", "record", rec)
		return false, nil
	}

	_ = level.Info(f.log).Log("msg", "record failed previously, retrying", "record", rec)
	return true, nil
}
