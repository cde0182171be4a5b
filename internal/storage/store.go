// Package storage persists processed records. Every sink implements Store; the processor
// talks to a Fanout that hands each record to all configured sinks.
package storage

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"

	"github.com/lucaslui/hems/gait-processor/internal/model"
)

type Store interface {
	Insert(ctx context.Context, rec *model.ProcessedRecord) error
	Name() string
	Close(ctx context.Context) error
}

// Fanout inserts into every store in order. A failing store does not stop the others.
type Fanout struct {
	stores []Store
}

func NewFanout(stores ...Store) *Fanout {
	return &Fanout{stores: stores}
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Len() int { return len(f.stores) }

func (f *Fanout) Insert(ctx context.Context, rec *model.ProcessedRecord) error {
	var errs []error
	for _, s := range f.stores {
		if err := s.Insert(ctx, rec); err != nil {
			errs = append(errs, errors.Wrapf(err, "%s insert", s.Name()))
		}
	}
	return stderrors.Join(errs...)
}

// Close closes the stores in reverse order.
func (f *Fanout) Close(ctx context.Context) error {
	var errs []error
	for i := len(f.stores) - 1; i >= 0; i-- {
		if err := f.stores[i].Close(ctx); err != nil {
			errs = append(errs, errors.Wrapf(err, "%s close", f.stores[i].Name()))
		}
	}
	return stderrors.Join(errs...)
}
