package storage

import (
	"context"
	"errors"

	"contractScope/internal/model"
)

// Storage defines a sink for event records.
type Storage interface {
	PutEventBatch(ctx context.Context, records []model.EventRecord) error
}

// Fanout writes every batch to each sink in order. All sinks are attempted;
// their errors are joined.
type Fanout []Storage

func (f Fanout) PutEventBatch(ctx context.Context, records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.PutEventBatch(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
