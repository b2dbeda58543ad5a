package storage

import (
	"context"

	"curveLaunch/internal/model"
)

// Storage defines a sink for encoded market event logs.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}

// Fanout writes every batch to each sink in order and stops at the first
// failure.
type Fanout []Storage

func (f Fanout) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.PutLogBatch(ctx, logs); err != nil {
			return err
		}
	}
	return nil
}
