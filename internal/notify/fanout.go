package notify

import (
	"context"
	"errors"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

// Notifier accepts a statement outcome.
type Notifier interface {
	EnqueueNotification(ctx context.Context, n domain.Notification) error
}

// Fanout sends every notification to all sinks. A failing sink does not stop
// the others; their errors are joined.
type Fanout []Notifier

func (f Fanout) EnqueueNotification(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, sink := range f {
		if err := sink.EnqueueNotification(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
