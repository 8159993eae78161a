package memory

import (
	"context"
	"sync"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

// Notifier is an in-memory outbox.
type Notifier struct {
	mu     sync.Mutex
	outbox []domain.Notification
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) EnqueueNotification(ctx context.Context, note domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outbox = append(n.outbox, note)
	return nil
}

// Notifications returns a copy of everything enqueued so far.
func (n *Notifier) Notifications() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.outbox...)
}
