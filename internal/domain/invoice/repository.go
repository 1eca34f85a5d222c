// internal/domain/invoice/repository.go
package invoice

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyReminded is returned by MarkReminderSent when the invoice already
// carries a reminder timestamp.
var ErrAlreadyReminded = errors.New("invoice reminder already recorded")

// Repository defines the store operations the reminder worker depends on.
type Repository interface {
	// ListDueForReminder returns invoices eligible for a reminder at now, ordered
	// by due date ascending and capped at limit.
	ListDueForReminder(ctx context.Context, now time.Time, window Window, limit int) ([]*Invoice, error)
	// MarkReminderSent sets sms_reminder_sent_at for the invoice if it is still unset.
	MarkReminderSent(ctx context.Context, id int64, sentAt time.Time) error
}
