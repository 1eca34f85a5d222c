// internal/domain/invoice/invoice.go
package invoice

import (
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"
)

// StatusPaid is the external status value that marks an invoice as settled.
const StatusPaid = "paid"

// MinPhoneLength is the shortest trimmed phone value treated as plausible.
const MinPhoneLength = 6

// TrimChars is the set stripped from status and phone values before they are
// compared. The Postgres query trims the same set with btrim.
const TrimChars = " \t\r\n"

// Invoice is the subset of the 'invoices' table the reminder core reads and writes.
// The table itself is owned by the billing side of the application.
type Invoice struct {
	ID                int64
	TotalAmountCents  int64
	DueDate           sql.NullTime   // NULL until the invoice is finalized
	KID               sql.NullString // Payment reference generated at creation time
	AccountNumber     sql.NullString
	RequestName       sql.NullString // invoice_request_name
	RequestPhone      sql.NullString // invoice_request_phone
	SMSReminderSentAt sql.NullTime   // Set once by the reminder worker, never cleared
	Paid              bool
	Status            sql.NullString
}

// Window bounds the due dates that qualify for a reminder.
// An invoice qualifies from Lead before its due date until MaxOverdue after it.
// A zero MaxOverdue means overdue invoices qualify indefinitely.
type Window struct {
	Lead       time.Duration
	MaxOverdue time.Duration
}

// Bounds returns the due-date range that qualifies at now. from is the zero
// time when the window has no overdue limit.
func (w Window) Bounds(now time.Time) (from, to time.Time) {
	if w.MaxOverdue > 0 {
		from = now.Add(-w.MaxOverdue)
	}
	return from, now.Add(w.Lead)
}

// IsPaid treats either the paid flag or a 'paid' status as settled.
func (i *Invoice) IsPaid() bool {
	if i.Paid {
		return true
	}
	return i.Status.Valid && strings.EqualFold(strings.Trim(i.Status.String, TrimChars), StatusPaid)
}

// HasPlausiblePhone reports whether the recipient phone is present, not
// obviously truncated and contains at least one digit.
func (i *Invoice) HasPlausiblePhone() bool {
	if !i.RequestPhone.Valid {
		return false
	}
	phone := strings.Trim(i.RequestPhone.String, TrimChars)
	return utf8.RuneCountInString(phone) >= MinPhoneLength && strings.ContainsAny(phone, "0123456789")
}

// EligibleForReminder reports whether a reminder should be sent at now.
func (i *Invoice) EligibleForReminder(now time.Time, w Window) bool {
	if !i.DueDate.Valid || i.IsPaid() || i.SMSReminderSentAt.Valid || !i.HasPlausiblePhone() {
		return false
	}
	from, to := w.Bounds(now)
	if !from.IsZero() && i.DueDate.Time.Before(from) {
		return false
	}
	return !i.DueDate.Time.After(to)
}
