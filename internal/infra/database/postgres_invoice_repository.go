// internal/infra/database/postgres_invoice_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kartarkiv/internal/domain/invoice"
)

// PostgresInvoiceRepository reads and flags rows of the 'invoices' table.
type PostgresInvoiceRepository struct {
	db *sql.DB
}

func NewPostgresInvoiceRepository(db *sql.DB) *PostgresInvoiceRepository {
	return &PostgresInvoiceRepository{db: db}
}

// Mirrors invoice.(*Invoice).EligibleForReminder; keep the two in sync.
// The btrim set matches invoice.TrimChars.
const listDueForReminderQuery = `SELECT id, total_amount_cents, due_date, kid, account_number,
       invoice_request_name, invoice_request_phone, sms_reminder_sent_at,
       COALESCE(paid, FALSE), status
  FROM invoices
 WHERE due_date IS NOT NULL
   AND due_date <= $1
   AND ($2::timestamptz IS NULL OR due_date >= $2)
   AND COALESCE(paid, FALSE) = FALSE
   AND LOWER(BTRIM(COALESCE(status, ''), E' \t\r\n')) <> 'paid'
   AND sms_reminder_sent_at IS NULL
   AND invoice_request_phone IS NOT NULL
   AND CHAR_LENGTH(BTRIM(invoice_request_phone, E' \t\r\n')) > 5
   AND invoice_request_phone ~ '[0-9]'
 ORDER BY due_date ASC
 LIMIT $3`

func (r *PostgresInvoiceRepository) ListDueForReminder(ctx context.Context, now time.Time, window invoice.Window, limit int) ([]*invoice.Invoice, error) {
	from, to := window.Bounds(now)
	rows, err := r.db.QueryContext(ctx, listDueForReminderQuery, to, sql.NullTime{Time: from, Valid: !from.IsZero()}, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying invoices due for reminder: %w", err)
	}
	defer rows.Close()

	invoices := make([]*invoice.Invoice, 0)
	for rows.Next() {
		inv := invoice.Invoice{}
		if err := rows.Scan(
			&inv.ID, &inv.TotalAmountCents, &inv.DueDate, &inv.KID, &inv.AccountNumber,
			&inv.RequestName, &inv.RequestPhone, &inv.SMSReminderSentAt,
			&inv.Paid, &inv.Status,
		); err != nil {
			return nil, fmt.Errorf("error scanning invoice row: %w", err)
		}
		invoices = append(invoices, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice rows: %w", err)
	}
	return invoices, nil
}

// The IS NULL guard keeps the first timestamp if two workers race.
const markReminderSentQuery = `UPDATE invoices SET sms_reminder_sent_at = $2
 WHERE id = $1 AND sms_reminder_sent_at IS NULL`

func (r *PostgresInvoiceRepository) MarkReminderSent(ctx context.Context, id int64, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx, markReminderSentQuery, id, sentAt)
	if err != nil {
		return fmt.Errorf("error marking invoice %d reminder sent: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows for invoice %d: %w", id, err)
	}
	if affected == 0 {
		return invoice.ErrAlreadyReminded
	}
	return nil
}
