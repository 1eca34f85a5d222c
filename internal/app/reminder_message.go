// internal/app/reminder_message.go
package app

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kartarkiv/internal/domain/invoice"
)

const (
	// PlaceholderAccountNumber is shown when no account number is configured anywhere.
	PlaceholderAccountNumber = "0000.00.00000"
	DefaultPaymentBaseURL    = "https://kartarkiv.no"
	paymentPath              = "/betaling"
	invoiceIDPlaceholder     = "{invoiceId}"
)

// Locale controls how reminder messages render numbers, dates and phones.
type Locale struct {
	CountryCode          string // Calling code without '+', e.g. "47"
	NationalNumberLength int
	CurrencySymbol       string
	DecimalSeparator     string
	GroupSeparator       string
	DateLayout           string
	Location             *time.Location
}

// NorwegianLocale matches the formatting Kartarkiv has always used.
func NorwegianLocale() Locale {
	loc, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		loc = time.UTC
	}
	return Locale{
		CountryCode:          "47",
		NationalNumberLength: 8,
		CurrencySymbol:       "kr",
		DecimalSeparator:     ",",
		GroupSeparator:       " ",
		DateLayout:           "02.01.2006",
		Location:             loc,
	}
}

// resolver yields a candidate value or "" when it has nothing to offer.
type resolver func() string

// firstNonEmpty evaluates resolvers in order and returns the first non-blank result.
func firstNonEmpty(resolvers ...resolver) string {
	for _, r := range resolvers {
		if v := strings.TrimSpace(r()); v != "" {
			return v
		}
	}
	return ""
}

func constant(v string) resolver {
	return func() string { return v }
}

func nullString(v sql.NullString) resolver {
	return func() string {
		if !v.Valid {
			return ""
		}
		return v.String
	}
}

type messageBuilder struct {
	cfg ReminderConfig
}

func (b messageBuilder) accountNumber(inv *invoice.Invoice) string {
	return firstNonEmpty(
		nullString(inv.AccountNumber),
		constant(b.cfg.DefaultAccountNumber),
		constant(b.cfg.SecondaryAccountNumber),
		constant(PlaceholderAccountNumber),
	)
}

func (b messageBuilder) paymentURL(invoiceID int64) string {
	id := strconv.FormatInt(invoiceID, 10)
	return firstNonEmpty(
		func() string {
			if b.cfg.PaymentURLTemplate == "" {
				return ""
			}
			return strings.ReplaceAll(b.cfg.PaymentURLTemplate, invoiceIDPlaceholder, id)
		},
		func() string {
			if b.cfg.PaymentBaseURL == "" {
				return ""
			}
			return strings.TrimRight(b.cfg.PaymentBaseURL, "/") + paymentPath + "?invoice=" + id
		},
		constant(DefaultPaymentBaseURL+paymentPath+"?invoice="+id),
	)
}

func (b messageBuilder) compose(inv *invoice.Invoice, account string) string {
	var sb strings.Builder

	name := ""
	if inv.RequestName.Valid {
		name = strings.TrimSpace(inv.RequestName.String)
	}
	if name != "" {
		fmt.Fprintf(&sb, "Hei %s!\n", name)
	} else {
		sb.WriteString("Hei!\n")
	}

	fmt.Fprintf(&sb, "Påminnelse: faktura #%d fra Kartarkiv på %s forfaller %s.\n",
		inv.ID, formatAmount(inv.TotalAmountCents, b.cfg.Locale), formatDueDate(inv.DueDate.Time, b.cfg.Locale))

	if inv.KID.Valid && strings.TrimSpace(inv.KID.String) != "" {
		fmt.Fprintf(&sb, "KID: %s\n", strings.TrimSpace(inv.KID.String))
	}
	if account != "" {
		fmt.Fprintf(&sb, "Kontonummer: %s\n", account)
	}
	fmt.Fprintf(&sb, "Betal her: %s", b.paymentURL(inv.ID))
	return sb.String()
}

// formatAmount renders integer minor units as a grouped decimal amount, e.g. 123450 -> "1 234,50 kr".
func formatAmount(cents int64, l Locale) string {
	amount := decimal.New(cents, -2).Round(2)
	whole, frac, _ := strings.Cut(amount.Abs().StringFixed(2), ".")

	var sb strings.Builder
	if amount.IsNegative() {
		sb.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteString(l.GroupSeparator)
		}
		sb.WriteRune(r)
	}
	sb.WriteString(l.DecimalSeparator)
	sb.WriteString(frac)
	if l.CurrencySymbol != "" {
		sb.WriteString(" " + l.CurrencySymbol)
	}
	return sb.String()
}

func formatDueDate(t time.Time, l Locale) string {
	if l.Location != nil {
		t = t.In(l.Location)
	}
	return t.Format(l.DateLayout)
}
