// internal/app/reminder_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"kartarkiv/internal/domain/alert"
	"kartarkiv/internal/domain/invoice"
	"kartarkiv/internal/domain/sms"
)

const (
	DefaultReminderWindow = 24 * time.Hour
	DefaultMaxOverdue     = 7 * 24 * time.Hour
	DefaultCheckInterval  = 15 * time.Minute
	DefaultMaxBatchSize   = 25
	DefaultCallTimeout    = 30 * time.Second
)

var (
	// ErrFetch wraps failures loading the due invoice batch. The whole pass is aborted.
	ErrFetch = errors.New("fetch due invoices")
	// ErrSend wraps failures delivering a single reminder. The invoice stays eligible.
	ErrSend = errors.New("send invoice reminder")
	// ErrMarkSent wraps failures recording a reminder that was already delivered.
	// The next pass may send a duplicate.
	ErrMarkSent = errors.New("mark invoice reminder sent")
	// ErrLockNotObtained is returned by a PassLocker when another process holds the pass.
	ErrLockNotObtained = errors.New("reminder pass lock not obtained")
)

// ReminderService sends SMS reminders for invoices that are about to fall due.
type ReminderService interface {
	// FetchDueInvoices returns the current batch of reminder-eligible invoices.
	FetchDueInvoices(ctx context.Context) ([]*invoice.Invoice, error)
	// RunReminderPass reminds every invoice in the current batch once.
	RunReminderPass(ctx context.Context) (PassResult, error)
}

// PassLocker serializes reminder passes across processes sharing one store.
type PassLocker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// ReminderConfig holds the worker settings. Zero values fall back to defaults.
type ReminderConfig struct {
	Window            time.Duration
	MaxOverdue        time.Duration // Overdue invoices older than this are no longer reminded
	CheckInterval     time.Duration
	MaxBatchSize      int
	Disabled          bool
	CallTimeout       time.Duration
	SendRatePerSecond float64 // 0 means unlimited

	DefaultAccountNumber   string
	SecondaryAccountNumber string
	PaymentURLTemplate     string // e.g. https://kartarkiv.no/pay/{invoiceId}
	PaymentBaseURL         string

	Locale Locale
}

// DefaultReminderConfig returns the settings used when nothing is configured.
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Window:        DefaultReminderWindow,
		MaxOverdue:    DefaultMaxOverdue,
		CheckInterval: DefaultCheckInterval,
		MaxBatchSize:  DefaultMaxBatchSize,
		CallTimeout:   DefaultCallTimeout,
		Locale:        NorwegianLocale(),
	}
}

func (c ReminderConfig) withDefaults() ReminderConfig {
	def := DefaultReminderConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.MaxOverdue <= 0 {
		c.MaxOverdue = def.MaxOverdue
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = def.CheckInterval
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.Locale.DateLayout == "" {
		c.Locale = def.Locale
	}
	return c
}

// InvoiceFailure records why a single invoice was not reminded (or not marked).
type InvoiceFailure struct {
	InvoiceID int64
	Err       error
}

// PassResult summarizes one reminder pass.
type PassResult struct {
	Skipped    bool // Another pass was running, here or in another process
	Fetched    int
	Sent       int
	Failed     int
	Suppressed int // SMS delivery disabled; invoices left eligible
	Failures   []InvoiceFailure
}

// ReminderServiceImpl implements ReminderService.
type ReminderServiceImpl struct {
	invoiceRepo invoice.Repository
	sender      sms.Sender
	logger      logrus.FieldLogger
	cfg         ReminderConfig
	messages    messageBuilder
	limiter     *rate.Limiter

	alerter alert.Alerter
	locker  PassLocker
	now     func() time.Time

	running atomic.Bool
}

// ReminderOption configures optional collaborators of ReminderServiceImpl.
type ReminderOption func(*ReminderServiceImpl)

func WithAlerter(a alert.Alerter) ReminderOption {
	return func(s *ReminderServiceImpl) { s.alerter = a }
}

func WithPassLocker(l PassLocker) ReminderOption {
	return func(s *ReminderServiceImpl) { s.locker = l }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) ReminderOption {
	return func(s *ReminderServiceImpl) { s.now = now }
}

func NewReminderService(
	repo invoice.Repository,
	sender sms.Sender,
	logger logrus.FieldLogger,
	cfg ReminderConfig,
	opts ...ReminderOption,
) *ReminderServiceImpl {
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.SendRatePerSecond > 0 {
		limit = rate.Limit(cfg.SendRatePerSecond)
	}

	s := &ReminderServiceImpl{
		invoiceRepo: repo,
		sender:      sender,
		logger:      logger.WithField("component", "invoice_reminder"),
		cfg:         cfg,
		messages:    messageBuilder{cfg: cfg},
		limiter:     rate.NewLimiter(limit, 1),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration after defaults were applied.
func (s *ReminderServiceImpl) Config() ReminderConfig {
	return s.cfg
}

func (s *ReminderServiceImpl) window() invoice.Window {
	return invoice.Window{Lead: s.cfg.Window, MaxOverdue: s.cfg.MaxOverdue}
}

func (s *ReminderServiceImpl) FetchDueInvoices(ctx context.Context) ([]*invoice.Invoice, error) {
	now := s.now()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	invoices, err := s.invoiceRepo.ListDueForReminder(fetchCtx, now, s.window(), s.cfg.MaxBatchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	due := make([]*invoice.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if !inv.EligibleForReminder(now, s.window()) {
			s.logger.WithField("invoice_id", inv.ID).Warn("Store returned an invoice that is not eligible for a reminder, skipping")
			continue
		}
		due = append(due, inv)
		if len(due) == s.cfg.MaxBatchSize {
			break
		}
	}
	return due, nil
}

func (s *ReminderServiceImpl) RunReminderPass(ctx context.Context) (PassResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("Reminder pass already in progress, skipping.")
		return PassResult{Skipped: true}, nil
	}
	defer s.running.Store(false)

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx)
		if errors.Is(err, ErrLockNotObtained) {
			s.logger.Info("Reminder pass is running in another process, skipping.")
			return PassResult{Skipped: true}, nil
		}
		if err != nil {
			return PassResult{}, fmt.Errorf("acquire reminder pass lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WithError(err).Warn("Failed to release reminder pass lock")
			}
		}()
	}

	result := PassResult{}
	invoices, err := s.FetchDueInvoices(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch invoices due for reminder, aborting pass")
		s.alert(ctx, fmt.Sprintf("Kartarkiv: invoice reminder pass aborted: %v", err))
		return result, err
	}
	result.Fetched = len(invoices)
	if len(invoices) == 0 {
		s.logger.Debug("No invoices due for reminder.")
		return result, nil
	}
	s.logger.Infof("Found %d invoices due for reminder.", len(invoices))

	for _, inv := range invoices {
		if ctx.Err() != nil {
			s.logger.Warn("Reminder pass interrupted, remaining invoices will be picked up by the next pass")
			break
		}

		log := s.logger.WithField("invoice_id", inv.ID)
		err := s.remindInvoice(ctx, inv, log)
		switch {
		case err == nil:
			result.Sent++
		case errors.Is(err, sms.ErrDisabled):
			result.Suppressed++
			log.Info("SMS delivery disabled, reminder not sent")
		case errors.Is(err, ErrMarkSent):
			result.Sent++
			result.Failures = append(result.Failures, InvoiceFailure{InvoiceID: inv.ID, Err: err})
			log.WithError(err).WithField("alert", true).Error("Reminder sent but not recorded; a duplicate may be sent on the next pass")
			s.alert(ctx, fmt.Sprintf("Kartarkiv: reminder for invoice #%d was sent but could not be recorded: %v", inv.ID, err))
		default:
			result.Failed++
			result.Failures = append(result.Failures, InvoiceFailure{InvoiceID: inv.ID, Err: err})
			log.WithError(err).Error("Failed to send invoice reminder")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"fetched":    result.Fetched,
		"sent":       result.Sent,
		"failed":     result.Failed,
		"suppressed": result.Suppressed,
	}).Info("Reminder pass finished.")
	return result, nil
}

func (s *ReminderServiceImpl) remindInvoice(ctx context.Context, inv *invoice.Invoice, log logrus.FieldLogger) error {
	phone, err := NormalizePhoneNumber(inv.RequestPhone.String, s.cfg.Locale.CountryCode, s.cfg.Locale.NationalNumberLength)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}

	account := s.messages.accountNumber(inv)
	if account == PlaceholderAccountNumber {
		log.Warn("No account number configured, using placeholder in reminder")
	}
	body := s.messages.compose(inv, account)

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: waiting for send budget: %w", ErrSend, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	err = s.sender.Send(sendCtx, sms.Message{Recipient: phone, Body: body})
	cancel()
	if errors.Is(err, sms.ErrDisabled) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	log.WithField("recipient", phone).Info("Invoice reminder sent")

	// The message is out; record it even if the pass is being cancelled.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CallTimeout)
	defer cancel()
	if err := s.invoiceRepo.MarkReminderSent(markCtx, inv.ID, s.now()); err != nil {
		if errors.Is(err, invoice.ErrAlreadyReminded) {
			log.Warn("Invoice was already marked as reminded by someone else")
			return nil
		}
		return fmt.Errorf("%w: %w", ErrMarkSent, err)
	}
	return nil
}

func (s *ReminderServiceImpl) alert(ctx context.Context, text string) {
	if s.alerter == nil {
		return
	}
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CallTimeout)
	defer cancel()
	if err := s.alerter.Alert(alertCtx, text); err != nil {
		s.logger.WithError(err).Warn("Failed to deliver operational alert")
	}
}
