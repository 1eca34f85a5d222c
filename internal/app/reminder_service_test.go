package app_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kartarkiv/internal/app"
	"kartarkiv/internal/domain/invoice"
	"kartarkiv/internal/domain/sms"
)

var testNow = time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

// --- Fakes ---

type memoryInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[int64]*invoice.Invoice
	markErr  map[int64]error
}

func newMemoryInvoiceRepo(invoices ...*invoice.Invoice) *memoryInvoiceRepo {
	r := &memoryInvoiceRepo{invoices: map[int64]*invoice.Invoice{}, markErr: map[int64]error{}}
	for _, inv := range invoices {
		r.invoices[inv.ID] = inv
	}
	return r
}

func (r *memoryInvoiceRepo) ListDueForReminder(_ context.Context, now time.Time, window invoice.Window, limit int) ([]*invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*invoice.Invoice
	for _, inv := range r.invoices {
		if inv.EligibleForReminder(now, window) {
			cp := *inv
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueDate.Time.Before(due[j].DueDate.Time) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memoryInvoiceRepo) MarkReminderSent(_ context.Context, id int64, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.markErr[id]; err != nil {
		return err
	}
	inv, ok := r.invoices[id]
	if !ok {
		return errors.New("not found")
	}
	if inv.SMSReminderSentAt.Valid {
		return invoice.ErrAlreadyReminded
	}
	inv.SMSReminderSentAt = sql.NullTime{Time: sentAt, Valid: true}
	return nil
}

func (r *memoryInvoiceRepo) reminded(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invoices[id].SMSReminderSentAt.Valid
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sms.Message
}

func (s *recordingSender) Send(_ context.Context, msg sms.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg sms.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockInvoiceRepo struct {
	mock.Mock
}

func (m *MockInvoiceRepo) ListDueForReminder(ctx context.Context, now time.Time, window invoice.Window, limit int) ([]*invoice.Invoice, error) {
	args := m.Called(ctx, now, window, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepo) MarkReminderSent(ctx context.Context, id int64, sentAt time.Time) error {
	args := m.Called(ctx, id, sentAt)
	return args.Error(0)
}

type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Alert(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

type stubLocker struct {
	err      error
	released bool
}

func (l *stubLocker) Acquire(context.Context) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	return func(context.Context) error {
		l.released = true
		return nil
	}, nil
}

// --- Helpers ---

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() app.ReminderConfig {
	cfg := app.DefaultReminderConfig()
	cfg.Locale.Location = time.UTC
	cfg.DefaultAccountNumber = "1234.56.78903"
	cfg.PaymentBaseURL = "https://kartarkiv.test/"
	return cfg
}

func newService(repo invoice.Repository, sender sms.Sender, opts ...app.ReminderOption) *app.ReminderServiceImpl {
	opts = append([]app.ReminderOption{app.WithClock(func() time.Time { return testNow })}, opts...)
	return app.NewReminderService(repo, sender, quietLogger(), testConfig(), opts...)
}

func dueInvoice(id int64, dueIn time.Duration, phone string) *invoice.Invoice {
	return &invoice.Invoice{
		ID:               id,
		TotalAmountCents: 123450,
		DueDate:          sql.NullTime{Time: testNow.Add(dueIn), Valid: true},
		RequestName:      sql.NullString{String: "Kari", Valid: true},
		RequestPhone:     sql.NullString{String: phone, Valid: true},
	}
}

// --- Tests ---

func TestRunReminderPass_SendsAndMarks(t *testing.T) {
	inv := dueInvoice(42, 22*time.Hour, "987 65 432")
	inv.KID = sql.NullString{String: "1236", Valid: true}
	repo := newMemoryInvoiceRepo(inv)
	sender := &recordingSender{}

	result, err := newService(repo, sender).RunReminderPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Sent)
	assert.Empty(t, result.Failures)
	assert.True(t, repo.reminded(42))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "+4798765432", msg.Recipient)
	assert.Contains(t, msg.Body, "Hei Kari!")
	assert.Contains(t, msg.Body, "faktura #42")
	assert.Contains(t, msg.Body, "1 234,50 kr")
	assert.Contains(t, msg.Body, "20.10.2026")
	assert.Contains(t, msg.Body, "KID: 1236")
	assert.Contains(t, msg.Body, "Kontonummer: 1234.56.78903")
	assert.Contains(t, msg.Body, "https://kartarkiv.test/betaling?invoice=42")
}

func TestRunReminderPass_IsIdempotentAcrossPasses(t *testing.T) {
	repo := newMemoryInvoiceRepo(
		dueInvoice(1, time.Hour, "98765432"),
		dueInvoice(2, -time.Hour, "+4791234567"),
	)
	sender := &recordingSender{}
	svc := newService(repo, sender)

	first, err := svc.RunReminderPass(context.Background())
	require.NoError(t, err)
	second, err := svc.RunReminderPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, first.Sent)
	assert.Equal(t, 0, second.Fetched)
	assert.Equal(t, 0, second.Sent)
	assert.Len(t, sender.sent, 2)
}

func TestRunReminderPass_IsolatesSendFailures(t *testing.T) {
	repo := newMemoryInvoiceRepo(
		dueInvoice(1, 1*time.Hour, "90000001"),
		dueInvoice(2, 2*time.Hour, "90000002"),
		dueInvoice(3, 3*time.Hour, "90000003"),
	)
	sender := new(MockSender)
	isRecipient := func(number string) interface{} {
		return mock.MatchedBy(func(m sms.Message) bool { return m.Recipient == number })
	}
	sender.On("Send", mock.Anything, isRecipient("+4790000001")).Return(nil).Once()
	sender.On("Send", mock.Anything, isRecipient("+4790000002")).Return(errors.New("gateway unavailable")).Once()
	sender.On("Send", mock.Anything, isRecipient("+4790000003")).Return(nil).Once()

	result, err := newService(repo, sender).RunReminderPass(context.Background())
	require.NoError(t, err)

	sender.AssertExpectations(t)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, int64(2), result.Failures[0].InvoiceID)
	assert.ErrorIs(t, result.Failures[0].Err, app.ErrSend)

	assert.True(t, repo.reminded(1))
	assert.False(t, repo.reminded(2))
	assert.True(t, repo.reminded(3))
}

func TestRunReminderPass_InvalidPhoneDoesNotAbortBatch(t *testing.T) {
	repo := newMemoryInvoiceRepo(
		dueInvoice(1, time.Hour, "tlf 000000"),
		dueInvoice(2, 2*time.Hour, "98765432"),
	)
	sender := &recordingSender{}

	result, err := newService(repo, sender).RunReminderPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Sent)
	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, app.ErrInvalidPhone)
	assert.False(t, repo.reminded(1))
	assert.True(t, repo.reminded(2))
}

func TestRunReminderPass_FetchFailureAbortsPass(t *testing.T) {
	repo := new(MockInvoiceRepo)
	window := invoice.Window{Lead: app.DefaultReminderWindow, MaxOverdue: app.DefaultMaxOverdue}
	repo.On("ListDueForReminder", mock.Anything, testNow, window, app.DefaultMaxBatchSize).
		Return(nil, errors.New("connection refused"))
	sender := new(MockSender)
	alerter := new(MockAlerter)
	alerter.On("Alert", mock.Anything, mock.AnythingOfType("string")).Return(nil).Once()

	result, err := newService(repo, sender, app.WithAlerter(alerter)).RunReminderPass(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrFetch)
	assert.Equal(t, 0, result.Fetched)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkReminderSent", mock.Anything, mock.Anything, mock.Anything)
	alerter.AssertExpectations(t)
}

func TestRunReminderPass_MarkFailureIsReportedLoudly(t *testing.T) {
	repo := newMemoryInvoiceRepo(dueInvoice(7, time.Hour, "98765432"))
	repo.markErr[7] = errors.New("deadlock detected")
	sender := &recordingSender{}
	alerter := new(MockAlerter)
	alerter.On("Alert", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "#7")
	})).Return(nil).Once()

	result, err := newService(repo, sender, app.WithAlerter(alerter)).RunReminderPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Sent)
	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, app.ErrMarkSent)
	assert.False(t, repo.reminded(7))
	alerter.AssertExpectations(t)
}

func TestRunReminderPass_DisabledSMSLeavesInvoiceEligible(t *testing.T) {
	repo := newMemoryInvoiceRepo(dueInvoice(5, time.Hour, "98765432"))
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything).Return(sms.ErrDisabled)

	result, err := newService(repo, sender).RunReminderPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Suppressed)
	assert.Equal(t, 0, result.Sent)
	assert.Empty(t, result.Failures)
	assert.False(t, repo.reminded(5))
}

func TestRunReminderPass_RespectsBatchSizeAndDueOrder(t *testing.T) {
	repo := newMemoryInvoiceRepo(
		dueInvoice(1, 3*time.Hour, "90000001"),
		dueInvoice(2, 1*time.Hour, "90000002"),
		dueInvoice(3, 2*time.Hour, "90000003"),
	)
	sender := &recordingSender{}
	cfg := testConfig()
	cfg.MaxBatchSize = 2
	svc := app.NewReminderService(repo, sender, quietLogger(), cfg, app.WithClock(func() time.Time { return testNow }))

	result, err := svc.RunReminderPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Sent)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "+4790000002", sender.sent[0].Recipient)
	assert.Equal(t, "+4790000003", sender.sent[1].Recipient)
	assert.False(t, repo.reminded(1))
}

func TestRunReminderPass_StaleFailuresDoNotStarveBatch(t *testing.T) {
	cases := map[string]struct {
		phone string
		dueIn time.Duration
	}{
		"phone without digits":    {phone: "ring meg nå", dueIn: -100 * time.Hour},
		"unusable number too old": {phone: "tlf 000000", dueIn: -app.DefaultMaxOverdue - time.Hour},
		"working number too old":  {phone: "98765432", dueIn: -app.DefaultMaxOverdue - time.Minute},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var invoices []*invoice.Invoice
			for id := int64(1); id <= app.DefaultMaxBatchSize; id++ {
				invoices = append(invoices, dueInvoice(id, tc.dueIn, tc.phone))
			}
			invoices = append(invoices, dueInvoice(100, time.Hour, "98765432"))
			repo := newMemoryInvoiceRepo(invoices...)
			sender := &recordingSender{}
			svc := newService(repo, sender)

			for pass := 0; pass < 5; pass++ {
				_, err := svc.RunReminderPass(context.Background())
				require.NoError(t, err)
			}

			assert.True(t, repo.reminded(100))
			require.Len(t, sender.sent, 1)
			for id := int64(1); id <= app.DefaultMaxBatchSize; id++ {
				assert.False(t, repo.reminded(id))
			}
		})
	}
}

func TestFetchDueInvoices_ReChecksEligibility(t *testing.T) {
	repo := new(MockInvoiceRepo)
	tooEarly := dueInvoice(1, 25*time.Hour, "98765432")
	tooLate := dueInvoice(2, -app.DefaultMaxOverdue-time.Hour, "98765432")
	noDigits := dueInvoice(3, time.Hour, "ring meg nå")
	repo.On("ListDueForReminder", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*invoice.Invoice{tooLate, noDigits, tooEarly}, nil)
	sender := new(MockSender)

	due, err := newService(repo, sender).FetchDueInvoices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRunReminderPass_SingleFlight(t *testing.T) {
	repo := newMemoryInvoiceRepo(dueInvoice(1, time.Hour, "98765432"))
	entered := make(chan struct{})
	release := make(chan struct{})
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil).Once()
	svc := newService(repo, sender)

	done := make(chan app.PassResult)
	go func() {
		result, _ := svc.RunReminderPass(context.Background())
		done <- result
	}()

	<-entered
	concurrent, err := svc.RunReminderPass(context.Background())
	require.NoError(t, err)
	assert.True(t, concurrent.Skipped)

	close(release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Sent)
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestRunReminderPass_SkipsWhenLockHeldElsewhere(t *testing.T) {
	repo := new(MockInvoiceRepo)
	sender := new(MockSender)
	locker := &stubLocker{err: app.ErrLockNotObtained}

	result, err := newService(repo, sender, app.WithPassLocker(locker)).RunReminderPass(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	repo.AssertNotCalled(t, "ListDueForReminder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunReminderPass_ReleasesLock(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	locker := &stubLocker{}

	_, err := newService(repo, &recordingSender{}, app.WithPassLocker(locker)).RunReminderPass(context.Background())
	require.NoError(t, err)
	assert.True(t, locker.released)
}
