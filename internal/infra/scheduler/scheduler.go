package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"kartarkiv/internal/app" // For PassResult
)

// PassRunner is the part of app.ReminderService the scheduler drives.
type PassRunner interface {
	RunReminderPass(ctx context.Context) (app.PassResult, error)
}

type ReminderScheduler struct {
	cronEngine *cron.Cron
	cronLogger cron.Logger
	runner     PassRunner
	logger     logrus.FieldLogger
	interval   time.Duration
	disabled   bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewReminderScheduler(
	runner PassRunner,
	logger logrus.FieldLogger,
	interval time.Duration, // e.g. 15m; cron rounds sub-second values up to 1s
	disabled bool,
) *ReminderScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := cron.VerbosePrintfLogger(logger.WithField("component", "cron"))
	return &ReminderScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.Local),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		cronLogger: cronLogger,
		runner:   runner,
		logger:   logger.WithField("component", "reminder_scheduler"),
		interval: interval,
		disabled: disabled,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs one pass right away and then every interval. It is a no-op when
// the scheduler is disabled.
func (s *ReminderScheduler) Start() error {
	if s.disabled {
		s.logger.Info("Invoice reminder scheduler is disabled, not starting.")
		return nil
	}
	s.logger.Infof("Starting invoice reminder scheduler (interval %s)...", s.interval)

	_, err := s.cronEngine.AddFunc(fmt.Sprintf("@every %s", s.interval), s.executePass)
	if err != nil {
		return fmt.Errorf("could not add invoice reminder cron job: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		cron.Recover(s.cronLogger)(cron.FuncJob(s.executePass)).Run()
	}()

	s.cronEngine.Start()
	s.started = true
	s.logger.Info("Invoice reminder scheduler started.")
	return nil
}

func (s *ReminderScheduler) executePass() {
	if s.ctx.Err() != nil {
		return
	}
	result, err := s.runner.RunReminderPass(s.ctx)
	if err != nil {
		s.logger.WithError(err).Error("Invoice reminder pass failed")
		return
	}
	if result.Skipped {
		s.logger.Debug("Invoice reminder pass skipped, previous pass still running.")
	}
}

// Stop cancels any in-flight pass and waits for running jobs to return.
func (s *ReminderScheduler) Stop() {
	s.cancel()
	if !s.started {
		return
	}
	s.logger.Info("Stopping invoice reminder scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("Invoice reminder scheduler gracefully stopped.")
}
