package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kartarkiv/internal/infra/scheduler"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the invoice reminder worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			if cfg.ReminderDisabled {
				log.Info("INVOICE_REMINDER_DISABLED is set; worker will idle until stopped.")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := buildReminderService(ctx, cfg, log)
			defer cleanup()
			if err != nil {
				return err
			}

			effective := svc.Config()
			sched := scheduler.NewReminderScheduler(svc, log, effective.CheckInterval, effective.Disabled)
			if err := sched.Start(); err != nil {
				return err
			}

			<-ctx.Done()
			log.Info("Shutting down invoice reminder worker...")
			sched.Stop()
			log.Info("Worker shut down gracefully.")
			return nil
		},
	}
}
