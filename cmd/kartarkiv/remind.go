package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRemindCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run a single invoice reminder pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.ReminderDisabled && !force {
				fmt.Fprintln(cmd.OutOrStdout(), "invoice reminders are disabled (INVOICE_REMINDER_DISABLED); use --force to run anyway")
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := buildReminderService(ctx, cfg, log)
			defer cleanup()
			if err != nil {
				return err
			}

			result, err := svc.RunReminderPass(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d sent=%d failed=%d suppressed=%d\n",
				result.Fetched, result.Sent, result.Failed, result.Suppressed)
			for _, f := range result.Failures {
				fmt.Fprintf(cmd.OutOrStdout(), "invoice %d: %v\n", f.InvoiceID, f.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "run the pass even when INVOICE_REMINDER_DISABLED is set")
	return cmd
}
