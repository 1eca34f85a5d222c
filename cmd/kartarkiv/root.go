package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kartarkiv",
		Short: "Kartarkiv billing worker and KID tools",
		Long: `Kartarkiv background tooling.

The worker sends SMS reminders for invoices that are about to fall due.
The kid commands generate and verify KID payment references.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newWorkerCmd(), newRemindCmd(), newKidCmd())
	return root
}
