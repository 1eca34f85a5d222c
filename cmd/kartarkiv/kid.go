package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kartarkiv/internal/domain/kid"
)

var errInvalidKID = errors.New("one or more KIDs failed verification")

func newKidCmd() *cobra.Command {
	kidCmd := &cobra.Command{
		Use:   "kid",
		Short: "Generate and verify KID payment references",
	}

	kidCmd.AddCommand(&cobra.Command{
		Use:     "generate <base>...",
		Short:   "Append a mod11 (or mod10 fallback) check digit to each base",
		Example: "  kartarkiv kid generate 123 INV-2026-0042",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, base := range args {
				k, err := kid.Generate(base)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	})

	kidCmd.AddCommand(&cobra.Command{
		Use:   "verify <kid>...",
		Short: "Check the trailing check digit of each KID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			for _, k := range args {
				ok, err := kid.Verify(k)
				switch {
				case err != nil:
					failed = true
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid (%v)\n", k, err)
				case ok:
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tok\n", k)
				default:
					failed = true
					fmt.Fprintf(cmd.OutOrStdout(), "%s\twrong check digit\n", k)
				}
			}
			if failed {
				return errInvalidKID
			}
			return nil
		},
	})

	return kidCmd
}
