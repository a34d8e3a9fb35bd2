// Package app assembles the attestme command tree.
package app

import (
	"github.com/spf13/cobra"
)

// RootCmd builds the attestme root command.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attestme",
		Short: "Assertion and attestation registry",
		Long: "attestme maintains a registry of text assertions and the " +
			"time-bounded, signature-backed attestations addresses make to them.",
		SilenceUsage: true,
	}

	cmd.AddCommand(
		newKeygenCmd(),
		newSignCmd(),
		newAddCmd(),
		newAttestCmd(),
		newRevokeCmd(),
		newShowCmd(),
		newTipOutCmd(),
	)
	return cmd
}
