package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "srpflow-sim",
		Short: "Drive srpflow sign-ins against a simulated identity provider",
		Long: `srpflow-sim runs the srpflow engine against an in-memory provider that
checks SRP proofs for real. Configuration comes from srpflow-sim.yaml (or
--config), SRPFLOW_* environment variables and flags, in that order of
increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addConfigFlags(cmd.PersistentFlags())
	cmd.AddCommand(newSignInCmd(), newLoadCmd())
	return cmd
}
