package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rollbackFlags struct {
	version string
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Activate a previous policy checkpoint",
	RunE:  runRollback,
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackFlags.version, "version", "", "Checkpoint version id (required)")
	_ = rollbackCmd.MarkFlagRequired("version")
}

func runRollback(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	// The target must load and pass the sanity check before the
	// pointer moves.
	if _, err := rt.ckpts.Get(rollbackFlags.version); err != nil {
		return err
	}
	if err := rt.ckpts.Rollback(rollbackFlags.version); err != nil {
		return err
	}
	if err := rt.agent.LoadLive(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "active checkpoint set to %s\n", rollbackFlags.version)
	return nil
}
