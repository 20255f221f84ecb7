package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed heuristic demonstrations (idempotent)",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	// openRuntime already seeds; this reports whether anything was new.
	n, err := rt.demos.SeedHeuristics()
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "heuristic demonstrations already present")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d heuristic demonstrations\n", n)
	}
	return nil
}
