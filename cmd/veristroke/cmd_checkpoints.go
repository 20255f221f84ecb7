package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veristroke/veristroke/internal/checkpoint"
)

var checkpointsFlags struct {
	limit int
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "List stored policy checkpoints",
	RunE:  runCheckpoints,
}

func init() {
	checkpointsCmd.Flags().IntVar(&checkpointsFlags.limit, "limit", 20, "Maximum versions to show")
}

func runCheckpoints(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	activeID := ""
	current, err := rt.ckpts.Current()
	switch {
	case err == nil:
		activeID = current.VersionID
	case errors.Is(err, checkpoint.ErrNoCheckpoint), errors.Is(err, checkpoint.ErrIncompatibleFormat):
		// Listing still works; the marker is just absent.
	default:
		return err
	}

	records, err := rt.ckpts.List(checkpointsFlags.limit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(w, "no checkpoints yet (heuristic defaults in effect)")
		return nil
	}
	for _, rec := range records {
		marker := " "
		if rec.VersionID == activeID {
			marker = "*"
		}
		note := rec.Note
		if note == "" {
			note = "-"
		}
		fmt.Fprintf(w, "%s %s  %s  format=%d step=%d  %s\n",
			marker, rec.VersionID,
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.Format, rec.Step, note)
	}
	return nil
}
