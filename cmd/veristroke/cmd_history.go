package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyFlags struct {
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent reflexion records",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "Maximum records to show")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	records, err := rt.rlog.History(historyFlags.limit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(w, "no reflexion records yet")
		return nil
	}
	for _, rec := range records {
		verdict := rec.Verdict
		if verdict == "" {
			verdict = "-"
		}
		fmt.Fprintf(w, "%s  %s#%d  %-9s score=%.4f delta=%+.4f verdict=%s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.AnalysisID, rec.Iteration,
			rec.Decision, rec.AnomalyScore, rec.ConfidenceDelta, verdict)
	}
	return nil
}
