package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veristroke/veristroke/internal/demostore"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize reflexion history, feedback, and policy performance",
	RunE:  runMetrics,
}

func runMetrics(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	w := cmd.OutOrStdout()

	summary, err := rt.rlog.Summarize()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "reflexion records: %d (with feedback: %d)\n", summary.Records, summary.WithFeedback)
	fmt.Fprintf(w, "mean confidence delta: %+.4f\n", summary.MeanDelta)
	for decision, n := range summary.ByDecision {
		fmt.Fprintf(w, "  %s: %d\n", decision, n)
	}

	userCount, err := rt.demos.Count(demostore.Filter{Source: demostore.SourceUser})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "user demonstrations: %d (retraining threshold: %d)\n", userCount, demostore.MinFeedback)

	if entry := rt.live.Current(); entry != nil {
		fmt.Fprintf(w, "live checkpoint: %s (step %d)\n", entry.Version, entry.Step)
	} else {
		fmt.Fprintln(w, "live checkpoint: none (heuristic defaults)")
	}

	ev, err := rt.agent.Evaluate()
	if err != nil {
		return err
	}
	if ev.Episodes > 0 {
		fmt.Fprintf(w, "replayed feedback: %d episodes, mean reward %.3f, accuracy %.3f\n",
			ev.Episodes, ev.MeanReward, ev.Accuracy)
	}

	events, err := rt.events.Recent(5)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Fprintln(w, "recent training runs:")
		for _, e := range events {
			reason := e.Reason
			if reason == "" {
				reason = "-"
			}
			fmt.Fprintf(w, "  %s  %-9s trigger=%s %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Outcome, e.Trigger, reason)
		}
	}
	return nil
}
