package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veristroke/veristroke/internal/agent"
	"github.com/veristroke/veristroke/internal/logging"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Retrain the calibration policy now",
	Long: "Train runs a full retraining cycle in the foreground. Refusals\n" +
		"(insufficient or degenerate feedback) leave the live policy\n" +
		"untouched and are reported, not treated as failures.",
	RunE: runTrain,
}

func runTrain(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	w := cmd.OutOrStdout()
	rec, err := rt.agent.Retrain(cmd.Context())
	switch {
	case errors.Is(err, agent.ErrInsufficientData), errors.Is(err, agent.ErrDegenerateReward):
		rt.recordTraining(logging.TrainingEvent{Trigger: "manual", Outcome: "refused", Reason: err.Error()})
		fmt.Fprintf(w, "retraining refused: %v\n", err)
		return nil
	case err != nil:
		rt.recordTraining(logging.TrainingEvent{Trigger: "manual", Outcome: "failed", Reason: err.Error()})
		return err
	}

	rt.recordTraining(logging.TrainingEvent{VersionID: rec.VersionID, Trigger: "manual", Outcome: "published"})
	fmt.Fprintf(w, "checkpoint published: %s (step %d)\n", rec.VersionID, rec.Step)

	ev, err := rt.agent.Evaluate()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "replayed feedback: %d episodes, mean reward %.3f, accuracy %.3f\n",
		ev.Episodes, ev.MeanReward, ev.Accuracy)
	return nil
}

// recordTraining logs the event, never failing the command over it.
func (rt *runtime) recordTraining(ev logging.TrainingEvent) {
	if err := rt.events.Record(ev); err != nil {
		rt.logger.Warn().Err(err).Msg("training event not recorded")
	}
}
