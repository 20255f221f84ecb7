package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/veristroke/veristroke/internal/agent"
	"github.com/veristroke/veristroke/internal/calenv"
	"github.com/veristroke/veristroke/internal/checkpoint"
	"github.com/veristroke/veristroke/internal/config"
	"github.com/veristroke/veristroke/internal/demostore"
	"github.com/veristroke/veristroke/internal/logging"
	"github.com/veristroke/veristroke/internal/policy"
	"github.com/veristroke/veristroke/internal/reflexion"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	dbPath     string
}

var rootCmd = &cobra.Command{
	Use:   "veristroke",
	Short: "Adaptive calibration for artwork authenticity analysis",
	Long: "Veristroke judges artwork images against an anomaly threshold,\n" +
		"collects human feedback, and retrains its calibration policy\n" +
		"through a reflexion loop.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Path to YAML config file")
	pf.StringVar(&rootFlags.dbPath, "db", "", "SQLite database path (overrides config)")

	rootCmd.AddCommand(judgeCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// runtime bundles the wired components behind every subcommand.
type runtime struct {
	cfg    config.Config
	logger zerolog.Logger

	ckpts  *checkpoint.Store
	demos  *demostore.Store
	events *logging.TrainingLog
	rlog   *reflexion.Log

	live  *policy.Live
	agent *agent.Agent
	env   *calenv.Env
	loop  *reflexion.Loop
}

// openRuntime loads config, opens the database, and wires the full
// pipeline. The caller must Close it.
func openRuntime() (*runtime, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if rootFlags.dbPath != "" {
		cfg.DBPath = rootFlags.dbPath
	}
	logger := logging.Setup(cfg.LogLevel)

	ckpts, err := checkpoint.NewStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	demos, err := demostore.NewStore(ckpts.DB())
	if err != nil {
		ckpts.Close()
		return nil, err
	}
	events, err := logging.NewTrainingLog(ckpts.DB())
	if err != nil {
		ckpts.Close()
		return nil, err
	}
	rlog, err := reflexion.NewLog(ckpts.DB())
	if err != nil {
		ckpts.Close()
		return nil, err
	}

	if _, err := demos.SeedHeuristics(); err != nil {
		ckpts.Close()
		return nil, fmt.Errorf("seed heuristics: %w", err)
	}

	live := policy.NewLive()
	ag := agent.New(cfg.Training, demos, ckpts, live, logger)
	if err := ag.LoadLive(); err != nil {
		ckpts.Close()
		return nil, err
	}

	env := calenv.New(demos, ag, logger)
	trainer := reflexion.NewTrainer(ag, events, logger)
	loop := reflexion.NewLoop(env, live, demos, rlog, trainer, nil, logger)

	return &runtime{
		cfg:    cfg,
		logger: logger,
		ckpts:  ckpts,
		demos:  demos,
		events: events,
		rlog:   rlog,
		live:   live,
		agent:  ag,
		env:    env,
		loop:   loop,
	}, nil
}

// Close waits for background training and releases the database.
func (rt *runtime) Close() {
	rt.loop.Wait()
	rt.ckpts.Close()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
