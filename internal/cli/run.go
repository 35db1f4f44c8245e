package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/thalesfsp/horunner"
	"github.com/thalesfsp/horunner/checkpoint"
	"github.com/thalesfsp/horunner/internal/objective"
)

// runOptions are the flags of the run command.
type runOptions struct {
	configPath    string
	objective     string
	trials        int
	concurrency   int
	pointsPerSlot int
	mode          string
	lockstep      bool
	gamma         float64
	seed          int64
	engine        string
	acquisition   string
	initPath      string
	output        string
	pollInterval  time.Duration
	crashGrace    int

	// Only settable from a run file.
	command []string
	space   *horunner.Space
}

var runOpts runOptions

// runCmd executes an optimization using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:          "run",
	Short:        "Run an optimization",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOpts

		if opts.configPath != "" {
			rf, err := LoadRunFile(opts.configPath)
			if err != nil {
				return err
			}

			opts.merge(rf, cmd.Flags())
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		config, sink, err := buildConfig(ctx, opts, logrus.StandardLogger())
		if err != nil {
			return err
		}

		if sink != nil {
			defer sink.Close()
		}

		history, err := horunner.Run(ctx, config)
		if history != nil {
			if werr := horunner.WriteReport(cmd.OutOrStdout(), history.Snapshot()); werr != nil {
				logrus.WithError(werr).Warn("write report")
			}
		}

		return err
	},
}

// merge copies run file values into o for every flag not set explicitly.
func (o *runOptions) merge(rf *RunFile, flags *pflag.FlagSet) {
	set := func(name string) bool { return !flags.Changed(name) }

	if rf.Objective != "" && set("objective") {
		o.objective = rf.Objective
	}

	if rf.Trials != 0 && set("trials") {
		o.trials = rf.Trials
	}

	if rf.Concurrency != 0 && set("concurrency") {
		o.concurrency = rf.Concurrency
	}

	if rf.PointsPerSlot != 0 && set("points-per-slot") {
		o.pointsPerSlot = rf.PointsPerSlot
	}

	if rf.Mode != "" && set("mode") {
		o.mode = rf.Mode
	}

	if rf.Lockstep && set("lockstep") {
		o.lockstep = true
	}

	if rf.Gamma != 0 && set("gamma") {
		o.gamma = rf.Gamma
	}

	if rf.Seed != 0 && set("seed") {
		o.seed = rf.Seed
	}

	if rf.Engine != "" && set("engine") {
		o.engine = rf.Engine
	}

	if rf.Acquisition != "" && set("acquisition") {
		o.acquisition = rf.Acquisition
	}

	if rf.Init != "" && set("init") {
		o.initPath = rf.Init
	}

	if rf.Output != "" && set("output") {
		o.output = rf.Output
	}

	if rf.PollInterval != "" && set("poll-interval") {
		if d, err := time.ParseDuration(rf.PollInterval); err == nil {
			o.pollInterval = d
		} else {
			logrus.WithError(err).Warnf("ignoring poll_interval %q", rf.PollInterval)
		}
	}

	if rf.CrashGrace != nil && set("crash-grace") {
		o.crashGrace = *rf.CrashGrace
	}

	if len(rf.Command) > 0 {
		o.command = rf.Command
	}

	if rf.Space != nil {
		o.space = rf.Space
	}
}

// buildConfig turns options into a scheduler configuration. The returned
// sink, if any, must be closed by the caller.
func buildConfig(ctx context.Context, o runOptions, logger logrus.FieldLogger) (horunner.Config, checkpoint.Sink, error) {
	obj, err := objective.Lookup(o.objective)
	if err != nil {
		return horunner.Config{}, nil, err
	}

	space := obj.Space
	if o.space != nil {
		space = o.space
	}

	var initial []horunner.TrialRecord
	if o.initPath != "" {
		initial, err = checkpoint.Load(ctx, o.initPath, logger)
		if err != nil {
			return horunner.Config{}, nil, err
		}

		logger.WithField("trials", len(initial)).Info("resuming from checkpoint")
	}

	engine, err := newEngine(o.engine, o.acquisition, space, o.gamma)
	if err != nil {
		return horunner.Config{}, nil, err
	}

	config := horunner.DefaultConfig()
	config.TargetTrialCount = len(initial) + o.trials
	config.Concurrency = o.concurrency
	config.PointsPerSlot = o.pointsPerSlot
	config.Mode = horunner.Mode(o.mode)
	config.Lockstep = o.lockstep
	config.Gamma = o.gamma
	config.Seed = o.seed
	config.InitialHistory = initial
	config.Engine = engine
	config.Space = space
	config.Evaluator = horunner.NewCountingEvaluator(obj.Evaluator, logger)
	config.PollInterval = o.pollInterval
	config.CrashGrace = o.crashGrace
	config.Logger = logger

	if config.Mode == horunner.ModeProcess {
		config.Command = o.command

		if len(config.Command) == 0 {
			exe, err := os.Executable()
			if err != nil {
				return horunner.Config{}, nil, fmt.Errorf("locate worker executable: %w", err)
			}

			config.Command = []string{exe, "worker", "--objective", obj.Name, "--log", "error"}
		}
	}

	if err := config.Validate(); err != nil {
		return horunner.Config{}, nil, err
	}

	var sink checkpoint.Sink
	if o.output != "" {
		sink, err = checkpoint.Open(ctx, o.output, logger)
		if err != nil {
			return horunner.Config{}, nil, err
		}

		config.Checkpointer = sink
	}

	return config, sink, nil
}

// newEngine builds the proposal engine called name.
func newEngine(name, acquisition string, space *horunner.Space, gamma float64) (horunner.ProposalEngine, error) {
	switch strings.ToLower(name) {
	case "", "tpe":
		return horunner.NewTPE(space, horunner.WithGamma(gamma)), nil
	case "random":
		return horunner.NewRandomEngine(space), nil
	case "gp":
		cfg := horunner.DefaultGPConfig()

		switch strings.ToLower(acquisition) {
		case "", "ucb":
			cfg.AcquisitionFunc = horunner.UCB
		case "pi":
			cfg.AcquisitionFunc = horunner.ProbabilityOfImprovement
		case "ei":
			cfg.AcquisitionFunc = horunner.ExpectedImprovement
		case "thompson":
			cfg.AcquisitionFunc = horunner.ThompsonSampling
		default:
			return nil, fmt.Errorf("unknown acquisition function %q", acquisition)
		}

		return horunner.NewGPEngine(space, cfg), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

func init() {
	f := runCmd.Flags()

	f.StringVar(&runOpts.configPath, "config", "", "YAML run file; flags override its values")
	f.StringVar(&runOpts.objective, "objective", "quadratic", "Built-in objective to optimize")
	f.IntVar(&runOpts.trials, "trials", 10, "Number of trials to run on top of the resumed history")
	f.IntVar(&runOpts.concurrency, "concurrency", horunner.DefaultConfig().Concurrency, "Number of concurrent worker slots")
	f.IntVar(&runOpts.pointsPerSlot, "points-per-slot", 1, "Trials produced per slot launch")
	f.StringVar(&runOpts.mode, "mode", string(horunner.ModeThread), "Execution mode (thread, process)")
	f.BoolVar(&runOpts.lockstep, "lockstep", false, "Run slots in synchronized generations")
	f.Float64Var(&runOpts.gamma, "gamma", horunner.DefaultGamma, "TPE quantile of good trials")
	f.Int64Var(&runOpts.seed, "seed", 42, "Master seed for proposals")
	f.StringVar(&runOpts.engine, "engine", "tpe", "Proposal engine (tpe, gp, random)")
	f.StringVar(&runOpts.acquisition, "acquisition", "ucb", "GP acquisition function (ucb, pi, ei, thompson)")
	f.StringVar(&runOpts.initPath, "init", "", "Checkpoint to resume from (.json or .db)")
	f.StringVar(&runOpts.output, "output", "", "Checkpoint written after every trial (.json or .db)")
	f.DurationVar(&runOpts.pollInterval, "poll-interval", horunner.DefaultPollInterval, "Scheduler tick")
	f.IntVar(&runOpts.crashGrace, "crash-grace", horunner.DefaultCrashGrace, "Empty polls tolerated before declaring a crash")

	rootCmd.AddCommand(runCmd)
}
