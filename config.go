package horunner

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

//////
// Const, vars, types.
//////

var (
	// ErrInvalidConfig is wrapped by every configuration error returned by
	// Config.Validate and Run.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnknownMode is returned for an execution mode other than thread or
	// process.
	ErrUnknownMode = errors.New("unknown execution mode")
)

const (
	// DefaultGamma is the TPE quantile splitting good from bad trials.
	DefaultGamma = 0.25

	// DefaultCrashGrace is how many consecutive empty polls of a terminated
	// unit are tolerated before a crash is declared.
	DefaultCrashGrace = 2

	// DefaultPollInterval is the scheduler tick.
	DefaultPollInterval = time.Second
)

// Config holds all configuration of a Run.
//
// Usage example:
//
//	config := DefaultConfig()
//	config.TargetTrialCount = 10
//	config.Concurrency = 5
//	config.Space = NewSpace(Uniform("x", ParameterRange[float64]{Min: -3, Max: 3}))
//	config.Evaluator = EvaluatorFunc(objective)
//
//	history, err := Run(ctx, config)
type Config struct {
	// TargetTrialCount is the absolute number of records the history must
	// reach, initial history included. Required.
	TargetTrialCount int

	// Concurrency is the number of worker slots. Must be at least 1.
	Concurrency int

	// PointsPerSlot is how many trials a slot produces per launch.
	PointsPerSlot int

	// Mode selects the execution substrate.
	Mode Mode

	// Lockstep makes slots run in generations: no slot starts until every
	// slot of the current generation finished or crashed.
	Lockstep bool

	// Gamma is passed to the default TPE engine. Ignored when Engine is set.
	Gamma float64

	// Seed is the master seed from which every proposal seed is derived.
	Seed int64

	// InitialHistory is prior state to resume from.
	InitialHistory []TrialRecord

	// Engine proposes candidates. If nil, a TPE engine over Space is used.
	Engine ProposalEngine

	// Space is the search space of the default engine.
	Space *Space

	// Evaluator runs the objective in ModeThread.
	Evaluator Evaluator

	// Command is the child process argv used in ModeProcess. The child
	// receives the candidate as JSON on stdin and must print a Result as
	// JSON on stdout.
	Command []string

	// Env is appended to the environment of process-mode children.
	Env []string

	// Checkpointer, if set, is called after every accepted merge.
	Checkpointer Checkpointer

	// PollInterval is the scheduler tick.
	PollInterval time.Duration

	// CrashGrace is the number of empty polls of a terminated unit tolerated
	// before declaring a crash.
	CrashGrace int

	// Logger receives the scheduler logs. Defaults to the logrus standard
	// logger.
	Logger logrus.FieldLogger

	// ProgressChan is used to send progress updates during optimization.
	// If nil, no updates will be sent. Updates are dropped when the channel
	// is full.
	ProgressChan chan<- ProgressUpdate
}

//////
// Exported functionalities.
//////

// DefaultConfig returns a default configuration. TargetTrialCount, the
// evaluator (or command) and the space (or engine) still need to be set.
func DefaultConfig() Config {
	return Config{
		Concurrency:   runtime.NumCPU(),
		PointsPerSlot: 1,
		Mode:          ModeThread,
		Gamma:         DefaultGamma,
		Seed:          time.Now().UnixNano(),
		PollInterval:  DefaultPollInterval,
		CrashGrace:    DefaultCrashGrace,
	}
}

// Validate reports the first configuration error, wrapped in
// ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1, got %d", ErrInvalidConfig, c.Concurrency)
	}

	if c.PointsPerSlot < 1 {
		return fmt.Errorf("%w: points per slot must be >= 1, got %d", ErrInvalidConfig, c.PointsPerSlot)
	}

	if c.TargetTrialCount < len(c.InitialHistory) {
		return fmt.Errorf("%w: target trial count %d is below initial history length %d",
			ErrInvalidConfig, c.TargetTrialCount, len(c.InitialHistory))
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidConfig, c.PollInterval)
	}

	if c.CrashGrace < 0 {
		return fmt.Errorf("%w: crash grace must be >= 0, got %d", ErrInvalidConfig, c.CrashGrace)
	}

	switch c.Mode {
	case ModeThread:
		if c.Evaluator == nil {
			return fmt.Errorf("%w: thread mode requires an evaluator", ErrInvalidConfig)
		}
	case ModeProcess:
		if len(c.Command) == 0 {
			return fmt.Errorf("%w: process mode requires a command", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownMode, c.Mode)
	}

	if c.Engine == nil {
		if c.Space == nil {
			return fmt.Errorf("%w: either an engine or a space is required", ErrInvalidConfig)
		}

		if err := c.Space.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}

		if c.Gamma <= 0 || c.Gamma > 1 {
			return fmt.Errorf("%w: gamma must be in (0, 1], got %v", ErrInvalidConfig, c.Gamma)
		}
	}

	return nil
}

// logger returns the configured logger or the logrus standard logger.
func (c Config) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}

	return logrus.StandardLogger()
}

// engine returns the configured engine or a TPE engine over Space.
func (c Config) engine() ProposalEngine {
	if c.Engine != nil {
		return c.Engine
	}

	return NewTPE(c.Space, WithGamma(c.Gamma))
}
