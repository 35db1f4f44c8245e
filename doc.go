// Package horunner runs black-box hyperparameter optimization with bounded
// concurrency. It repeatedly proposes candidates, evaluates them in parallel
// up to a fixed number of worker slots, merges results into an append-only
// history as they complete, and stops once a target number of trials has
// been recorded.
//
// # Features
//
// The package includes the following key features:
//
//   - Bounded Concurrency: A single coordinator drives Concurrency worker
//     slots; each slot owns at most one in-flight trial
//   - Two Execution Substrates: In-process goroutines (ModeThread) or one
//     child OS process per evaluation (ModeProcess)
//   - Crash Tolerance: Panicking evaluators and children that exit without
//     a result cost only their trial; a short grace period avoids declaring
//     a crash while a result is still being delivered
//   - Lockstep Mode: Slots run in generations that all see the same history
//   - Pluggable Proposal Engines: TPE (default, tuned by Gamma), Gaussian
//     Process with UCB/PI/EI/Thompson acquisition, and random search
//   - Checkpointing and Resume: A Checkpointer is called after every merge;
//     resuming from a checkpoint reproduces the same scheduling decisions
//   - Progress Monitoring: Real-time updates via a non-blocking channel
//
// # Getting Started
//
//	config := horunner.DefaultConfig()
//	config.TargetTrialCount = 10
//	config.Concurrency = 5
//	config.Space = horunner.NewSpace(
//	    horunner.Uniform("x", horunner.ParameterRange[float64]{Min: -3, Max: 3}),
//	    horunner.Const("target", 4),
//	)
//	config.Evaluator = horunner.EvaluatorFunc(
//	    func(ctx context.Context, p horunner.Params) (horunner.Result, error) {
//	        y := p["x"] * p["x"]
//	        return horunner.OK((y - p["target"]) * (y - p["target"])), nil
//	    },
//	)
//
//	history, err := horunner.Run(context.Background(), config)
//
// # Failure Semantics
//
//   - An evaluator returning Fail() records a "fail" trial that counts
//     towards the target and is never retried
//   - An evaluator returning an error or panicking, or a child process
//     exiting without a result, is a crash: no record, the slot is recycled
//     with a fresh candidate
//   - Checkpoint failures are logged and ignored
//   - Run returns configuration errors before any trial starts, ctx.Err()
//     on cancellation and ErrInvariant if the closing checks fail
//
// # Process Mode
//
// In ModeProcess every evaluation runs Config.Command. The child reads the
// candidate as JSON on stdin and prints a Result as JSON on stdout; see
// ServeWorker for the child side. The slot number is exported to the child
// as HYPEROPT_NUM.
package horunner
