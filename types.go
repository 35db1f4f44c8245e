package horunner

import (
	"context"
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

//////
// Const, vars, types.
//////

// Status is the outcome of a single trial evaluation.
type Status string

const (
	// StatusOK marks a trial whose evaluator produced a usable loss.
	StatusOK Status = "ok"

	// StatusFail marks a trial whose evaluator reported a failure. It is still
	// a completed trial and counts towards the target.
	StatusFail Status = "fail"

	// StatusPending marks a trial that has not been evaluated yet.
	StatusPending Status = "pending"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusFail, StatusPending:
		return true
	}

	return false
}

// Params is a candidate: a sampled point in the search space, keyed by
// parameter name.
type Params map[string]float64

// Clone returns a deep copy of p. A nil Params clones to nil.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}

	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out
}

// Result is what an evaluator returns for a candidate.
//
// Fields:
// - Status: ok or fail
// - Loss: present iff Status is ok (lower is better)
// - LossVariance: optional uncertainty of Loss
type Result struct {
	// Status of the evaluation.
	Status Status `json:"status" yaml:"status"`

	// Loss is the objective value. Must be set when Status is StatusOK and
	// must be nil otherwise.
	Loss *float64 `json:"loss,omitempty" yaml:"loss,omitempty"`

	// LossVariance is the optional variance of Loss.
	LossVariance *float64 `json:"loss_variance,omitempty" yaml:"loss_variance,omitempty"`
}

// OK builds a successful Result with the given loss.
func OK(loss float64) Result {
	return Result{Status: StatusOK, Loss: &loss}
}

// Fail builds a failed Result.
func Fail() Result {
	return Result{Status: StatusFail}
}

// normalize enforces "loss present iff status is ok". An unknown status, or
// an ok Result without a finite loss, is downgraded to fail. A non-finite
// variance is dropped.
func (r Result) normalize() Result {
	if !r.Status.Valid() {
		return Fail()
	}

	if r.Status != StatusOK {
		return Result{Status: r.Status}
	}

	if !finite(r.Loss) {
		return Fail()
	}

	if r.LossVariance != nil && !finite(r.LossVariance) {
		r.LossVariance = nil
	}

	return r
}

// usable reports whether r is ok with a finite loss.
func (r Result) usable() bool {
	return r.Status == StatusOK && finite(r.Loss)
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// TrialRecord is one evaluated trial. It is immutable once inserted into a
// History.
type TrialRecord struct {
	// ID uniquely identifies the trial across runs and resumes.
	ID string `json:"id" yaml:"id"`

	// Index is the sequence index, assigned by History.Insert.
	Index int `json:"index" yaml:"index"`

	// Slot is the concurrency slot that produced the trial.
	Slot int `json:"slot" yaml:"slot"`

	// Params is the candidate that was evaluated.
	Params Params `json:"params" yaml:"params"`

	// Result is the evaluation outcome.
	Result Result `json:"result" yaml:"result"`

	// StartedAt and FinishedAt bracket the evaluation.
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// clone returns a deep copy of the record.
func (t TrialRecord) clone() TrialRecord {
	out := t
	out.Params = t.Params.Clone()

	if t.Result.Loss != nil {
		v := *t.Result.Loss
		out.Result.Loss = &v
	}

	if t.Result.LossVariance != nil {
		v := *t.Result.LossVariance
		out.Result.LossVariance = &v
	}

	return out
}

// ProposalEngine picks the next candidate given the trial history.
//
// Parameters:
// - history: A deep-copied snapshot of the completed trials
// - seed: An independent random seed for this proposal
//
// Returns:
// - Params: The next candidate to evaluate
// - error: Any failure to propose; treated as a crash of the slot
//
// Implementations must be deterministic given (history, seed) so lockstep
// runs and resumed runs reproduce the same decisions.
type ProposalEngine interface {
	Suggest(history []TrialRecord, seed int64) (Params, error)
}

// Cloner is implemented by stateful proposal engines. Each execution unit
// receives its own Clone so engine state is never shared between units.
type Cloner interface {
	Clone() ProposalEngine
}

// ProposalFunc adapts a plain function to ProposalEngine.
type ProposalFunc func(history []TrialRecord, seed int64) (Params, error)

// Suggest implements ProposalEngine.
func (f ProposalFunc) Suggest(history []TrialRecord, seed int64) (Params, error) {
	return f(history, seed)
}

// Evaluator runs the objective for one candidate. Returning an error or
// panicking is treated as a crash of the execution unit: the trial is
// dropped and the slot recycled. Report a bad candidate with Fail() instead.
type Evaluator interface {
	Evaluate(ctx context.Context, params Params) (Result, error)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(ctx context.Context, params Params) (Result, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, params Params) (Result, error) {
	return f(ctx, params)
}

// Checkpointer persists a history snapshot. It is called after every
// accepted merge; failures are logged and never stop the run.
type Checkpointer interface {
	Save(ctx context.Context, history []TrialRecord) error
}

// CheckpointFunc adapts a plain function to Checkpointer.
type CheckpointFunc func(ctx context.Context, history []TrialRecord) error

// Save implements Checkpointer.
func (f CheckpointFunc) Save(ctx context.Context, history []TrialRecord) error {
	return f(ctx, history)
}

// Mode selects the execution substrate of the worker slots.
type Mode string

const (
	// ModeThread runs evaluations in-process, one goroutine per slot. The
	// evaluator must be free of unsynchronized global state.
	ModeThread Mode = "thread"

	// ModeProcess runs every evaluation in a child OS process.
	ModeProcess Mode = "process"
)

// EventKind identifies what happened to a slot.
type EventKind string

const (
	EventLaunched      EventKind = "launched"
	EventCompleted     EventKind = "completed"
	EventPossibleCrash EventKind = "possible_crash"
	EventCrashed       EventKind = "crashed"
)

// ProgressUpdate represents the current state of the optimization process. It
// is sent on Config.ProgressChan after every slot transition.
type ProgressUpdate struct {
	// Kind of transition.
	Kind EventKind

	// Slot that transitioned.
	Slot int

	// Generation is the lockstep generation the slot belongs to. It is always
	// zero when lockstep is disabled.
	Generation int

	// Trials is the history length after the transition.
	Trials int

	// InFlight is the number of points being evaluated after the transition.
	InFlight int

	// Target is the target trial count.
	Target int

	// HistoryLen is the length of the snapshot the slot was launched with.
	HistoryLen int

	// Params is the first candidate of the slot, if any.
	Params Params

	// BestLoss is the best ok loss seen so far, nil if none.
	BestLoss *float64
}

// ParameterRange defines the valid range for a hyperparameter in the
// optimization process.
//
// Type Parameter:
//   - T: The numeric type for this parameter range (integer or float)
//
// Validation:
// - Min must be less than or equal to Max
// - The range is inclusive of both Min and Max values
type ParameterRange[T constraints.Integer | constraints.Float] struct {
	// Min defines the minimum allowed value (inclusive).
	Min T `yaml:"min"`

	// Max defines the maximum allowed value (inclusive).
	Max T `yaml:"max"`
}

// AcquisitionFunc defines the signature for acquisition functions used by the
// Gaussian Process engine. These functions help decide which points in the
// parameter space should be evaluated next.
//
// Parameters:
// - mean: The predicted mean loss at a point (lower is better)
// - variance: The predicted variance/uncertainty at that point
// - params: Additional parameters needed by specific acquisition functions
//
// Returns:
// - float64: Acquisition value (lower values indicate more promising points)
//
// Implementation notes for custom acquisition functions:
// - Should handle edge cases (zero variance, extreme means)
// - Must be deterministic given params.RandomState
// - Should return lower values for more promising points.
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds parameters used by the acquisition functions.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off of UCB.
	// Typical values range from 0.1 to 5.0, with 2.0 being a good default.
	Beta float64

	// Xi is the minimum improvement over BestSoFar wanted by PI and EI.
	// Typical values range from 0.01 to 0.1.
	Xi float64

	// BestSoFar is the best (lowest) loss seen so far. It is filled in by the
	// engine on every Suggest call.
	BestSoFar float64

	// RandomState is the random number generator used by Thompson Sampling.
	// The engine sets it from the proposal seed on every Suggest call so no
	// generator is ever shared between slots.
	RandomState *rand.Rand
}
