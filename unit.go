package horunner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

//////
// Const, vars, types.
//////

// evaluateFunc evaluates one candidate on behalf of a slot. It is the seam
// between the execution unit and the substrate (in-process or child
// process).
type evaluateFunc func(ctx context.Context, slot int, params Params) (Result, error)

// launch is everything a unit needs to run, captured by value at launch
// time.
type launch struct {
	slot     int
	first    Params
	snapshot []TrialRecord
	engine   ProposalEngine
	seed     int64
	points   int
	evaluate evaluateFunc
	results  chan<- []TrialRecord
	wake     chan<- struct{}
	logger   logrus.FieldLogger
}

// execUnit is the asynchronous execution unit of a running slot. It runs on
// its own goroutine and either publishes exactly one batch of records on the
// slot's result channel or terminates without publishing (a crash).
type execUnit struct {
	done chan struct{}
}

//////
// Methods.
//////

// alive reports whether the unit goroutine is still running.
func (u *execUnit) alive() bool {
	select {
	case <-u.done:
		return false
	default:
		return true
	}
}

//////
// Factory.
//////

// startUnit launches the unit goroutine.
//
// The goroutine publishes before it closes done, and panics are recovered
// at this boundary so a misbehaving evaluator or engine only ever costs the
// trial, never the scheduler.
func startUnit(ctx context.Context, l launch) *execUnit {
	u := &execUnit{done: make(chan struct{})}

	go func() {
		defer notify(l.wake)
		defer close(u.done)
		defer func() {
			if r := recover(); r != nil {
				l.logger.WithField("panic", r).Warn("execution unit panicked")
			}
		}()

		records, err := runPipeline(ctx, l)
		if err != nil {
			l.logger.WithError(err).Warn("execution unit failed")

			return
		}

		l.results <- records
	}()

	return u
}

// runPipeline proposes and evaluates l.points candidates. The first one was
// proposed by the coordinator; the others are proposed here against the
// unit's private snapshot extended with its own results.
func runPipeline(ctx context.Context, l launch) ([]TrialRecord, error) {
	local := l.snapshot
	out := make([]TrialRecord, 0, l.points)

	for k := 0; k < l.points; k++ {
		params := l.first

		if k > 0 {
			next, err := l.engine.Suggest(local, pointSeed(l.seed, k))
			if err != nil {
				return nil, fmt.Errorf("suggest point %d: %w", k, err)
			}

			params = next
		}

		started := time.Now().UTC()

		result, err := l.evaluate(ctx, l.slot, params.Clone())
		if err != nil {
			return nil, fmt.Errorf("evaluate point %d: %w", k, err)
		}

		rec := TrialRecord{
			ID:         uuid.NewString(),
			Index:      len(local),
			Slot:       l.slot,
			Params:     params.Clone(),
			Result:     result.normalize(),
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
		}

		local = append(local, rec)
		out = append(out, rec)
	}

	return out, nil
}

// inProcess evaluates with the configured Evaluator on the unit goroutine.
func inProcess(ev Evaluator) evaluateFunc {
	return func(ctx context.Context, _ int, params Params) (Result, error) {
		return ev.Evaluate(ctx, params)
	}
}

// notify performs a non-blocking send.
func notify(ch chan<- struct{}) {
	if ch == nil {
		return
	}

	select {
	case ch <- struct{}{}:
	default:
	}
}
