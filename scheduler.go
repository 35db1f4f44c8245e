package horunner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

//////
// Const, vars, types.
//////

// ErrInvariant is returned when the closing checks of a run fail. It means a
// bug in the scheduler, never a failing trial.
var ErrInvariant = errors.New("scheduler invariant violated")

// schedulerState holds the process-wide counters. Only the coordinator
// goroutine touches it.
type schedulerState struct {
	// inFlight is the number of points being evaluated.
	inFlight int

	// target is the absolute history length to reach.
	target int

	// gate is the lockstep gate: new slots may start only while it is open.
	gate bool

	// generation counts lockstep generations.
	generation int
}

// scheduler is the coordinator of a Run.
type scheduler struct {
	config   Config
	logger   logrus.FieldLogger
	history  *History
	engine   ProposalEngine
	evaluate evaluateFunc
	slots    []*slot
	state    schedulerState
	wake     chan struct{}
}

//////
// Exported functionalities.
//////

// Run drives the optimization until the history holds
// config.TargetTrialCount records and no slot is in flight.
//
// How it works, once per tick:
//  1. Every running slot is polled without blocking. A result is merged into
//     the history and checkpointed; a unit that terminated without a result
//     is declared crashed after the grace period and its trial is dropped.
//  2. In lockstep mode a closed gate reopens once every slot is idle, which
//     starts a new generation.
//  3. Every idle slot, while admitting it keeps history length plus points in
//     flight below the target and the lockstep gate is open, gets a candidate
//     from the engine (seeded independently), a deep copy of the history and
//     an execution unit.
//  4. In lockstep mode the gate closes after any launch attempt, so every
//     slot that tried to start this tick, including one whose proposal
//     failed, belongs to the current generation.
//
// Important notes:
// - Configuration errors are returned before any unit is launched
// - Evaluator failures, panics and crashed children never stop the run
// - Cancelling ctx stops scheduling and returns the history so far together
//   with ctx.Err(); process-mode children are killed, in-process
//   evaluations are abandoned
// - An evaluator that never returns stalls its slot forever
// - A proposal failure is retried on the next tick with a fresh seed; an
//   engine that always fails keeps the run going until ctx is cancelled
//
// Usage example:
//
//	config := DefaultConfig()
//	config.TargetTrialCount = 10
//	config.Concurrency = 5
//	config.Space = NewSpace(
//	    Uniform("x", ParameterRange[float64]{Min: -3, Max: 3}),
//	    Const("target", 4),
//	)
//	config.Evaluator = EvaluatorFunc(func(ctx context.Context, p Params) (Result, error) {
//	    return OK(math.Pow(p["x"]*p["x"]-p["target"], 2)), nil
//	})
//
//	history, err := Run(ctx, config)
func Run(ctx context.Context, config Config) (*History, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := newScheduler(config)

	return s.run(ctx)
}

//////
// Methods.
//////

func (s *scheduler) run(ctx context.Context) (*History, error) {
	begin := time.Now()

	s.logger.WithFields(logrus.Fields{
		"trials":      s.history.Len(),
		"target":      s.state.target,
		"concurrency": len(s.slots),
		"lockstep":    s.config.Lockstep,
	}).Info("starting optimization")

	unitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := time.NewTimer(s.config.PollInterval)
	defer timer.Stop()

	for !s.finished() {
		s.tick(unitCtx)

		if s.finished() {
			break
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		timer.Reset(s.config.PollInterval)

		select {
		case <-ctx.Done():
			s.logger.WithField("trials", s.history.Len()).Warn("optimization cancelled")

			return s.history, ctx.Err()
		case <-s.wake:
		case <-timer.C:
		}
	}

	s.logger.WithFields(logrus.Fields{
		"trials":   s.history.Len(),
		"run_time": time.Since(begin).String(),
	}).Info("optimization complete")

	if err := s.verify(); err != nil {
		return s.history, err
	}

	return s.history, nil
}

// finished reports whether the target is reached and nothing is in flight.
func (s *scheduler) finished() bool {
	return s.history.Len() >= s.state.target && s.state.inFlight == 0
}

// tick is one scheduling pass over all slots.
func (s *scheduler) tick(ctx context.Context) {
	for _, sl := range s.slots {
		if sl.state == slotRunning {
			s.collect(ctx, sl)
		}
	}

	if s.config.Lockstep && !s.state.gate && s.allIn(slotIdle) {
		s.state.gate = true
		s.state.generation++

		s.logger.WithField("generation", s.state.generation).Debug("lockstep gate opened")
	}

	attempted := false

	for _, sl := range s.slots {
		if sl.state != slotIdle || !s.admit() {
			continue
		}

		s.launch(ctx, sl)

		attempted = true
	}

	if s.config.Lockstep && attempted {
		s.state.gate = false

		s.logger.WithField("generation", s.state.generation).Debug("lockstep gate closed")
	}
}

// admit reports whether one more slot may start.
func (s *scheduler) admit() bool {
	return s.state.gate && s.history.Len()+s.state.inFlight < s.state.target
}

// launch proposes a candidate for an idle slot and starts its unit.
func (s *scheduler) launch(ctx context.Context, sl *slot) {
	snapshot := s.history.Snapshot()
	seed := deriveSeed(s.config.Seed, len(snapshot), sl.id, sl.attempt)
	log := s.slotLogger(sl)

	params, err := s.engine.Suggest(snapshot, seed)
	if err != nil {
		// The slot stays idle; a later tick retries with a fresh seed.
		sl.attempt++
		sl.attempted(s.state.generation, len(snapshot))

		log.WithError(err).Warn("proposal failed")
		s.emit(EventCrashed, sl)

		return
	}

	engine := s.engine
	if c, ok := engine.(Cloner); ok {
		engine = c.Clone()
	}

	u := startUnit(ctx, launch{
		slot:     sl.id,
		first:    params.Clone(),
		snapshot: snapshot,
		engine:   engine,
		seed:     seed,
		points:   sl.points,
		evaluate: s.evaluate,
		results:  sl.results,
		wake:     s.wake,
		logger:   log,
	})

	sl.assign(u, s.state.generation, len(snapshot), params)
	s.state.inFlight += sl.points

	log.WithField("params", FormatParams(params)).Info("starting")
	s.emit(EventLaunched, sl)
}

// collect polls a running slot and applies the outcome.
func (s *scheduler) collect(ctx context.Context, sl *slot) {
	log := s.slotLogger(sl)

	records, outcome := sl.poll(s.config.CrashGrace)

	switch outcome {
	case pollPending:
		return
	case pollPossibleCrash:
		log.WithField("empty_polls", sl.failedPolls).Warn("possible crash")
		s.emit(EventPossibleCrash, sl)

		return
	case pollResult:
		s.history.Insert(records...)
		s.state.inFlight -= sl.points
		sl.attempt = 0
		sl.release()

		log.WithFields(logrus.Fields{
			"trials": s.history.Len(),
			"ok":     len(s.history.OK()),
		}).Info("complete")
		s.emit(EventCompleted, sl)
		s.checkpoint(ctx)
	case pollCrashed:
		s.state.inFlight -= sl.points
		sl.attempt++
		sl.release()

		log.Warn("crashed")
		s.emit(EventCrashed, sl)
	}
}

// checkpoint saves a snapshot. Failures are logged only.
func (s *scheduler) checkpoint(ctx context.Context) {
	if s.config.Checkpointer == nil {
		return
	}

	if err := s.config.Checkpointer.Save(ctx, s.history.Snapshot()); err != nil {
		s.logger.WithError(err).Warn("checkpoint failed")
	}
}

// allIn reports whether every slot is in state st.
func (s *scheduler) allIn(st slotState) bool {
	for _, sl := range s.slots {
		if sl.state != st {
			return false
		}
	}

	return true
}

// verify runs the closing checks.
func (s *scheduler) verify() error {
	for _, sl := range s.slots {
		if sl.state != slotIdle {
			return fmt.Errorf("%w: slot %d is %s", ErrInvariant, sl.id, sl.state)
		}

		if !sl.drained() {
			return fmt.Errorf("%w: slot %d has an undelivered result", ErrInvariant, sl.id)
		}
	}

	if s.state.inFlight != 0 {
		return fmt.Errorf("%w: %d points still in flight", ErrInvariant, s.state.inFlight)
	}

	if over := s.history.Len() - s.state.target; over >= s.config.PointsPerSlot {
		return fmt.Errorf("%w: overshot target by %d", ErrInvariant, over)
	}

	return nil
}

func (s *scheduler) slotLogger(sl *slot) logrus.FieldLogger {
	return s.logger.WithFields(logrus.Fields{
		"mode": s.config.Mode,
		"slot": sl.id,
	})
}

// emit sends a progress update without blocking.
func (s *scheduler) emit(kind EventKind, sl *slot) {
	if s.config.ProgressChan == nil {
		return
	}

	update := ProgressUpdate{
		Kind:       kind,
		Slot:       sl.id,
		Generation: sl.generation,
		Trials:     s.history.Len(),
		InFlight:   s.state.inFlight,
		Target:     s.state.target,
		HistoryLen: sl.historyLen,
		Params:     sl.params.Clone(),
	}

	if best, ok := s.history.Best(); ok {
		update.BestLoss = best.Result.Loss
	}

	select {
	case s.config.ProgressChan <- update:
	default:
		// Skip update if channel is full.
	}
}

//////
// Factory.
//////

func newScheduler(config Config) *scheduler {
	s := &scheduler{
		config:  config,
		logger:  config.logger(),
		history: NewHistory(config.InitialHistory...),
		engine:  config.engine(),
		slots:   make([]*slot, config.Concurrency),
		wake:    make(chan struct{}, 1),
		state: schedulerState{
			target: config.TargetTrialCount,
			gate:   true,
		},
	}

	for i := range s.slots {
		s.slots[i] = newSlot(i, config.PointsPerSlot)
	}

	switch config.Mode {
	case ModeProcess:
		s.evaluate = childProcess(config.Command, config.Env)
	default:
		s.evaluate = inProcess(config.Evaluator)
	}

	return s
}
