package horunner

//////
// Const, vars, types.
//////

// slotState is the occupancy of a worker slot.
type slotState int

const (
	slotIdle slotState = iota
	slotRunning
)

func (s slotState) String() string {
	if s == slotRunning {
		return "running"
	}

	return "idle"
}

// pollOutcome is what a non-blocking poll of a running slot observed.
type pollOutcome int

const (
	// pollPending: no result yet and the unit is still running.
	pollPending pollOutcome = iota

	// pollResult: a batch of records was received.
	pollResult

	// pollPossibleCrash: the unit terminated but no result was seen yet.
	pollPossibleCrash

	// pollCrashed: the unit terminated and the grace period is exhausted.
	pollCrashed
)

// slot is one concurrency unit of the scheduler. It is a small state
// machine, idle -> running -> idle, mutated only by the coordinator.
type slot struct {
	id int

	state slotState
	unit  *execUnit

	// results is the single-producer single-consumer channel owned by the
	// slot. Buffer of one: a unit publishes at most one batch.
	results chan []TrialRecord

	// failedPolls counts consecutive empty polls after the unit terminated.
	failedPolls int

	// points is how many records a launch produces.
	points int

	// attempt counts crashes since the last accepted result.
	attempt int

	// generation and historyLen describe the current launch.
	generation int
	historyLen int
	params     Params
}

//////
// Methods.
//////

// assign moves an idle slot to running.
func (s *slot) assign(u *execUnit, generation, historyLen int, params Params) {
	s.state = slotRunning
	s.unit = u
	s.failedPolls = 0
	s.generation = generation
	s.historyLen = historyLen
	s.params = params
}

// attempted records a launch attempt that failed before a unit started. The
// slot stays idle.
func (s *slot) attempted(generation, historyLen int) {
	s.generation = generation
	s.historyLen = historyLen
	s.params = nil
}

// release moves the slot back to idle.
func (s *slot) release() {
	s.state = slotIdle
	s.unit = nil
	s.failedPolls = 0
}

// poll checks the result channel without blocking.
//
// The result check comes before the liveness check, and a unit can publish
// and exit between the two, so a terminated unit with an empty channel is
// only declared crashed after more than grace consecutive empty polls.
func (s *slot) poll(grace int) ([]TrialRecord, pollOutcome) {
	select {
	case records := <-s.results:
		return records, pollResult
	default:
	}

	if s.unit.alive() {
		return nil, pollPending
	}

	if s.failedPolls > grace {
		return nil, pollCrashed
	}

	s.failedPolls++

	return nil, pollPossibleCrash
}

// drained reports whether the result channel is empty.
func (s *slot) drained() bool {
	return len(s.results) == 0
}

//////
// Factory.
//////

func newSlot(id, points int) *slot {
	return &slot{
		id:      id,
		points:  points,
		results: make(chan []TrialRecord, 1),
	}
}
