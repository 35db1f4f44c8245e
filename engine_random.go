package horunner

import "math/rand"

// RandomEngine proposes uniformly random candidates. It ignores history.
type RandomEngine struct {
	space *Space
}

// Suggest implements ProposalEngine.
func (e *RandomEngine) Suggest(_ []TrialRecord, seed int64) (Params, error) {
	return e.space.Sample(rand.New(rand.NewSource(seed))), nil
}

// NewRandomEngine creates a random search engine over space.
func NewRandomEngine(space *Space) *RandomEngine {
	return &RandomEngine{space: space}
}
