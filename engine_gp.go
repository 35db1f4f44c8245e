package horunner

import (
	"fmt"
	"math"
	"math/rand"
)

//////
// Const, vars, types.
//////

// GPConfig configures the Gaussian Process engine.
type GPConfig struct {
	// InitialSamples is how many ok trials must exist before the model is
	// used. Until then candidates are sampled at random.
	// Recommended range: 5-20
	InitialSamples int

	// NumCandidates is how many random candidates are scored per proposal.
	// Recommended range: 50-500
	NumCandidates int

	// AcquisitionFunc is the strategy for selecting the next point.
	AcquisitionFunc AcquisitionFunc

	// AcqParams holds the parameters for the acquisition function.
	// BestSoFar and RandomState are overwritten on every proposal.
	AcqParams AcquisitionParams

	// KernelWidth is the RBF width in the unit hypercube.
	KernelWidth float64
}

// GPEngine proposes candidates by fitting a Gaussian Process to the ok
// trials and minimizing an acquisition function over random candidates.
// It holds no mutable state: each Suggest builds its own model.
type GPEngine struct {
	space  *Space
	config GPConfig
}

//////
// Methods.
//////

// Suggest implements ProposalEngine.
//
// How it works:
// 1. With fewer than InitialSamples ok trials, sample the space at random
// 2. Otherwise:
//   - Fit the model to all ok trials
//   - Generate NumCandidates random candidate points
//   - Pick the one with the lowest acquisition value
func (e *GPEngine) Suggest(history []TrialRecord, seed int64) (Params, error) {
	rng := rand.New(rand.NewSource(seed))

	ok := okTrials(history)
	if len(ok) < e.config.InitialSamples || len(freeDims(e.space)) == 0 {
		return e.space.Sample(rng), nil
	}

	gp := newGaussianProcess()
	gp.SetSigma(e.config.KernelWidth)

	best := math.MaxFloat64

	for _, t := range ok {
		loss := *t.Result.Loss
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			continue
		}

		gp.Update(paramsToUnit(e.space, t.Params), loss)

		if loss < best {
			best = loss
		}
	}

	if len(gp.X) == 0 {
		return e.space.Sample(rng), nil
	}

	acq := e.config.AcqParams
	acq.BestSoFar = best
	acq.RandomState = rng

	var (
		next            Params
		bestAcquisition = math.Inf(1)
	)

	for j := 0; j < e.config.NumCandidates; j++ {
		candidate := e.space.Sample(rng)

		mean, variance := gp.Predict(paramsToUnit(e.space, candidate))

		acquisition := e.config.AcquisitionFunc(mean, variance, acq)
		if next == nil || acquisition < bestAcquisition {
			bestAcquisition = acquisition
			next = candidate
		}
	}

	if next == nil {
		return nil, fmt.Errorf("gp engine: no candidate scored")
	}

	return next, nil
}

//////
// Factory.
//////

// DefaultGPConfig returns a default configuration (UCB).
func DefaultGPConfig() GPConfig {
	return GPConfig{
		InitialSamples:  10,
		NumCandidates:   50,
		AcquisitionFunc: UCB,
		AcqParams: AcquisitionParams{
			Beta: 2.0,
			Xi:   0.01,
		},
		KernelWidth: defaultKernelWidth,
	}
}

// NewGPEngine creates a Gaussian Process engine over space. Zero fields of
// config fall back to DefaultGPConfig.
func NewGPEngine(space *Space, config GPConfig) *GPEngine {
	def := DefaultGPConfig()

	if config.NumCandidates <= 0 {
		config.NumCandidates = def.NumCandidates
	}

	if config.AcquisitionFunc == nil {
		config.AcquisitionFunc = def.AcquisitionFunc
	}

	if config.KernelWidth <= 0 {
		config.KernelWidth = def.KernelWidth
	}

	return &GPEngine{space: space, config: config}
}
