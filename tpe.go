package horunner

import (
	"math"
	"math/rand"
	"sort"
)

//////
// Const, vars, types.
//////

const (
	// defaultStartupTrials is how many ok trials TPE wants before it stops
	// sampling at random.
	defaultStartupTrials = 10

	// defaultEICandidates is how many draws from the good density are
	// scored per proposal.
	defaultEICandidates = 24

	// priorWeight is the weight of the uniform-ish prior component of every
	// Parzen estimator.
	priorWeight = 1.0
)

// TPE is a Tree-structured Parzen Estimator proposal engine.
//
// The ok trials are split by loss: the best ceil(Gamma * sqrt(n)) form the
// "good" set, the rest the "bad" set. Each set gets a per-dimension Parzen
// density over the unit hypercube. Candidates are drawn from the good
// density and the one maximizing good(x) / bad(x) is proposed.
//
// TPE holds no mutable state and is safe to share between slots.
type TPE struct {
	space         *Space
	gamma         float64
	startupTrials int
	candidates    int
}

// TPEOption configures a TPE engine.
type TPEOption func(*TPE)

// WithGamma sets the quantile splitting good from bad trials.
func WithGamma(gamma float64) TPEOption {
	return func(t *TPE) {
		if gamma > 0 && gamma <= 1 {
			t.gamma = gamma
		}
	}
}

// WithStartupTrials sets how many ok trials are needed before the model is
// used.
func WithStartupTrials(n int) TPEOption {
	return func(t *TPE) {
		if n >= 0 {
			t.startupTrials = n
		}
	}
}

// WithEICandidates sets how many candidates are scored per proposal.
func WithEICandidates(n int) TPEOption {
	return func(t *TPE) {
		if n > 0 {
			t.candidates = n
		}
	}
}

// parzen is a truncated Gaussian mixture on [0, 1].
type parzen struct {
	mus, sigmas, weights []float64
}

//////
// Methods.
//////

// Gamma returns the configured quantile.
func (t *TPE) Gamma() float64 {
	return t.gamma
}

// Suggest implements ProposalEngine.
func (t *TPE) Suggest(history []TrialRecord, seed int64) (Params, error) {
	rng := rand.New(rand.NewSource(seed))

	ok := finiteOK(history)
	dims := freeDims(t.space)

	if len(ok) < t.startupTrials || len(ok) < 2 || len(dims) == 0 {
		return t.space.Sample(rng), nil
	}

	sort.SliceStable(ok, func(i, j int) bool {
		return *ok[i].Result.Loss < *ok[j].Result.Loss
	})

	nGood := int(math.Ceil(t.gamma * math.Sqrt(float64(len(ok)))))
	if nGood < 1 {
		nGood = 1
	}

	if nGood > len(ok) {
		nGood = len(ok)
	}

	good := make([][]float64, 0, nGood)
	bad := make([][]float64, 0, len(ok)-nGood)

	for i, tr := range ok {
		u := paramsToUnit(t.space, tr.Params)
		if i < nGood {
			good = append(good, u)
		} else {
			bad = append(bad, u)
		}
	}

	goodDens := make([]parzen, len(dims))
	badDens := make([]parzen, len(dims))

	for d := range dims {
		goodDens[d] = newParzen(column(good, d))
		badDens[d] = newParzen(column(bad, d))
	}

	var (
		best      []float64
		bestScore = math.Inf(-1)
	)

	for c := 0; c < t.candidates; c++ {
		u := make([]float64, len(dims))
		score := 0.0

		for d := range dims {
			u[d] = goodDens[d].sample(rng)
			score += goodDens[d].logPDF(u[d]) - badDens[d].logPDF(u[d])
		}

		if best == nil || score > bestScore {
			best, bestScore = u, score
		}
	}

	return unitToParams(t.space, best), nil
}

// sample draws from the mixture, rejecting draws outside [0, 1].
func (p parzen) sample(rng *rand.Rand) float64 {
	r := rng.Float64()
	k := len(p.weights) - 1

	for i, w := range p.weights {
		if r < w {
			k = i

			break
		}

		r -= w
	}

	for attempt := 0; attempt < 100; attempt++ {
		x := p.mus[k] + p.sigmas[k]*rng.NormFloat64()
		if x >= 0 && x <= 1 {
			return x
		}
	}

	return clamp01(p.mus[k])
}

// logPDF is the log density of the truncated mixture at x.
func (p parzen) logPDF(x float64) float64 {
	var density float64

	for i := range p.mus {
		mu, s := p.mus[i], p.sigmas[i]
		z := normalCDF((1-mu)/s) - normalCDF((0-mu)/s)

		if z <= 0 {
			continue
		}

		density += p.weights[i] * normalPDF((x-mu)/s) / (s * z)
	}

	if density <= 0 {
		return math.Inf(-1)
	}

	return math.Log(density)
}

//////
// Helpers.
//////

// finiteOK returns the ok trials with a finite loss.
func finiteOK(history []TrialRecord) []TrialRecord {
	out := make([]TrialRecord, 0, len(history))

	for _, tr := range okTrials(history) {
		if !math.IsNaN(*tr.Result.Loss) && !math.IsInf(*tr.Result.Loss, 0) {
			out = append(out, tr)
		}
	}

	return out
}

func column(points [][]float64, d int) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p[d]
	}

	return out
}

// newParzen builds an adaptive-bandwidth estimator: a wide prior component
// centred on the unit interval plus one component per observation whose
// width is the larger gap to its sorted neighbours.
func newParzen(obs []float64) parzen {
	n := len(obs)

	mus := make([]float64, 0, n+1)
	mus = append(mus, 0.5)
	mus = append(mus, obs...)

	order := make([]int, len(mus))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool { return mus[order[a]] < mus[order[b]] })

	minSigma := 1.0 / math.Min(100, float64(n+1))
	sigmas := make([]float64, len(mus))

	for pos, idx := range order {
		if idx == 0 {
			sigmas[idx] = 1

			continue
		}

		left, right := mus[idx], 1-mus[idx]
		if pos > 0 {
			left = mus[idx] - mus[order[pos-1]]
		}

		if pos < len(order)-1 {
			right = mus[order[pos+1]] - mus[idx]
		}

		sigmas[idx] = math.Max(minSigma, math.Min(1, math.Max(left, right)))
	}

	total := priorWeight + float64(n)
	weights := make([]float64, len(mus))
	weights[0] = priorWeight / total

	for i := 1; i < len(mus); i++ {
		weights[i] = 1 / total
	}

	return parzen{mus: mus, sigmas: sigmas, weights: weights}
}

//////
// Factory.
//////

// NewTPE creates a TPE engine over space.
func NewTPE(space *Space, opts ...TPEOption) *TPE {
	t := &TPE{
		space:         space,
		gamma:         DefaultGamma,
		startupTrials: defaultStartupTrials,
		candidates:    defaultEICandidates,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}
