package horunner

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTPEStartupIsRandom(t *testing.T) {
	space := unitSpace()
	tpe := NewTPE(space)

	history := okHistory([2]float64{0.2, 1}, [2]float64{0.4, 2})

	p, err := tpe.Suggest(history, 11)
	require.NoError(t, err)

	assert.Equal(t, space.Sample(rand.New(rand.NewSource(11))), p)
}

func TestTPEDeterministicPerSeed(t *testing.T) {
	space := NewSpace(
		Uniform("x", ParameterRange[float64]{Min: -3, Max: 3}),
		IntRange("n", ParameterRange[int]{Min: 1, Max: 8}),
		Const("target", 4),
	)
	tpe := NewTPE(space, WithStartupTrials(2))

	rng := rand.New(rand.NewSource(5))
	history := make([]TrialRecord, 0, 20)

	for i := 0; i < 20; i++ {
		p := space.Sample(rng)
		history = append(history, TrialRecord{Index: i, Params: p, Result: OK(p["x"] * p["x"])})
	}

	first, err := tpe.Suggest(history, 9)
	require.NoError(t, err)

	again, err := tpe.Suggest(history, 9)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.True(t, space.Contains(first))
	assert.Equal(t, 4.0, first["target"])
}

func TestTPEConcentratesOnGoodRegion(t *testing.T) {
	space := unitSpace()
	tpe := NewTPE(space)

	history := make([]TrialRecord, 0, 50)
	for i := 0; i < 50; i++ {
		x := float64(i) / 49
		history = append(history, TrialRecord{Index: i, Params: Params{"x": x}, Result: OK((x - 0.8) * (x - 0.8))})
	}

	var sum float64

	for seed := int64(0); seed < 20; seed++ {
		p, err := tpe.Suggest(history, seed)
		require.NoError(t, err)

		sum += p["x"]
	}

	assert.InDelta(t, 0.8, sum/20, 0.2)
}

func TestTPEIgnoresFailedAndNonFinite(t *testing.T) {
	history := []TrialRecord{
		{Params: Params{"x": 0.1}, Result: Fail()},
		{Params: Params{"x": 0.2}, Result: OK(math.NaN())},
		{Params: Params{"x": 0.3}, Result: OK(math.Inf(1))},
		{Params: Params{"x": 0.4}, Result: OK(1)},
	}

	assert.Len(t, finiteOK(history), 1)
}

func TestTPEOptions(t *testing.T) {
	tpe := NewTPE(unitSpace(), WithGamma(0.5), WithStartupTrials(3), WithEICandidates(64))

	assert.Equal(t, 0.5, tpe.Gamma())
	assert.Equal(t, 3, tpe.startupTrials)
	assert.Equal(t, 64, tpe.candidates)

	// Out of range values are ignored.
	tpe = NewTPE(unitSpace(), WithGamma(2), WithStartupTrials(-1), WithEICandidates(0))

	assert.Equal(t, DefaultGamma, tpe.Gamma())
	assert.Equal(t, defaultStartupTrials, tpe.startupTrials)
	assert.Equal(t, defaultEICandidates, tpe.candidates)
}

func TestParzen(t *testing.T) {
	p := newParzen([]float64{0.2, 0.25, 0.9})

	require.Len(t, p.mus, 4)
	assert.InDelta(t, 1.0, p.weights[0]+p.weights[1]+p.weights[2]+p.weights[3], 1e-12)

	// Density is higher near the observations than between them.
	assert.Greater(t, p.logPDF(0.22), p.logPDF(0.6))

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		x := p.sample(rng)
		assert.True(t, x >= 0 && x <= 1)
	}
}

func TestRandomEngine(t *testing.T) {
	space := unitSpace()
	engine := NewRandomEngine(space)

	a, err := engine.Suggest(nil, 1)
	require.NoError(t, err)

	b, err := engine.Suggest(okHistory([2]float64{0.5, 1}), 1)
	require.NoError(t, err)

	assert.Equal(t, a, b, "history is ignored")
	assert.True(t, space.Contains(a))
}
