package horunner

import (
	"math"
)

//////
// Helper functions.
//////

// Helper function used by PI and EI to compute the cumulative distribution
// function of the standard normal distribution.
//
// Returns:
// - Probability that a standard normal random variable is less than x.
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// Helper function used by EI to compute the probability density function
// of the standard normal distribution.
//
// Returns:
// - Value of the standard normal PDF at x.
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2.0) / math.Sqrt(2.0*math.Pi)
}

// clamp01 restricts x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}

	if x > 1 {
		return 1
	}

	return x
}

// paramsToUnit converts a candidate to a vector in the unit hypercube, one
// coordinate per non-constant dimension, in space order. The Gaussian
// Process and TPE engines work on this representation.
//
// Important notes:
// - Creates a new slice; doesn't modify the input
// - Missing parameters map to 0.5
func paramsToUnit(space *Space, p Params) []float64 {
	out := make([]float64, 0, len(space.Dimensions))

	for _, d := range space.Dimensions {
		if d.Kind == KindConst {
			continue
		}

		v, ok := p[d.Name]
		if !ok {
			out = append(out, 0.5)

			continue
		}

		out = append(out, d.toUnit(v))
	}

	return out
}

// unitToParams is the inverse of paramsToUnit. Constant dimensions are filled
// from the space.
func unitToParams(space *Space, u []float64) Params {
	p := make(Params, len(space.Dimensions))
	i := 0

	for _, d := range space.Dimensions {
		if d.Kind == KindConst {
			p[d.Name] = d.Value

			continue
		}

		p[d.Name] = d.fromUnit(u[i])
		i++
	}

	return p
}

// freeDims returns the non-constant dimensions in space order.
func freeDims(space *Space) []Dimension {
	out := make([]Dimension, 0, len(space.Dimensions))

	for _, d := range space.Dimensions {
		if d.Kind != KindConst {
			out = append(out, d)
		}
	}

	return out
}
