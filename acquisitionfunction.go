package horunner

import "math"

//////
// Available acquisition functions for the Gaussian Process engine.
// Each function helps decide which candidate to propose next by balancing
// exploration (trying new areas) and exploitation (focusing on known good areas).
// Lower acquisition values are more promising.
//////

// minVariance keeps PI and EI finite at observed points.
const minVariance = 1e-12

// UCB implements the (lower) confidence bound acquisition function.
//
// How it works:
// - Combines the predicted mean loss with the uncertainty (variance)
// - Lower values are better (we're minimizing loss)
// - The Beta parameter controls the trade-off between exploration and exploitation
//
// Example:
//
//	params := AcquisitionParams{
//	    Beta: 2.0,  // Balance between exploration and exploitation
//	}
//	value := UCB(0.5, 0.2, params)  // Evaluate a point with mean=0.5, variance=0.2
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(variance)
}

// ProbabilityOfImprovement (PI) scores a point by the probability that its
// loss improves upon BestSoFar by at least Xi. The probability is negated so
// that, like every acquisition function here, lower is better.
//
// When to use:
// - When you want to be conservative in exploring new points
// - When you're fine with small improvements
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(math.Max(variance, minVariance))
	z := (params.BestSoFar - params.Xi - mean) / sigma

	return -normalCDF(z)
}

// ExpectedImprovement (EI) scores a point by the expected amount by which its
// loss improves upon BestSoFar - Xi, negated so lower is better.
//
// When to use:
// - Most commonly used acquisition function
// - When the magnitude of improvement matters
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(math.Max(variance, minVariance))
	improvement := params.BestSoFar - params.Xi - mean
	z := improvement / sigma

	return -(improvement*normalCDF(z) + sigma*normalPDF(z))
}

// ThompsonSampling draws a sample from the posterior at the point.
//
// Warning:
// - Requires params.RandomState. The GP engine sets it from the proposal
//   seed, so results are reproducible per seed.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(variance)*params.RandomState.NormFloat64()
}
