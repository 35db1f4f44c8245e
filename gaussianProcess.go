package horunner

import (
	"math"
)

//////
// Const, vars, types.
//////

// defaultKernelWidth is the RBF width in the unit hypercube.
const defaultKernelWidth = 0.2

// gaussianProcess is a kernel regression model over the unit hypercube. It
// predicts the loss of untested candidates from the ok trials of a history
// snapshot.
//
// Fields:
// - X: Observed input points (each point is a slice of float64 in [0, 1])
// - Y: Standardized losses observed at each input point
// - sigma: Kernel width parameter controlling the smoothness of interpolation
//
// Thread safety:
// - Not safe for concurrent use. The GP engine builds a fresh model on every
//   Suggest call, so a model never outlives the goroutine that built it.
//
// Memory usage:
// - O(n) memory where n is number of observations.
type gaussianProcess struct {
	// X stores the input points (candidate vectors).
	X [][]float64

	// Y stores the standardized losses at each point in X.
	Y []float64

	// sigma is the kernel width parameter.
	// Larger values = smoother interpolation
	// Smaller values = more local influence
	sigma float64

	// yMean and yStd undo the standardization of Y.
	yMean, yStd float64
}

//////
// Methods.
//////

// RBFKernel implements the Radial Basis Function (also known as Gaussian) kernel.
//
// Mathematical formula:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * sigma^2))
//
// Important notes:
// - Panics if input vectors have different lengths
// - Returns 1.0 for identical points
// - Returns values close to 0.0 for distant points
func (gp *gaussianProcess) RBFKernel(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	// Calculate squared Euclidean distance
	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]

		sum += diff * diff
	}

	return math.Exp(-sum / (2 * gp.sigma * gp.sigma))
}

// Predict estimates the expected loss and uncertainty at a given point based
// on previously observed data points.
//
// Returns:
// - mean: Expected loss at the input point, in loss units
// - variance: Uncertainty in the prediction, in squared loss units
//
// Mathematical details:
// - Mean is a kernel-weighted average of observations, shrunk towards the
//   mean loss when x is far from every observation
// - Variance is yStd^2 / (1 + total kernel weight): it tends to the prior
//   variance far from data and shrinks near dense observations
// - Returns (0, 1) if no observations exist
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	if len(gp.X) == 0 {
		return 0, 1
	}

	var weight, sum float64

	for i := range gp.X {
		k := gp.RBFKernel(x, gp.X[i])

		weight += k
		sum += k * gp.Y[i]
	}

	// One unit of prior weight at standardized mean 0.
	mean = gp.yMean + gp.yStd*sum/(weight+1)
	variance = gp.yStd * gp.yStd / (weight + 1)

	return mean, variance
}

// Update adds a new observation point to the model and re-standardizes Y.
//
// Important notes:
// - Creates a deep copy of input slice x to prevent external modifications
// - O(n) per call because Y is re-standardized; the engine builds its
//   model once per Suggest so this is not on a hot path.
func (gp *gaussianProcess) Update(x []float64, y float64) {
	newX := make([]float64, len(x))
	copy(newX, x)

	raw := gp.raw()
	raw = append(raw, y)

	gp.X = append(gp.X, newX)
	gp.standardize(raw)
}

// SetSigma updates the kernel width parameter (sigma). No validation of the
// value is done; callers keep it positive.
func (gp *gaussianProcess) SetSigma(sigma float64) {
	gp.sigma = sigma
}

// GetSigma returns the current kernel width parameter.
func (gp *gaussianProcess) GetSigma() float64 {
	return gp.sigma
}

// raw returns the observations in loss units.
func (gp *gaussianProcess) raw() []float64 {
	out := make([]float64, len(gp.Y))

	for i, y := range gp.Y {
		out[i] = gp.yMean + gp.yStd*y
	}

	return out
}

func (gp *gaussianProcess) standardize(raw []float64) {
	var sum float64
	for _, v := range raw {
		sum += v
	}

	mean := sum / float64(len(raw))

	var ss float64
	for _, v := range raw {
		ss += (v - mean) * (v - mean)
	}

	std := math.Sqrt(ss / float64(len(raw)))
	if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		std = 1
	}

	gp.yMean, gp.yStd = mean, std
	gp.Y = make([]float64, len(raw))

	for i, v := range raw {
		gp.Y[i] = (v - mean) / std
	}
}

//////
// Factory.
//////

// newGaussianProcess creates and initializes a new Gaussian Process model
// with default parameters suitable for the unit hypercube.
func newGaussianProcess() *gaussianProcess {
	return &gaussianProcess{
		sigma: defaultKernelWidth,
		yStd:  1,
	}
}
