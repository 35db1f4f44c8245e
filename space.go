package horunner

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/exp/constraints"
)

//////
// Const, vars, types.
//////

// ErrInvalidSpace is wrapped by every search space validation error.
var ErrInvalidSpace = errors.New("invalid search space")

// DimensionKind is the distribution a dimension is sampled from.
type DimensionKind string

const (
	// KindUniform samples a float uniformly in [Min, Max].
	KindUniform DimensionKind = "uniform"

	// KindLogUniform samples a float whose logarithm is uniform in
	// [log(Min), log(Max)]. Min must be positive.
	KindLogUniform DimensionKind = "loguniform"

	// KindInt samples an integer uniformly in [Min, Max].
	KindInt DimensionKind = "int"

	// KindConst always yields Value.
	KindConst DimensionKind = "const"
)

// Dimension is one named hyperparameter of the search space.
type Dimension struct {
	Name  string        `yaml:"name"`
	Kind  DimensionKind `yaml:"kind"`
	Min   float64       `yaml:"min,omitempty"`
	Max   float64       `yaml:"max,omitempty"`
	Value float64       `yaml:"value,omitempty"`
}

// Space is an ordered set of dimensions.
type Space struct {
	Dimensions []Dimension `yaml:"dimensions"`
}

//////
// Dimension constructors.
//////

// Uniform builds a float dimension from a ParameterRange.
//
// Example:
//
//	learningRate := Uniform("lr", ParameterRange[float64]{Min: 0.0001, Max: 0.1})
func Uniform[T constraints.Float](name string, r ParameterRange[T]) Dimension {
	return Dimension{Name: name, Kind: KindUniform, Min: float64(r.Min), Max: float64(r.Max)}
}

// LogUniform builds a log-scaled float dimension from a ParameterRange.
func LogUniform[T constraints.Float](name string, r ParameterRange[T]) Dimension {
	return Dimension{Name: name, Kind: KindLogUniform, Min: float64(r.Min), Max: float64(r.Max)}
}

// IntRange builds an integer dimension from a ParameterRange.
//
// Example:
//
//	workers := IntRange("workers", ParameterRange[int]{Min: 1, Max: 32})
func IntRange[T constraints.Integer](name string, r ParameterRange[T]) Dimension {
	return Dimension{Name: name, Kind: KindInt, Min: float64(r.Min), Max: float64(r.Max)}
}

// Const builds a fixed dimension.
func Const[T constraints.Integer | constraints.Float](name string, v T) Dimension {
	return Dimension{Name: name, Kind: KindConst, Value: float64(v)}
}

//////
// Methods.
//////

// Validate checks names are unique and ranges are well formed.
func (s *Space) Validate() error {
	if s == nil || len(s.Dimensions) == 0 {
		return fmt.Errorf("%w: no dimensions", ErrInvalidSpace)
	}

	seen := make(map[string]bool, len(s.Dimensions))

	for _, d := range s.Dimensions {
		if d.Name == "" {
			return fmt.Errorf("%w: dimension without a name", ErrInvalidSpace)
		}

		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate dimension %q", ErrInvalidSpace, d.Name)
		}

		seen[d.Name] = true

		switch d.Kind {
		case KindConst:
			continue
		case KindUniform, KindInt:
		case KindLogUniform:
			if d.Min <= 0 {
				return fmt.Errorf("%w: %q: loguniform min must be positive", ErrInvalidSpace, d.Name)
			}
		default:
			return fmt.Errorf("%w: %q: unknown kind %q", ErrInvalidSpace, d.Name, d.Kind)
		}

		if d.Min > d.Max {
			return fmt.Errorf("%w: %q: min %v > max %v", ErrInvalidSpace, d.Name, d.Min, d.Max)
		}
	}

	return nil
}

// Sample draws a random candidate.
func (s *Space) Sample(rng *rand.Rand) Params {
	p := make(Params, len(s.Dimensions))

	for _, d := range s.Dimensions {
		p[d.Name] = d.fromUnit(rng.Float64())
	}

	return p
}

// Contains reports whether p has a value within bounds for every dimension.
func (s *Space) Contains(p Params) bool {
	for _, d := range s.Dimensions {
		v, ok := p[d.Name]
		if !ok {
			return false
		}

		switch d.Kind {
		case KindConst:
			if v != d.Value {
				return false
			}
		case KindInt:
			if v != math.Round(v) || v < d.Min || v > d.Max {
				return false
			}
		default:
			if v < d.Min || v > d.Max {
				return false
			}
		}
	}

	return true
}

// toUnit maps a value of d into [0, 1]. Const dimensions map to 0.
func (d Dimension) toUnit(v float64) float64 {
	switch d.Kind {
	case KindConst:
		return 0
	case KindLogUniform:
		lo, hi := math.Log(d.Min), math.Log(d.Max)
		if hi == lo {
			return 0
		}

		return clamp01((math.Log(v) - lo) / (hi - lo))
	case KindInt:
		// Integers occupy [Min-0.5, Max+0.5] so the end points get a full bin.
		lo, hi := d.Min-0.5, d.Max+0.5

		return clamp01((v - lo) / (hi - lo))
	default:
		if d.Max == d.Min {
			return 0
		}

		return clamp01((v - d.Min) / (d.Max - d.Min))
	}
}

// fromUnit maps u in [0, 1] back into the domain of d.
func (d Dimension) fromUnit(u float64) float64 {
	u = clamp01(u)

	switch d.Kind {
	case KindConst:
		return d.Value
	case KindLogUniform:
		lo, hi := math.Log(d.Min), math.Log(d.Max)

		return math.Exp(lo + u*(hi-lo))
	case KindInt:
		lo, hi := d.Min-0.5, d.Max+0.5
		v := math.Round(lo + u*(hi-lo))

		return math.Max(d.Min, math.Min(d.Max, v))
	default:
		return d.Min + u*(d.Max-d.Min)
	}
}

//////
// Factory.
//////

// NewSpace creates a Space from dimensions.
func NewSpace(dims ...Dimension) *Space {
	return &Space{Dimensions: dims}
}
