// Package objective holds the built-in objective functions of the CLI. They
// are demo and smoke-test workloads; real users supply their own evaluator
// or worker command.
package objective

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/thalesfsp/horunner"
)

// Objective is a named evaluator with the space it is meant to be searched
// over.
type Objective struct {
	Name        string
	Description string
	Space       *horunner.Space
	Evaluator   horunner.Evaluator
}

var registry = map[string]Objective{}

func register(o Objective) {
	registry[o.Name] = o
}

// Lookup returns the objective called name.
func Lookup(name string) (Objective, error) {
	o, ok := registry[name]
	if !ok {
		return Objective{}, fmt.Errorf("unknown objective %q (known: %v)", name, Names())
	}

	return o, nil
}

// Names lists the registered objectives, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

func init() {
	register(Objective{
		Name:        "quadratic",
		Description: "(x^2 - target)^2, minimized at x = ±sqrt(target)",
		Space: horunner.NewSpace(
			horunner.Uniform("x", horunner.ParameterRange[float64]{Min: -3, Max: 3}),
			horunner.Const("target", 4),
		),
		Evaluator: horunner.EvaluatorFunc(quadratic),
	})

	register(Objective{
		Name:        "sphere",
		Description: "sum of squares of every parameter",
		Space: horunner.NewSpace(
			horunner.Uniform("x", horunner.ParameterRange[float64]{Min: -5, Max: 5}),
			horunner.Uniform("y", horunner.ParameterRange[float64]{Min: -5, Max: 5}),
		),
		Evaluator: horunner.EvaluatorFunc(sphere),
	})

	register(Objective{
		Name:        "rosenbrock",
		Description: "(1 - x)^2 + 100 (y - x^2)^2, minimized at (1, 1)",
		Space: horunner.NewSpace(
			horunner.Uniform("x", horunner.ParameterRange[float64]{Min: -2, Max: 2}),
			horunner.Uniform("y", horunner.ParameterRange[float64]{Min: -1, Max: 3}),
		),
		Evaluator: horunner.EvaluatorFunc(rosenbrock),
	})

	register(Objective{
		Name:        "flaky",
		Description: "sphere over an integer grid that fails for x < 0 and sleeps 'delay_ms'",
		Space: horunner.NewSpace(
			horunner.IntRange("x", horunner.ParameterRange[int]{Min: -10, Max: 10}),
			horunner.Uniform("y", horunner.ParameterRange[float64]{Min: -1, Max: 1}),
			horunner.Const("delay_ms", 10),
		),
		Evaluator: horunner.EvaluatorFunc(flaky),
	})
}

func quadratic(_ context.Context, p horunner.Params) (horunner.Result, error) {
	y := p["x"] * p["x"]
	d := y - p["target"]

	return horunner.OK(d * d), nil
}

func sphere(_ context.Context, p horunner.Params) (horunner.Result, error) {
	var sum float64
	for _, v := range p {
		sum += v * v
	}

	return horunner.OK(sum), nil
}

func rosenbrock(_ context.Context, p horunner.Params) (horunner.Result, error) {
	x, y := p["x"], p["y"]

	return horunner.OK(math.Pow(1-x, 2) + 100*math.Pow(y-x*x, 2)), nil
}

func flaky(ctx context.Context, p horunner.Params) (horunner.Result, error) {
	if d := p["delay_ms"]; d > 0 {
		select {
		case <-ctx.Done():
			return horunner.Result{}, ctx.Err()
		case <-time.After(time.Duration(d) * time.Millisecond):
		}
	}

	if p["x"] < 0 {
		return horunner.Fail(), nil
	}

	return horunner.OK(p["x"]*p["x"] + p["y"]*p["y"]), nil
}
