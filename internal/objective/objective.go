// Package objective provides the built-in evaluation functions used by the
// CLI and server. Each objective is a cost over a parameter slice (lower is
// better); Evaluator flips the sign so the search engine's higher-is-better
// convention holds.
package objective

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/santolucito/neural/internal/evolve"
	"github.com/santolucito/neural/internal/model"
)

// Func computes a cost for a parameter slice. Lower is better.
type Func func(params []float64) float64

// Sphere is the sum of squares. Global minimum 0 at the origin.
func Sphere(params []float64) float64 {
	var sum float64
	for _, x := range params {
		sum += x * x
	}
	return sum
}

// Rastrigin is a highly multimodal benchmark. Global minimum 0 at the
// origin.
func Rastrigin(params []float64) float64 {
	sum := 10 * float64(len(params))
	for _, x := range params {
		sum += x*x - 10*math.Cos(2*math.Pi*x)
	}
	return sum
}

// Rosenbrock is the classic banana valley. Global minimum 0 at (1, ..., 1).
func Rosenbrock(params []float64) float64 {
	var sum float64
	for i := 0; i+1 < len(params); i++ {
		a := params[i+1] - params[i]*params[i]
		b := 1 - params[i]
		sum += 100*a*a + b*b
	}
	return sum
}

var registry = map[string]Func{
	"sphere":     Sphere,
	"rastrigin":  Rastrigin,
	"rosenbrock": Rosenbrock,
}

// Lookup returns the named objective.
func Lookup(name string) (Func, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown objective: %s (available: %v)", name, Names())
	}
	return f, nil
}

// Names lists the available objectives in stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluator adapts a cost function to the engine's evaluator contract.
// The score is the negated cost, so improving candidates have increasing
// scores.
func Evaluator(f Func) evolve.Evaluator {
	return func(ctx context.Context, g evolve.Genome) (float64, error) {
		m, ok := g.(model.Genome)
		if !ok {
			return 0, fmt.Errorf("objective requires a model genome, got %T", g)
		}
		return -f(m.Params), nil
	}
}
