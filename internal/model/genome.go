// Package model provides a concrete evolvable genome: a fixed-length
// parameter vector varied by gaussian perturbation. It implements the
// evolve.Genome capabilities, keeping the search loop decoupled from any
// particular model representation.
package model

import (
	"fmt"
	"math/rand"

	"github.com/santolucito/neural/internal/evolve"
	"github.com/santolucito/neural/internal/vec"
)

// Default perturbation scales. Mutate takes wide steps across the whole
// vector; Refine nudges a single coordinate.
const (
	DefaultMutateScale = 1.0
	DefaultRefineScale = 0.05
)

// Genome is a parameter vector with its perturbation scales. Operators
// return new genomes; the receiver is never modified.
type Genome struct {
	Params      vec.Vector
	MutateScale float64
	RefineScale float64
}

// New returns a zero-parameter genome of the given dimension. Non-positive
// scales fall back to the defaults.
func New(dim int, mutateScale, refineScale float64) (Genome, error) {
	if dim <= 0 {
		return Genome{}, fmt.Errorf("invalid genome dimension: %d", dim)
	}
	return FromParams(make([]float64, dim), mutateScale, refineScale)
}

// FromParams builds a genome around a copy of the given parameters.
func FromParams(params []float64, mutateScale, refineScale float64) (Genome, error) {
	if len(params) == 0 {
		return Genome{}, fmt.Errorf("genome requires at least one parameter")
	}
	if mutateScale <= 0 {
		mutateScale = DefaultMutateScale
	}
	if refineScale <= 0 {
		refineScale = DefaultRefineScale
	}
	return Genome{
		Params:      vec.FromSlice(params),
		MutateScale: mutateScale,
		RefineScale: refineScale,
	}, nil
}

// Mutate perturbs every parameter with a wide gaussian step.
func (g Genome) Mutate(rng *rand.Rand) (evolve.Genome, error) {
	params := g.Params.Clone()
	for i := range params {
		params[i] += rng.NormFloat64() * g.MutateScale
	}
	return Genome{Params: params, MutateScale: g.MutateScale, RefineScale: g.RefineScale}, nil
}

// Refine perturbs a single random parameter with a narrow gaussian step.
func (g Genome) Refine(rng *rand.Rand) (evolve.Genome, error) {
	params := g.Params.Clone()
	i := rng.Intn(len(params))
	params[i] += rng.NormFloat64() * g.RefineScale
	return Genome{Params: params, MutateScale: g.MutateScale, RefineScale: g.RefineScale}, nil
}
