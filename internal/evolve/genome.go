package evolve

import (
	"context"
	"math/rand"
)

// Genome is one trial solution subject to search. The engine never inspects
// its internals; it only asks for variants and hands it to the evaluator.
//
// Both operators must return a new value and leave the receiver untouched:
// the engine shares the incumbent genome across all offspring of a
// generation, so in-place mutation would corrupt sibling draws.
type Genome interface {
	// Mutate produces one randomized structural variant (broad exploration).
	Mutate(rng *rand.Rand) (Genome, error)

	// Refine produces one incrementally improved variant (local exploitation).
	Refine(rng *rand.Rand) (Genome, error)
}

// Evaluator scores a genome. Higher is better. It may block on external
// work (I/O, forward passes) and must be safe for concurrent calls when the
// engine is configured with Parallelism > 1.
type Evaluator func(ctx context.Context, g Genome) (float64, error)

// Scored pairs a genome with its evaluator score.
type Scored struct {
	Score  float64
	Genome Genome
}

// Record is one element of the output stream: the best result of one
// generation.
type Record struct {
	// Generation is the 1-based generation counter.
	Generation int `json:"generation"`

	// Score is the winning genome's score.
	Score float64 `json:"score"`

	// Genome is the winning genome itself.
	Genome Genome `json:"-"`

	// StepSize is a placeholder carried for downstream consumers. The
	// engine has no learning-rate concept and always emits 0 here.
	StepSize float64 `json:"stepSize"`
}
