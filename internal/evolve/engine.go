// Package evolve implements a generational, elitist evolutionary search
// loop. Each generation forks a configurable mix of mutated and refined
// offspring from a single incumbent, scores them with a caller-supplied
// evaluator, keeps the best of {incumbent, offspring}, and emits it. The
// best-known score never regresses. The stream has no termination
// condition: it runs until the consumer cancels the context.
package evolve

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// Engine drives the generational search loop.
type Engine struct {
	cfg      Config
	evaluate Evaluator

	// incumbent is exclusively owned by the run goroutine after Run is
	// called. It is replaced wholesale at the end of each generation,
	// never mutated in place.
	incumbent Scored

	// rng is the root source; it only derives per-offspring seeds so that
	// concurrent offspring never share mutable generator state.
	rng *rand.Rand
}

// New creates an engine around an evaluator and a caller-scored seed pair.
// The seed score must be the evaluator's own output for that genome; the
// engine trusts it and never re-evaluates the incumbent.
//
// Configuration errors are reported here, before any goroutine or
// evaluation exists.
func New(cfg Config, evaluate Evaluator, seed Scored) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if evaluate == nil {
		return nil, &ConfigError{Field: "Evaluator", Reason: "cannot be nil"}
	}
	if seed.Genome == nil {
		return nil, &ConfigError{Field: "Seed", Reason: "genome cannot be nil"}
	}

	return &Engine{
		cfg:       cfg,
		evaluate:  evaluate,
		incumbent: seed,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run starts the loop and returns its output stream. The record channel is
// unbuffered: no generation begins until the previous record has been
// consumed, so backpressure is inherent. Cancelling the context stops the
// producer between generations and closes the record channel.
//
// Any failure from Mutate, Refine, or the evaluator is fatal: the record
// channel closes and exactly one error arrives on the error channel.
// Records emitted before the failure remain valid.
func (e *Engine) Run(ctx context.Context) (<-chan Record, <-chan error) {
	records := make(chan Record)
	errc := make(chan error, 1)

	go func() {
		defer close(records)

		for gen := 1; ; gen++ {
			if ctx.Err() != nil {
				return
			}

			winner, err := e.step(ctx)
			if err != nil {
				errc <- fmt.Errorf("generation %d: %w", gen, err)
				return
			}

			select {
			case records <- Record{Generation: gen, Score: winner.Score, Genome: winner.Genome}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return records, errc
}

// step runs one full generation and returns the new incumbent. The
// incumbent field is only replaced once the winner is fully computed, so a
// cancelled or failed generation never leaks a half-updated incumbent.
func (e *Engine) step(ctx context.Context) (Scored, error) {
	total := e.cfg.GenerationSize
	mutations := total - e.cfg.RefineCount

	// All offspring fork from the incumbent, never from each other.
	offspring := make([]Genome, total)
	for i := 0; i < total; i++ {
		rng := rand.New(rand.NewSource(e.rng.Int63()))

		var child Genome
		var err error
		if i < mutations {
			child, err = e.incumbent.Genome.Mutate(rng)
		} else {
			child, err = e.incumbent.Genome.Refine(rng)
		}
		if err != nil {
			return Scored{}, fmt.Errorf("produce offspring %d: %w", i, err)
		}
		if child == nil {
			return Scored{}, fmt.Errorf("produce offspring %d: operator returned nil genome", i)
		}
		offspring[i] = child
	}

	scores, err := e.scoreAll(ctx, offspring)
	if err != nil {
		return Scored{}, err
	}

	// Elitist selection with a strict comparison: ties keep the earlier
	// element, with the incumbent first in pool order. Scanning the slice
	// in construction order keeps the winner independent of evaluation
	// scheduling.
	best := e.incumbent
	for i, s := range scores {
		if s > best.Score {
			best = Scored{Score: s, Genome: offspring[i]}
		}
	}

	e.incumbent = best
	return best, nil
}

// scoreAll evaluates every offspring exactly once, in parallel when
// configured. Results land in an index-addressed slice so selection order
// is stable regardless of which evaluation finishes first.
func (e *Engine) scoreAll(ctx context.Context, offspring []Genome) ([]float64, error) {
	scores := make([]float64, len(offspring))

	if e.cfg.Parallelism < 2 || len(offspring) < 2 {
		for i, g := range offspring {
			s, err := e.evaluate(ctx, g)
			if err != nil {
				return nil, fmt.Errorf("evaluate offspring %d: %w", i, err)
			}
			scores[i] = s
		}
		return scores, nil
	}

	workers := e.cfg.Parallelism
	if workers > len(offspring) {
		workers = len(offspring)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		evalErr error
	)
	sem := make(chan struct{}, workers)

	for i := range offspring {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			failed := evalErr != nil
			mu.Unlock()
			if failed {
				return
			}

			s, err := e.evaluate(ctx, offspring[i])

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if evalErr == nil {
					evalErr = fmt.Errorf("evaluate offspring %d: %w", i, err)
				}
				return
			}
			scores[i] = s
		}(i)
	}

	wg.Wait()

	if evalErr != nil {
		return nil, evalErr
	}
	return scores, nil
}
