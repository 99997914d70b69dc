package evolve

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"
)

// stubGenome is a test genome whose operators are injectable.
type stubGenome struct {
	id       string
	mutateFn func(rng *rand.Rand) (Genome, error)
	refineFn func(rng *rand.Rand) (Genome, error)
}

func (s *stubGenome) Mutate(rng *rand.Rand) (Genome, error) {
	if s.mutateFn == nil {
		return s, nil
	}
	return s.mutateFn(rng)
}

func (s *stubGenome) Refine(rng *rand.Rand) (Genome, error) {
	if s.refineFn == nil {
		return s, nil
	}
	return s.refineFn(rng)
}

// collect pulls n records from the stream, failing the test on timeout.
func collect(t *testing.T, records <-chan Record, n int) []Record {
	t.Helper()

	out := make([]Record, 0, n)
	for len(out) < n {
		select {
		case rec, ok := <-records:
			if !ok {
				t.Fatalf("record channel closed after %d records, want %d", len(out), n)
			}
			out = append(out, rec)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for record %d", len(out)+1)
		}
	}
	return out
}

func TestNew_ConfigRejection(t *testing.T) {
	evalCalls := 0
	evaluate := func(ctx context.Context, g Genome) (float64, error) {
		evalCalls++
		return 0, nil
	}
	seed := Scored{Score: 0, Genome: &stubGenome{id: "seed"}}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"refine exceeds generation", Config{GenerationSize: 2, RefineCount: 5}},
		{"negative generation size", Config{GenerationSize: -1}},
		{"negative refine count", Config{GenerationSize: 3, RefineCount: -1}},
		{"negative parallelism", Config{GenerationSize: 3, Parallelism: -2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, evaluate, seed)
			if err == nil {
				t.Fatal("New should reject invalid config")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error should be *ConfigError, got %T", err)
			}
		})
	}

	if evalCalls != 0 {
		t.Errorf("evaluator called %d times during config rejection, want 0", evalCalls)
	}
}

func TestNew_NilEvaluatorAndSeed(t *testing.T) {
	seed := Scored{Genome: &stubGenome{}}

	if _, err := New(Config{}, nil, seed); err == nil {
		t.Error("New should reject a nil evaluator")
	}

	evaluate := func(ctx context.Context, g Genome) (float64, error) { return 0, nil }
	if _, err := New(Config{}, evaluate, Scored{}); err == nil {
		t.Error("New should reject a nil seed genome")
	}
}

func TestRun_EndToEnd(t *testing.T) {
	// Seed A scores 0; Mutate(A) deterministically yields B scoring 1.
	// The first record must carry B, and the second generation must fork
	// from B, not A.
	var mu sync.Mutex
	mutatedFrom := []string{}

	var genomeA, genomeB *stubGenome
	genomeB = &stubGenome{id: "B"}
	genomeB.mutateFn = func(rng *rand.Rand) (Genome, error) {
		mu.Lock()
		mutatedFrom = append(mutatedFrom, "B")
		mu.Unlock()
		return genomeB, nil
	}
	genomeA = &stubGenome{
		id: "A",
		mutateFn: func(rng *rand.Rand) (Genome, error) {
			mu.Lock()
			mutatedFrom = append(mutatedFrom, "A")
			mu.Unlock()
			return genomeB, nil
		},
	}

	evaluate := func(ctx context.Context, g Genome) (float64, error) {
		if g.(*stubGenome).id == "B" {
			return 1.0, nil
		}
		return 0.0, nil
	}

	eng, err := New(Config{GenerationSize: 1}, evaluate, Scored{Score: 0.0, Genome: genomeA})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, _ := eng.Run(ctx)
	recs := collect(t, records, 2)

	if recs[0].Score != 1.0 {
		t.Errorf("first record score = %v, want 1.0", recs[0].Score)
	}
	if recs[0].Genome != Genome(genomeB) {
		t.Error("first record should carry genome B")
	}
	if recs[0].Generation != 1 || recs[1].Generation != 2 {
		t.Errorf("generation counters = %d, %d, want 1, 2", recs[0].Generation, recs[1].Generation)
	}
	if recs[0].StepSize != 0 {
		t.Errorf("step size = %v, want placeholder 0", recs[0].StepSize)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(mutatedFrom) < 2 || mutatedFrom[0] != "A" || mutatedFrom[1] != "B" {
		t.Errorf("mutation parents = %v, want [A B ...]", mutatedFrom)
	}
}

func TestRun_MonotonicNonRegression(t *testing.T) {
	// Scores are drawn noisily; the emitted sequence must never decrease.
	scoreRng := rand.New(rand.NewSource(7))
	var mu sync.Mutex

	child := &stubGenome{id: "child"}
	child.mutateFn = func(rng *rand.Rand) (Genome, error) { return child, nil }
	child.refineFn = func(rng *rand.Rand) (Genome, error) { return child, nil }

	evaluate := func(ctx context.Context, g Genome) (float64, error) {
		mu.Lock()
		defer mu.Unlock()
		return scoreRng.NormFloat64(), nil
	}

	eng, err := New(
		Config{GenerationSize: 4, RefineCount: 2, Seed: 1},
		evaluate,
		Scored{Score: -10, Genome: child},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, _ := eng.Run(ctx)
	recs := collect(t, records, 50)

	prev := recs[0].Score
	for i, rec := range recs[1:] {
		if rec.Score < prev {
			t.Fatalf("score regressed at record %d: %v -> %v", i+1, prev, rec.Score)
		}
		prev = rec.Score
	}
}

func TestRun_TieBreakKeepsIncumbent(t *testing.T) {
	// Every offspring ties the incumbent's score; the incumbent identity
	// must survive every generation.
	challenger := &stubGenome{id: "challenger"}
	seed := &stubGenome{
		id:       "seed",
		mutateFn: func(rng *rand.Rand) (Genome, error) { return challenger, nil },
		refineFn: func(rng *rand.Rand) (Genome, error) { return challenger, nil },
	}

	evaluate := func(ctx context.Context, g Genome) (float64, error) {
		return 0.5, nil
	}

	eng, err := New(Config{GenerationSize: 3, RefineCount: 1}, evaluate, Scored{Score: 0.5, Genome: seed})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, _ := eng.Run(ctx)
	for i, rec := range collect(t, records, 5) {
		if rec.Genome != Genome(seed) {
			t.Fatalf("record %d replaced the incumbent on a tied score", i+1)
		}
	}
}

func TestRun_PopulationSizing(t *testing.T) {
	// Exactly G-S mutations, S refinements, and G evaluations per
	// generation; the incumbent's score is carried over, never re-scored.
	// A planted failure on generation 5's first evaluation terminates the
	// stream at a known point so the counts are exact.
	var mu sync.Mutex
	var mutateCalls, refineCalls, evalCalls int

	seed := &stubGenome{id: "seed"}
	seed.mutateFn = func(rng *rand.Rand) (Genome, error) {
		mu.Lock()
		mutateCalls++
		mu.Unlock()
		return seed, nil
	}
	seed.refineFn = func(rng *rand.Rand) (Genome, error) {
		mu.Lock()
		refineCalls++
		mu.Unlock()
		return seed, nil
	}

	boom := errors.New("stop")
	evaluate := func(ctx context.Context, g Genome) (float64, error) {
		mu.Lock()
		defer mu.Unlock()
		evalCalls++
		if evalCalls > 20 { // 4 generations * G evaluations
			return 0, boom
		}
		return 0, nil
	}

	eng, err := New(Config{GenerationSize: 5, RefineCount: 2}, evaluate, Scored{Score: 1, Genome: seed})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	records, errc := eng.Run(context.Background())
	collect(t, records, 4)

	select {
	case err := <-errc:
		if !errors.Is(err, boom) {
			t.Fatalf("terminal error = %v, want wrapped %v", err, boom)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal error")
	}

	mu.Lock()
	defer mu.Unlock()
	// Four complete generations plus generation 5's offspring, whose
	// first evaluation failed.
	if mutateCalls != 3*5 {
		t.Errorf("mutate calls = %d, want %d", mutateCalls, 3*5)
	}
	if refineCalls != 2*5 {
		t.Errorf("refine calls = %d, want %d", refineCalls, 2*5)
	}
	if evalCalls != 21 {
		t.Errorf("evaluate calls = %d, want 21 (incumbent score is cached)", evalCalls)
	}
}

func TestRun_ZeroGenerationSize(t *testing.T) {
	seed := &stubGenome{id: "seed"}
	evaluate := func(ctx context.Context, g Genome) (float64, error) {
		t.Error("evaluator should never run with GenerationSize 0")
		return 0, nil
	}

	eng, err := New(Config{GenerationSize: 0}, evaluate, Scored{Score: 2.5, Genome: seed})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, _ := eng.Run(ctx)
	for i, rec := range collect(t, records, 3) {
		if rec.Genome != Genome(seed) {
			t.Fatalf("record %d genome differs from seed", i+1)
		}
		if rec.Score != 2.5 {
			t.Fatalf("record %d score = %v, want 2.5", i+1, rec.Score)
		}
	}
}

func TestRun_EvaluatorFailureIsFatal(t *testing.T) {
	seed := &stubGenome{id: "seed"}
	boom := errors.New("forward pass failed")

	var mu sync.Mutex
	evalCalls := 0
	evaluate := func(ctx context.Context, g Genome) (float64, error) {
		mu.Lock()
		defer mu.Unlock()
		evalCalls++
		if evalCalls == 2 {
			return 0, boom
		}
		return 0, nil
	}

	eng, err := New(Config{GenerationSize: 3}, evaluate, Scored{Score: 0, Genome: seed})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	records, errc := eng.Run(context.Background())

	if _, ok := <-records; ok {
		t.Error("no record should be emitted for a failed generation")
	}

	select {
	case err := <-errc:
		if !errors.Is(err, boom) {
			t.Errorf("terminal error = %v, want wrapped %v", err, boom)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal error")
	}
}

func TestRun_OperatorFailureIsFatal(t *testing.T) {
	boom := errors.New("mutation table corrupt")
	seed := &stubGenome{
		id:       "seed",
		mutateFn: func(rng *rand.Rand) (Genome, error) { return nil, boom },
	}
	evaluate := func(ctx context.Context, g Genome) (float64, error) { return 0, nil }

	eng, err := New(Config{GenerationSize: 2}, evaluate, Scored{Score: 0, Genome: seed})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	records, errc := eng.Run(context.Background())

	if _, ok := <-records; ok {
		t.Error("no record should be emitted for a failed generation")
	}
	select {
	case err := <-errc:
		if !errors.Is(err, boom) {
			t.Errorf("terminal error = %v, want wrapped %v", err, boom)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal error")
	}
}

func TestRun_CancelStopsStream(t *testing.T) {
	seed := &stubGenome{id: "seed"}
	evaluate := func(ctx context.Context, g Genome) (float64, error) { return 0, nil }

	eng, err := New(Config{GenerationSize: 1}, evaluate, Scored{Score: 0, Genome: seed})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	records, errc := eng.Run(ctx)

	collect(t, records, 2)
	cancel()

	// Drain: the channel must close without a terminal error.
	for {
		select {
		case _, ok := <-records:
			if !ok {
				select {
				case err := <-errc:
					t.Fatalf("cancellation produced terminal error: %v", err)
				default:
				}
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatal("record channel did not close after cancel")
		}
	}
}

func TestRun_ParallelWinnerIsDeterministic(t *testing.T) {
	// Offspring scores are a pure function of genome identity; with four
	// workers racing, the emitted winner must match the sequential run.
	run := func(parallelism int) []float64 {
		counter := 0
		var mu sync.Mutex

		var seed *stubGenome
		seed = &stubGenome{id: "seed"}
		seed.mutateFn = func(rng *rand.Rand) (Genome, error) {
			mu.Lock()
			counter++
			id := counter
			mu.Unlock()
			g := &stubGenome{id: fmt.Sprintf("child-%d", id)}
			g.mutateFn = seed.mutateFn
			return g, nil
		}

		evaluate := func(ctx context.Context, g Genome) (float64, error) {
			// Stable per-genome score derived from the creation order.
			var n int
			fmt.Sscanf(g.(*stubGenome).id, "child-%d", &n)
			return float64(n%7) + float64(n)*0.001, nil
		}

		eng, err := New(
			Config{GenerationSize: 8, Parallelism: parallelism, Seed: 3},
			evaluate,
			Scored{Score: -1, Genome: seed},
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		records, _ := eng.Run(ctx)
		recs := collect(t, records, 10)

		scores := make([]float64, len(recs))
		for i, rec := range recs {
			scores[i] = rec.Score
		}
		return scores
	}

	sequential := run(1)
	parallel := run(4)

	for i := range sequential {
		if sequential[i] != parallel[i] {
			t.Fatalf("winner diverged at generation %d: sequential %v, parallel %v",
				i+1, sequential[i], parallel[i])
		}
	}
}
