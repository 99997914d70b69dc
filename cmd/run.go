package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/santolucito/neural/internal/evolve"
	"github.com/santolucito/neural/internal/model"
	"github.com/santolucito/neural/internal/objective"
	"github.com/santolucito/neural/internal/store"
	"github.com/spf13/cobra"
)

var (
	objectiveName string
	dim           int
	generations   int
	genSize       int
	refineCount   int
	parallelism   int
	seed          int64
	mutateScale   float64
	refineScale   float64
	dataDir       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run single-shot evolutionary search",
	Long: `Evolves a model against the chosen objective for a fixed number of
generations, writing the generation trace and a final checkpoint when a
data directory is given.`,
	RunE: runSearch,
}

func init() {
	runCmd.Flags().StringVar(&objectiveName, "objective", "sphere", "Objective function (sphere, rastrigin, rosenbrock)")
	runCmd.Flags().IntVar(&dim, "dim", 10, "Model parameter dimension")
	runCmd.Flags().IntVar(&generations, "generations", 100, "Number of generations to run")
	runCmd.Flags().IntVar(&genSize, "gen-size", 30, "Offspring evaluated per generation")
	runCmd.Flags().IntVar(&refineCount, "refine", 10, "Offspring produced by refinement instead of mutation")
	runCmd.Flags().IntVar(&parallelism, "parallel", 1, "Concurrent offspring evaluations")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	runCmd.Flags().Float64Var(&mutateScale, "mutate-scale", model.DefaultMutateScale, "Gaussian step size for mutation")
	runCmd.Flags().Float64Var(&refineScale, "refine-scale", model.DefaultRefineScale, "Gaussian step size for refinement")
	runCmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for trace and checkpoint output (empty = disabled)")

	rootCmd.AddCommand(runCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if generations <= 0 {
		return fmt.Errorf("generations must be positive, got %d", generations)
	}

	slog.Info("Starting search",
		"objective", objectiveName,
		"dim", dim,
		"generations", generations,
		"gen_size", genSize,
		"refine", refineCount,
	)

	objFn, err := objective.Lookup(objectiveName)
	if err != nil {
		return err
	}
	evaluate := objective.Evaluator(objFn)

	genome, err := model.New(dim, mutateScale, refineScale)
	if err != nil {
		return fmt.Errorf("failed to build seed model: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	seedScore, err := evaluate(ctx, genome)
	if err != nil {
		return fmt.Errorf("failed to score seed model: %w", err)
	}

	eng, err := evolve.New(evolve.Config{
		GenerationSize: genSize,
		RefineCount:    refineCount,
		Parallelism:    parallelism,
		Seed:           seed,
	}, evaluate, evolve.Scored{Score: seedScore, Genome: genome})
	if err != nil {
		return err
	}

	jobID := uuid.New().String()

	var trace *store.TraceWriter
	if dataDir != "" {
		trace, err = store.NewTraceWriter(dataDir, jobID, false)
		if err != nil {
			return fmt.Errorf("failed to open trace writer: %w", err)
		}
		defer trace.Close()
	}

	start := time.Now()
	best, ran, err := consumeGenerations(ctx, eng, trace, 0, generations)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if dataDir != "" {
		checkpointStore, err := store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		checkpoint := store.NewCheckpoint(jobID, best.Genome.(model.Genome).Params, best.Score, seedScore, ran, store.JobConfig{
			Objective:      objectiveName,
			Dim:            dim,
			Generations:    generations,
			GenerationSize: genSize,
			RefineCount:    refineCount,
			Parallelism:    parallelism,
			Seed:           seed,
		})
		if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		slog.Info("Checkpoint saved", "job_id", jobID)
	}

	eps := float64(ran*genSize) / elapsed.Seconds()

	slog.Info("Search complete",
		"elapsed", elapsed,
		"initial_score", seedScore,
		"best_score", best.Score,
		"improvement", best.Score-seedScore,
		"evals_per_second", fmt.Sprintf("%.0f", eps),
	)

	fmt.Printf("Ran %d generations (score: %.4f -> %.4f, %.0f evals/sec)\n",
		ran, seedScore, best.Score, eps)
	if dataDir != "" {
		fmt.Printf("Job %s written to %s\n", jobID, dataDir)
	}

	return nil
}

// consumeGenerations pulls up to budget records from the engine, writing
// each to the trace when one is given. Generation numbering in the trace
// starts after startGen so resumed runs stay consecutive. Returns the last
// record and how many generations ran.
func consumeGenerations(ctx context.Context, eng *evolve.Engine, trace *store.TraceWriter, startGen, budget int) (evolve.Record, int, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	records, errc := eng.Run(runCtx)

	var best evolve.Record
	ran := 0
	for rec := range records {
		best = rec
		ran = rec.Generation

		if trace != nil {
			entry := store.TraceEntry{
				Generation: startGen + rec.Generation,
				Score:      rec.Score,
				Timestamp:  time.Now(),
			}
			if err := trace.Write(entry); err != nil {
				slog.Warn("Failed to write trace entry", "error", err)
			}
		}

		slog.Debug("Generation complete", "generation", startGen+rec.Generation, "best_score", rec.Score)

		if rec.Generation >= budget {
			cancel()
			break
		}
	}

	// Wait for the engine to wind down, then surface a terminal failure
	// if one ended the stream early.
	for range records {
	}
	select {
	case err := <-errc:
		return evolve.Record{}, ran, err
	default:
	}

	if best.Genome == nil {
		return evolve.Record{}, ran, fmt.Errorf("search produced no generations")
	}
	return best, ran, nil
}
