package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/santolucito/neural/internal/evolve"
	"github.com/santolucito/neural/internal/model"
	"github.com/santolucito/neural/internal/objective"
	"github.com/santolucito/neural/internal/store"
	"github.com/spf13/cobra"
)

var (
	resumeDataDir     string
	resumeStoreKind   string
	resumeGenerations int
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume search from a checkpoint",
	Long: `Loads a saved checkpoint and continues the search from its best
parameters. The engine restarts with a fresh random state, so the run is
not a perfect continuation, but the best score can never regress because
the checkpointed parameters seed the new incumbent.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Checkpoint storage location")
	resumeCmd.Flags().StringVar(&resumeStoreKind, "store", "fs", "Checkpoint store backend (fs, sqlite)")
	resumeCmd.Flags().IntVar(&resumeGenerations, "generations", 100, "Additional generations to run")

	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	if resumeGenerations <= 0 {
		return fmt.Errorf("generations must be positive, got %d", resumeGenerations)
	}

	checkpointStore, err := store.NewStore(resumeStoreKind, resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.CloseIfSupported(checkpointStore)

	checkpoint, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint is not resumable: %w", err)
	}

	cfg := checkpoint.Config
	slog.Info("Resuming job",
		"job_id", jobID,
		"objective", cfg.Objective,
		"generation", checkpoint.Generation,
		"best_score", checkpoint.BestScore,
	)

	objFn, err := objective.Lookup(cfg.Objective)
	if err != nil {
		return err
	}
	evaluate := objective.Evaluator(objFn)

	genome, err := model.FromParams(checkpoint.BestParams, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to rebuild model from checkpoint: %w", err)
	}

	eng, err := evolve.New(evolve.Config{
		GenerationSize: cfg.GenerationSize,
		RefineCount:    cfg.RefineCount,
		Parallelism:    cfg.Parallelism,
		Seed:           cfg.Seed,
	}, evaluate, evolve.Scored{Score: checkpoint.BestScore, Genome: genome})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Traces live on the filesystem; the sqlite backend carries only
	// checkpoints.
	var trace *store.TraceWriter
	if resumeStoreKind == "fs" {
		trace, err = store.NewTraceWriter(resumeDataDir, jobID, true)
		if err != nil {
			slog.Warn("Failed to open trace writer", "error", err)
		} else {
			defer trace.Close()
		}
	}

	start := time.Now()
	best, ran, err := consumeGenerations(ctx, eng, trace, checkpoint.Generation, resumeGenerations)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	finalGen := checkpoint.Generation + ran
	updated := store.NewCheckpoint(jobID, best.Genome.(model.Genome).Params, best.Score, checkpoint.InitialScore, finalGen, cfg)
	if err := checkpointStore.SaveCheckpoint(jobID, updated); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Resume complete",
		"job_id", jobID,
		"elapsed", elapsed,
		"generation", finalGen,
		"best_score", best.Score,
	)

	fmt.Printf("Resumed %s for %d generations (score: %.4f -> %.4f, now at generation %d)\n",
		jobID, ran, checkpoint.BestScore, best.Score, finalGen)

	return nil
}
