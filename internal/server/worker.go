package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/santolucito/neural/internal/evolve"
	"github.com/santolucito/neural/internal/model"
	"github.com/santolucito/neural/internal/objective"
	"github.com/santolucito/neural/internal/store"
)

// runJob executes a search job in the background. The job's configured
// objective is evolved from a zero (or resumed) parameter vector until the
// generation budget is reached or the job is cancelled.
//
// If checkpointStore is not nil and the job has checkpointInterval > 0,
// periodic checkpoints are saved; a final checkpoint is always saved when
// the job ends with a best result. If dataDir is non-empty, per-generation
// trace entries are appended to <dataDir>/jobs/<id>/trace.jsonl.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, dataDir, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	resuming := job.Generation > 0

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job",
		"job_id", jobID,
		"objective", job.Config.Objective,
		"dim", job.Config.Dim,
		"resuming", resuming,
	)

	objFn, err := objective.Lookup(job.Config.Objective)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	evaluate := objective.Evaluator(objFn)

	// Seed from the resumed best parameters when present, otherwise from
	// the zero vector.
	seedParams := job.BestParams
	if len(seedParams) == 0 {
		seedParams = make([]float64, job.Config.Dim)
	}
	genome, err := model.FromParams(seedParams, 0, 0)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to build seed genome: %w", err))
		return err
	}

	seedScore, err := evaluate(ctx, genome)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to score seed genome: %w", err))
		return err
	}

	jm.UpdateJob(jobID, func(j *Job) {
		j.InitialScore = seedScore
		j.BestScore = seedScore
		j.BestParams = genome.Params
	})

	eng, err := evolve.New(evolve.Config{
		GenerationSize: job.Config.GenerationSize,
		RefineCount:    job.Config.RefineCount,
		Parallelism:    job.Config.Parallelism,
		Seed:           job.Config.Seed,
	}, evaluate, evolve.Scored{Score: seedScore, Genome: genome})
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	jm.registerCancel(jobID, cancel)
	defer jm.unregisterCancel(jobID)

	var trace *store.TraceWriter
	if dataDir != "" {
		trace, err = store.NewTraceWriter(dataDir, jobID, resuming)
		if err != nil {
			slog.Warn("Failed to open trace writer", "job_id", jobID, "error", err)
		} else {
			defer trace.Close()
		}
	}

	start := time.Now()

	// Progress monitoring goroutine broadcasts throttled SSE updates.
	progressDone := make(chan struct{})
	go monitorProgress(runCtx, jm, jobID, start, progressDone)

	// Checkpoint monitoring goroutine saves periodic checkpoints if enabled.
	checkpointDone := make(chan struct{})
	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		go monitorCheckpoints(runCtx, jm, checkpointStore, jobID, checkpointDone)
	}

	records, errc := eng.Run(runCtx)

	// The engine itself never terminates; the budget (when non-zero) is
	// enforced here by cancelling once enough generations have been
	// consumed. Generation counters continue across resumes.
	budget := job.Config.Generations
	startGen := job.Generation
	budgetReached := false

	for rec := range records {
		gen := startGen + rec.Generation
		params := rec.Genome.(model.Genome).Params

		jm.UpdateJob(jobID, func(j *Job) {
			j.Generation = gen
			j.BestScore = rec.Score
			j.BestParams = params
		})

		if trace != nil {
			entry := store.TraceEntry{Generation: gen, Score: rec.Score, Timestamp: time.Now()}
			if err := trace.Write(entry); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}

		if budget > 0 && gen >= startGen+budget {
			budgetReached = true
			cancel()
			break
		}
	}

	// Drain any record the engine finished before observing the cancel,
	// and wait for the stream to close.
	for range records {
	}

	close(progressDone)
	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		close(checkpointDone)
	}

	// A closed record channel means either cancellation or a terminal
	// failure; the error channel disambiguates.
	var runErr error
	select {
	case runErr = <-errc:
	default:
	}

	elapsed := time.Since(start)
	endTime := time.Now()

	job, _ = jm.GetJob(jobID)
	eps := evaluationsPerSecond(job, startGen, elapsed)

	var finalState JobState
	switch {
	case runErr != nil:
		markJobFailed(jm, jobID, runErr)
		finalState = StateFailed
	case budgetReached:
		jm.UpdateJob(jobID, func(j *Job) {
			j.State = StateCompleted
			j.EndTime = &endTime
		})
		finalState = StateCompleted
		slog.Info("Job completed",
			"job_id", jobID,
			"elapsed", elapsed,
			"initial_score", job.InitialScore,
			"best_score", job.BestScore,
			"generations", job.Generation,
			"evals_per_second", eps,
		)
	default:
		markJobCancelled(jm, jobID)
		finalState = StateCancelled
	}

	if trace != nil {
		if err := trace.Flush(); err != nil {
			slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
		}
	}

	// Persist the final state so completed and cancelled jobs can be
	// resumed or inspected later.
	if checkpointStore != nil && runErr == nil {
		if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
			slog.Warn("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}

	job, _ = jm.GetJob(jobID)
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:      jobID,
		State:      finalState,
		Generation: job.Generation,
		BestScore:  job.BestScore,
		EPS:        eps,
		Timestamp:  time.Now(),
	})

	return runErr
}

// evaluationsPerSecond estimates evaluator throughput for this run.
func evaluationsPerSecond(job *Job, startGen int, elapsed time.Duration) float64 {
	if job == nil || elapsed.Seconds() <= 0 {
		return 0
	}
	generations := job.Generation - startGen
	if generations < 0 {
		generations = 0
	}
	return float64(generations*job.Config.GenerationSize) / elapsed.Seconds()
}

// monitorProgress periodically broadcasts progress events while the search runs
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // throttle to 2 updates per second
	defer ticker.Stop()

	startGen := 0
	if job, ok := jm.GetJob(jobID); ok {
		startGen = job.Generation
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:      jobID,
				State:      job.State,
				Generation: job.Generation,
				BestScore:  job.BestScore,
				EPS:        evaluationsPerSecond(job, startGen, time.Since(startTime)),
				Timestamp:  time.Now(),
			})
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}

// monitorCheckpoints periodically saves checkpoints while the search runs
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	interval := time.Duration(job.Config.CheckpointInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint saves a checkpoint for the given job
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Skip if no best params yet
	if len(job.BestParams) == 0 {
		slog.Debug("Skipping checkpoint, no best params yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(
		jobID,
		job.BestParams,
		job.BestScore,
		job.InitialScore,
		job.Generation,
		job.Config,
	)

	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"generation", job.Generation,
		"best_score", job.BestScore,
	)
	return nil
}
