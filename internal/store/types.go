package store

import (
	"time"
)

// JobConfig holds configuration for a search job (checkpoint copy).
// This avoids import cycles with the server package.
type JobConfig struct {
	Objective          string `json:"objective"`
	Dim                int    `json:"dim"`
	Generations        int    `json:"generations"` // server-side budget, 0 = run until cancelled
	GenerationSize     int    `json:"generationSize"`
	RefineCount        int    `json:"refineCount"`
	Parallelism        int    `json:"parallelism,omitempty"`
	Seed               int64  `json:"seed"`
	CheckpointInterval int    `json:"checkpointInterval,omitempty"` // checkpoint every N seconds (0 = disabled)
}

// Checkpoint represents a saved search state that can be resumed later.
// All fields are serialized to JSON for persistence.
//
// The checkpoint saves the BEST PARAMETERS found so far, not the engine's
// random-source state. Resuming re-seeds the engine with the best
// parameters as the incumbent; the run then diverges from an uninterrupted
// one, but the best score can never get worse because the incumbent is
// carried forward.
type Checkpoint struct {
	// JobID is the unique identifier for this search job.
	JobID string `json:"jobId"`

	// BestParams contains the parameter vector that produced the best
	// (highest) score so far.
	BestParams []float64 `json:"bestParams"`

	// BestScore is the score achieved by BestParams. Scores are negated
	// costs, so negative values are normal.
	BestScore float64 `json:"bestScore"`

	// InitialScore is the seed's score, kept for improvement tracking.
	InitialScore float64 `json:"initialScore"`

	// Generation is the generation counter when this checkpoint was
	// created.
	Generation int `json:"generation"`

	// Timestamp records when this checkpoint was created.
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, needed for validation during
	// resume (same objective, dimension, etc.).
	Config JobConfig `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without the full
// parameter data. Used for listing checkpoints efficiently.
type CheckpointInfo struct {
	JobID      string    `json:"jobId"`
	BestScore  float64   `json:"bestScore"`
	Generation int       `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
	Objective  string    `json:"objective"`
	Dim        int       `json:"dim"`
}

// NewCheckpoint creates a checkpoint from job state.
func NewCheckpoint(jobID string, bestParams []float64, bestScore, initialScore float64, generation int, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:        jobID,
		BestParams:   bestParams,
		BestScore:    bestScore,
		InitialScore: initialScore,
		Generation:   generation,
		Timestamp:    time.Now(),
		Config:       config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:      c.JobID,
		BestScore:  c.BestScore,
		Generation: c.Generation,
		Timestamp:  c.Timestamp,
		Objective:  c.Config.Objective,
		Dim:        c.Config.Dim,
	}
}

// Validate checks if the checkpoint has valid data.
// Returns an error if any required field is missing or invalid.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.BestParams) == 0 {
		return &ValidationError{Field: "BestParams", Reason: "cannot be empty"}
	}
	if c.Config.Dim > 0 && len(c.BestParams) != c.Config.Dim {
		return &ValidationError{Field: "BestParams", Reason: "length must match config dimension"}
	}
	if c.Generation < 0 {
		return &ValidationError{Field: "Generation", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}
