package store

import (
	"testing"
	"time"
)

func validCheckpoint() *Checkpoint {
	return NewCheckpoint(
		"job-1",
		[]float64{0.5, -1.5, 2.0},
		-2.25,
		-100.0,
		42,
		JobConfig{
			Objective:      "sphere",
			Dim:            3,
			GenerationSize: 8,
			RefineCount:    2,
			Seed:           7,
		},
	)
}

func TestCheckpoint_Validate(t *testing.T) {
	if err := validCheckpoint().Validate(); err != nil {
		t.Errorf("valid checkpoint rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Checkpoint)
	}{
		{"empty job id", func(c *Checkpoint) { c.JobID = "" }},
		{"empty params", func(c *Checkpoint) { c.BestParams = nil }},
		{"dim mismatch", func(c *Checkpoint) { c.BestParams = []float64{1} }},
		{"negative generation", func(c *Checkpoint) { c.Generation = -1 }},
		{"zero timestamp", func(c *Checkpoint) { c.Timestamp = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCheckpoint()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate should have failed")
			}
		})
	}
}

func TestCheckpoint_NegativeScoresAreValid(t *testing.T) {
	// Scores are negated costs; a strongly negative best score is normal.
	c := validCheckpoint()
	c.BestScore = -1e9
	if err := c.Validate(); err != nil {
		t.Errorf("negative score rejected: %v", err)
	}
}

func TestCheckpoint_ToInfo(t *testing.T) {
	c := validCheckpoint()
	info := c.ToInfo()

	if info.JobID != c.JobID {
		t.Errorf("JobID = %s, want %s", info.JobID, c.JobID)
	}
	if info.BestScore != c.BestScore {
		t.Errorf("BestScore = %v, want %v", info.BestScore, c.BestScore)
	}
	if info.Generation != c.Generation {
		t.Errorf("Generation = %d, want %d", info.Generation, c.Generation)
	}
	if info.Objective != "sphere" || info.Dim != 3 {
		t.Errorf("config metadata = %s/%d, want sphere/3", info.Objective, info.Dim)
	}
}
