package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface on a single sqlite database.
// Useful when checkpoints should live in one portable file instead of a
// directory tree.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and prepares the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			job_id     TEXT PRIMARY KEY,
			best_score REAL NOT NULL,
			generation INTEGER NOT NULL,
			objective  TEXT NOT NULL,
			dim        INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			payload    BLOB NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create checkpoint table: %w", err)
	}

	return &SQLiteStore{path: path, db: db}, nil
}

// SaveCheckpoint upserts the checkpoint row for the given job.
func (s *SQLiteStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO checkpoints (job_id, best_score, generation, objective, dim, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			best_score = excluded.best_score,
			generation = excluded.generation,
			objective  = excluded.objective,
			dim        = excluded.dim,
			created_at = excluded.created_at,
			payload    = excluded.payload
	`, jobID, checkpoint.BestScore, checkpoint.Generation,
		checkpoint.Config.Objective, checkpoint.Config.Dim,
		checkpoint.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
		payload)
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "backend", "sqlite")
	return nil
}

// LoadCheckpoint retrieves the checkpoint for the given job.
func (s *SQLiteStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM checkpoints WHERE job_id = ?`, jobID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(payload, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint %s: %w", jobID, err)
	}
	return &checkpoint, nil
}

// ListCheckpoints returns metadata for all stored checkpoints.
func (s *SQLiteStore) ListCheckpoints() ([]CheckpointInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT payload FROM checkpoints ORDER BY job_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	infos := []CheckpointInfo{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}

		var checkpoint Checkpoint
		if err := json.Unmarshal(payload, &checkpoint); err != nil {
			slog.Warn("Failed to decode checkpoint for listing", "error", err)
			continue
		}
		infos = append(infos, checkpoint.ToInfo())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoint rows: %w", err)
	}
	return infos, nil
}

// DeleteCheckpoint removes the checkpoint row for the given job.
func (s *SQLiteStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM checkpoints WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return &NotFoundError{JobID: jobID}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
