package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SaveLoadRoundtrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	want := validCheckpoint()
	if err := s.SaveCheckpoint(want.JobID, want); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	got, err := s.LoadCheckpoint(want.JobID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if got.JobID != want.JobID || got.BestScore != want.BestScore || got.Generation != want.Generation {
		t.Errorf("loaded checkpoint differs: got %+v, want %+v", got, want)
	}
	for i, p := range got.BestParams {
		if p != want.BestParams[i] {
			t.Errorf("param %d = %v, want %v", i, p, want.BestParams[i])
		}
	}
}

func TestSQLiteStore_UpsertOverwrites(t *testing.T) {
	s := newTestSQLiteStore(t)

	c := validCheckpoint()
	if err := s.SaveCheckpoint(c.JobID, c); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	c.BestScore = -0.25
	c.Generation = 1000
	if err := s.SaveCheckpoint(c.JobID, c); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := s.LoadCheckpoint(c.JobID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if got.BestScore != -0.25 || got.Generation != 1000 {
		t.Errorf("got %v/%d, want upserted -0.25/1000", got.BestScore, got.Generation)
	}

	infos, err := s.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != 1 {
		t.Errorf("upsert produced %d rows, want 1", len(infos))
	}
}

func TestSQLiteStore_MissingAndDelete(t *testing.T) {
	s := newTestSQLiteStore(t)

	if _, err := s.LoadCheckpoint("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load missing error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteCheckpoint("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete missing error = %v, want ErrNotFound", err)
	}

	c := validCheckpoint()
	if err := s.SaveCheckpoint(c.JobID, c); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	if err := s.DeleteCheckpoint(c.JobID); err != nil {
		t.Fatalf("DeleteCheckpoint failed: %v", err)
	}
	if _, err := s.LoadCheckpoint(c.JobID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted checkpoint still loadable, err = %v", err)
	}
}
