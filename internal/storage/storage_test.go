package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var base = time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

func run(n int) RunSummary {
	return RunSummary{
		ID:         fmt.Sprintf("run-%d", n),
		StartedAt:  base.Add(time.Duration(n) * time.Hour),
		FinishedAt: base.Add(time.Duration(n)*time.Hour + time.Minute),
		Done:       n,
		Slots: []SlotSummary{
			{ID: "nat_1", Name: "National 1", Category: "bangladesh_top_stories", Status: "Done", ImageURL: "https://img/1"},
		},
	}
}

// exerciseStore runs the same behaviour checks against any Store.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	for _, n := range []int{1, 3, 2, 4} {
		if err := s.Save(ctx, run(n)); err != nil {
			t.Fatalf("Save(%d): %v", n, err)
		}
	}

	runs, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	// limit is 3, so run-1 was pruned
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	for i, want := range []string{"run-4", "run-3", "run-2"} {
		if runs[i].ID != want {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, want)
		}
	}
	if runs[0].Slots[0].ImageURL != "https://img/1" {
		t.Errorf("slot summary lost: %+v", runs[0].Slots)
	}

	runs, err = s.List(ctx, 1)
	if err != nil || len(runs) != 1 || runs[0].ID != "run-4" {
		t.Fatalf("List(1) = %v, %v", runs, err)
	}

	updated := run(3)
	updated.FatalError = "boom"
	if err := s.Save(ctx, updated); err != nil {
		t.Fatalf("Save update: %v", err)
	}
	got, err := s.Get(ctx, "run-3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FatalError != "boom" {
		t.Errorf("update not applied: %+v", got)
	}
	if !got.StartedAt.Equal(run(3).StartedAt) {
		t.Errorf("StartedAt = %v", got.StartedAt)
	}

	if _, err := s.Get(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for pruned run, got %v", err)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "runs.json")
	s := NewFileStore(path, 3)
	if err := s.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	exerciseStore(t, s)

	// a fresh store sees what was written
	reloaded := NewFileStore(path, 3)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	runs, _ := reloaded.List(context.Background(), 0)
	if len(runs) != 3 || runs[0].ID != "run-4" {
		t.Errorf("reloaded runs = %+v", runs)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewFileStore(path, 3).Load(); err == nil {
		t.Fatal("expected error for corrupt history file")
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"), 3)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn, 3)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() {
		s.db.Exec(`DROP TABLE run_history`)
		s.Close()
	})
	if _, err := s.db.ExecContext(ctx, `DELETE FROM run_history`); err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{postgres: true}
	if got := pg.rebind("SELECT ? , ?"); got != "SELECT $1 , $2" {
		t.Errorf("rebind = %q", got)
	}
	lite := &SQLStore{}
	if got := lite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), "redis", "", "", 0); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
