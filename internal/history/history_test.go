package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "orate.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func row(id string, finished time.Time) Row {
	return Row{
		ID:         id,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Input:      "essay.txt",
		OutputPath: "/tmp/essay.mp3",
		Model:      "tts-1",
		Voice:      "alloy",
		Format:     "mp3",
		Speed:      1.0,
		Chunks:     3,
		Attempts:   3,
		Bytes:      123456,
		Status:     StatusDone,
	}
}

func TestAddAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := s.Add(ctx, row(fmt.Sprintf("job-%d", i), base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d rows, want 3", len(got))
	}
	// Newest first.
	for i, want := range []string{"job-4", "job-3", "job-2"} {
		if got[i].ID != want {
			t.Errorf("row %d = %s, want %s", i, got[i].ID, want)
		}
	}
	if got[0].Chunks != 3 || got[0].Status != StatusDone || got[0].Bytes != 123456 {
		t.Errorf("row round trip mismatch: %+v", got[0])
	}
}

func TestFailedJobKeepsError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := row("job-err", time.Now())
	r.Status = StatusFailed
	r.Error = "chunk 2 failed after 3 attempt(s)"
	if err := s.Add(ctx, r); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if got[0].Status != StatusFailed || got[0].Error != r.Error {
		t.Errorf("got %+v", got[0])
	}
}

func TestRecentOnEmptyStore(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("empty store returned %d rows", len(got))
	}
}

func TestReopenKeepsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orate.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, row("job-persist", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.Recent(ctx, 10)
	if err != nil || len(got) != 1 || got[0].ID != "job-persist" {
		t.Errorf("after reopen: rows=%v err=%v", got, err)
	}
}
