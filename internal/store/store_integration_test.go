//go:build integration

package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/pipeline"
	"github.com/MikeSquared-Agency/scribe/internal/window"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_RecordAndListRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	finished := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	rep := pipeline.Report{
		RunID:       uuid.New(),
		Mode:        pipeline.ModeRange,
		Channel:     "integration-" + uuid.New().String()[:8],
		ChannelName: "general",
		Window:      window.Window{Start: finished.Add(-48 * time.Hour), End: finished.Add(-24 * time.Hour)},
		Outcome:     pipeline.OutcomeDispatched,
		Fetched:     10,
		Items:       7,
		Parts:       2,
		StartedAt:   finished.Add(-3 * time.Second),
		FinishedAt:  finished,
	}

	if err := s.RecordRun(ctx, rep.Event()); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	runs, err := s.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.RunID != rep.RunID.String() || got.Channel != rep.Channel {
		t.Errorf("unexpected run %+v", got)
	}
	if got.Items != 7 || got.Parts != 2 || got.Outcome != "dispatched" {
		t.Errorf("unexpected counts %+v", got)
	}
	if got.DurationMS != 3000 {
		t.Errorf("expected duration 3000ms, got %d", got.DurationMS)
	}
}

func TestIntegration_RecorderStoresFailure(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := NewRecorder(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Now().Add(2 * time.Hour).UTC()
	rep := pipeline.Report{
		RunID:      uuid.New(),
		Mode:       pipeline.ModeRolling,
		Channel:    "c",
		Window:     window.Rolling(now, 24*time.Hour),
		Outcome:    pipeline.OutcomeFailed,
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
		Err:        os.ErrDeadlineExceeded,
	}
	rec.RunCompleted(ctx, rep)

	runs, err := s.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != rep.RunID.String() {
		t.Fatalf("expected recorded run first, got %+v", runs)
	}
	if runs[0].Error == "" {
		t.Error("expected error text to be stored")
	}
}
