package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/scribe/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           UUID PRIMARY KEY,
	mode         TEXT NOT NULL,
	channel      TEXT NOT NULL,
	channel_name TEXT NOT NULL DEFAULT '',
	window_start TIMESTAMPTZ NOT NULL,
	window_end   TIMESTAMPTZ NOT NULL,
	outcome      TEXT NOT NULL,
	fetched      INT NOT NULL DEFAULT 0,
	items        INT NOT NULL DEFAULT 0,
	parts        INT NOT NULL DEFAULT 0,
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_finished_at_idx ON runs (finished_at DESC);
`

// EnsureSchema creates the runs table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordRun inserts one finished run.
func (s *Store) RecordRun(ctx context.Context, ev pipeline.Event) error {
	id, err := uuid.Parse(ev.RunID)
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	var errText *string
	if ev.Error != "" {
		errText = &ev.Error
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (id, mode, channel, channel_name, window_start, window_end, outcome,
			fetched, items, parts, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, ev.Mode, ev.Channel, ev.ChannelName, ev.WindowStart, ev.WindowEnd, ev.Outcome,
		ev.Fetched, ev.Items, ev.Parts, errText, ev.StartedAt, ev.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]pipeline.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mode, channel, channel_name, window_start, window_end, outcome,
			fetched, items, parts, COALESCE(error, ''), started_at, finished_at
		FROM runs
		ORDER BY finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pipeline.Event, error) {
		var ev pipeline.Event
		var id uuid.UUID
		err := row.Scan(&id, &ev.Mode, &ev.Channel, &ev.ChannelName, &ev.WindowStart, &ev.WindowEnd,
			&ev.Outcome, &ev.Fetched, &ev.Items, &ev.Parts, &ev.Error, &ev.StartedAt, &ev.FinishedAt)
		ev.RunID = id.String()
		ev.DurationMS = ev.FinishedAt.Sub(ev.StartedAt).Milliseconds()
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	return events, nil
}

// Recorder writes every finished run to the store. It satisfies pipeline.Observer.
type Recorder struct {
	store   *Store
	logger  *slog.Logger
	timeout time.Duration
}

func NewRecorder(s *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: s, logger: logger, timeout: 5 * time.Second}
}

func (r *Recorder) RunCompleted(ctx context.Context, rep pipeline.Report) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.RecordRun(ctx, rep.Event()); err != nil {
		r.logger.Warn("run not recorded", "run_id", rep.RunID.String(), "error", err)
	}
}
