package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MikeSquared-Agency/scribe/internal/pipeline"
)

func TestRunCompleted(t *testing.T) {
	m := New()
	start := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	m.RunCompleted(context.Background(), pipeline.Report{
		Mode: pipeline.ModeRolling, Outcome: pipeline.OutcomeDispatched,
		Items: 12, Parts: 3, StartedAt: start, FinishedAt: start.Add(4 * time.Second),
	})
	m.RunCompleted(context.Background(), pipeline.Report{
		Mode: pipeline.ModeRolling, Outcome: pipeline.OutcomeNoItems,
		StartedAt: start, FinishedAt: start.Add(time.Second),
	})

	if got := testutil.ToFloat64(m.runs.WithLabelValues("rolling", "dispatched")); got != 1 {
		t.Errorf("expected 1 dispatched run, got %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("rolling", "no_items")); got != 1 {
		t.Errorf("expected 1 no_items run, got %v", got)
	}
	if got := testutil.ToFloat64(m.items.WithLabelValues("rolling")); got != 12 {
		t.Errorf("expected 12 items, got %v", got)
	}
	if got := testutil.ToFloat64(m.parts.WithLabelValues("rolling")); got != 3 {
		t.Errorf("expected 3 parts, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastRun.WithLabelValues("rolling")); got != float64(start.Add(time.Second).Unix()) {
		t.Errorf("unexpected last run timestamp %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RunCompleted(context.Background(), pipeline.Report{Mode: pipeline.ModeRange, Outcome: pipeline.OutcomeFailed})

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `scribe_runs_total{mode="range",outcome="failed"} 1`) {
		t.Errorf("expected run counter in scrape output:\n%s", body)
	}
}
