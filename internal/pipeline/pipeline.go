// Package pipeline runs one digest end to end: fetch a channel, keep the items
// inside a window, analyze them, split the output and post it in order.
//
// A Pipeline holds only collaborators that never change after construction.
// Every run builds its own cursor, buffers and window, so scheduled and
// on-demand runs can execute at the same time without sharing state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/chunker"
	"github.com/MikeSquared-Agency/scribe/internal/dispatch"
	"github.com/MikeSquared-Agency/scribe/internal/engine"
	"github.com/MikeSquared-Agency/scribe/internal/source"
	"github.com/MikeSquared-Agency/scribe/internal/window"
)

// PanelColor is the accent colour of the custom-range summary panel.
const PanelColor = 0x3498db

const (
	noticeEmptyResult  = "⚠️ No output received from the analysis engine"
	noticeEngineFailed = "❌ Error processing messages with the analysis engine"
)

// Mode says how a run's window was chosen.
type Mode string

const (
	ModeRolling Mode = "rolling"
	ModeRange   Mode = "range"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeDispatched  Outcome = "dispatched"
	OutcomeNoItems     Outcome = "no_items"
	OutcomeEmptyResult Outcome = "empty_result"
	OutcomeFailed      Outcome = "failed"
)

// Analyzer turns windowed items into text. An empty string means the analysis
// succeeded with nothing to say.
type Analyzer interface {
	Analyze(ctx context.Context, items []source.Item) (string, error)
}

// Observer is told about every finished run, successful or not.
type Observer interface {
	RunCompleted(ctx context.Context, r Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, r Report)

func (f ObserverFunc) RunCompleted(ctx context.Context, r Report) { f(ctx, r) }

// Options are the tunables of a Pipeline.
type Options struct {
	SourceChannelID string
	RollingWindow   time.Duration
	ClockSkew       time.Duration
	MaxChunkSize    int
	PageSize        int
}

type Pipeline struct {
	source     source.Source
	analyzer   Analyzer
	dispatcher *dispatch.Dispatcher
	opts       Options
	observers  []Observer
	logger     *slog.Logger
	now        func() time.Time
}

func New(src source.Source, analyzer Analyzer, sink dispatch.Sink, opts Options, logger *slog.Logger, observers ...Observer) *Pipeline {
	return &Pipeline{
		source:     src,
		analyzer:   analyzer,
		dispatcher: dispatch.New(sink, logger),
		opts:       opts,
		observers:  observers,
		logger:     logger,
		now:        time.Now,
	}
}

type request struct {
	mode      Mode
	channelID string
	window    window.Window
	ceiling   time.Time
	panel     bool
}

// RunDaily digests the configured source channel over the rolling window ending now.
func (p *Pipeline) RunDaily(ctx context.Context) (Report, error) {
	now := p.now()
	return p.run(ctx, request{
		mode:      ModeRolling,
		channelID: p.opts.SourceChannelID,
		window:    window.Rolling(now, p.opts.RollingWindow),
		ceiling:   now.Add(-p.opts.ClockSkew),
	})
}

// RunRange digests channelID over an explicit window and attaches a summary
// panel to the final part.
func (p *Pipeline) RunRange(ctx context.Context, channelID string, w window.Window) (Report, error) {
	return p.run(ctx, request{
		mode:      ModeRange,
		channelID: channelID,
		window:    w,
		ceiling:   w.End,
		panel:     true,
	})
}

func (p *Pipeline) run(ctx context.Context, req request) (report Report, err error) {
	report = Report{
		RunID:     uuid.New(),
		Mode:      req.mode,
		Channel:   req.channelID,
		Window:    req.window,
		StartedAt: p.now(),
	}
	logger := p.logger.With("run_id", report.RunID.String(), "mode", string(req.mode), "channel", req.channelID)
	logger.Info("run started",
		"window_start", req.window.Start.Format(time.RFC3339),
		"window_end", req.window.End.Format(time.RFC3339),
	)

	defer func() {
		report.FinishedAt = p.now()
		if err != nil {
			report.Outcome = OutcomeFailed
			report.Err = err
			logger.Error("run failed", "error", err, "parts_sent", report.Parts)
		} else {
			logger.Info("run completed", "outcome", string(report.Outcome), "items", report.Items, "parts", report.Parts)
		}
		observeCtx := context.WithoutCancel(ctx)
		for _, o := range p.observers {
			o.RunCompleted(observeCtx, report)
		}
	}()

	if req.window.Start.After(req.window.End) {
		return report, fmt.Errorf("%w: start is after end", window.ErrInvalidWindow)
	}

	opts := source.FetchOptions{Ceiling: req.ceiling, PageSize: p.opts.PageSize}
	if seeker, ok := p.source.(source.Seeker); ok {
		opts.Start = seeker.CursorAt(req.window.Start.Add(-time.Millisecond))
	}

	coll, fetched, err := source.FetchAll(ctx, p.source, req.channelID, opts, logger)
	if err != nil {
		return report, err
	}
	report.ChannelName = coll.Name
	report.Fetched = len(fetched)

	items := window.Filter(fetched, req.window)
	report.Items = len(items)
	if len(items) == 0 {
		logger.Info("no items in window", "fetched", len(fetched))
		report.Outcome = OutcomeNoItems
		return report, p.dispatcher.Notice(ctx, p.noItemsNotice(req, coll))
	}
	logger.Info("items in window",
		"items", len(items),
		"first", items[0].Timestamp.Format(time.RFC3339),
		"last", items[len(items)-1].Timestamp.Format(time.RFC3339),
	)

	text, err := p.analyzer.Analyze(ctx, items)
	if err != nil {
		var failed *engine.FailedError
		if errors.As(err, &failed) {
			if nerr := p.dispatcher.Notice(ctx, noticeEngineFailed); nerr != nil {
				logger.Error("failure notice not sent", "error", nerr)
			}
		}
		return report, err
	}
	if text == "" {
		report.Outcome = OutcomeEmptyResult
		return report, p.dispatcher.Notice(ctx, noticeEmptyResult)
	}

	chunks := chunker.Split(text, p.opts.MaxChunkSize)
	logger.Info("chunks produced", "chunks", len(chunks), "output_len", len(text))

	var panel *dispatch.Panel
	if req.panel {
		panel = rangePanel(coll, req.window)
	}

	sent, err := p.dispatcher.Dispatch(ctx, chunks, panel)
	report.Parts = sent
	if err != nil {
		return report, err
	}
	report.Outcome = OutcomeDispatched
	return report, nil
}

func (p *Pipeline) noItemsNotice(req request, coll source.Collection) string {
	if req.mode == ModeRolling {
		return fmt.Sprintf("No messages found in the last %s.", humanDuration(p.opts.RollingWindow))
	}
	start, end := req.window.Describe()
	return fmt.Sprintf("No messages found in #%s between %s and %s", coll.Name, start, end)
}

func rangePanel(coll source.Collection, w window.Window) *dispatch.Panel {
	start, end := w.Describe()
	return &dispatch.Panel{
		Title:       "Analysis of #" + coll.Name,
		Description: fmt.Sprintf("From %s to %s", start, end),
		Color:       PanelColor,
	}
}

// humanDuration renders whole hours or minutes in words, e.g. "24 hours".
func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "hour"
	case d > 0 && d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d == time.Minute:
		return "minute"
	case d > 0 && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	}
	return d.String()
}
