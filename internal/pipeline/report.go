package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/window"
)

// Report describes one finished run.
type Report struct {
	RunID       uuid.UUID
	Mode        Mode
	Channel     string
	ChannelName string
	Window      window.Window
	Outcome     Outcome
	Fetched     int // items read from the source, before windowing
	Items       int // items handed to the analyzer
	Parts       int // parts delivered to the sink
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
}

func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Event is the wire form of a Report, published after each run and stored in the audit log.
type Event struct {
	RunID       string    `json:"run_id"`
	Mode        string    `json:"mode"`
	Channel     string    `json:"channel"`
	ChannelName string    `json:"channel_name,omitempty"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Outcome     string    `json:"outcome"`
	Fetched     int       `json:"fetched"`
	Items       int       `json:"items"`
	Parts       int       `json:"parts"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMS  int64     `json:"duration_ms"`
}

func (r Report) Event() Event {
	ev := Event{
		RunID:       r.RunID.String(),
		Mode:        string(r.Mode),
		Channel:     r.Channel,
		ChannelName: r.ChannelName,
		WindowStart: r.Window.Start,
		WindowEnd:   r.Window.End,
		Outcome:     string(r.Outcome),
		Fetched:     r.Fetched,
		Items:       r.Items,
		Parts:       r.Parts,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		DurationMS:  r.Duration().Milliseconds(),
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}
