package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/scribe/internal/pipeline"
)

const (
	// SubjectDailyRequested asks for a rolling-window run of the source channel.
	SubjectDailyRequested = "swarm.scribe.daily.requested"
	// SubjectAnalysisRequested asks for a custom-range run; payload is AnalysisRequest.
	SubjectAnalysisRequested = "swarm.scribe.analysis.requested"
	// SubjectRunCompleted carries a pipeline.Event after every run.
	SubjectRunCompleted = "swarm.scribe.run.completed"
)

// AnalysisRequest names a channel and a YYYY-MM-DD range. End is optional.
type AnalysisRequest struct {
	Channel string `json:"channel"`
	Start   string `json:"start"`
	End     string `json:"end,omitempty"`
}

func ParseAnalysisRequest(data []byte) (AnalysisRequest, error) {
	var req AnalysisRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return AnalysisRequest{}, fmt.Errorf("decode analysis request: %w", err)
	}
	if req.Channel == "" || req.Start == "" {
		return AnalysisRequest{}, errors.New("analysis request needs channel and start")
	}
	return req, nil
}

// Triggers are the callbacks run for on-demand requests.
type Triggers struct {
	Daily    func(ctx context.Context) error
	Analysis func(ctx context.Context, req AnalysisRequest) error
}

// ServeTriggers subscribes to the request subjects. NATS delivers each
// subject's messages one at a time, so requests on a subject never overlap.
func (c *Client) ServeTriggers(ctx context.Context, t Triggers) error {
	if err := c.Subscribe(SubjectDailyRequested, func(subject string, _ []byte) {
		if err := t.Daily(ctx); err != nil {
			c.logger.Error("daily request failed", "subject", subject, "error", err)
		}
	}); err != nil {
		return err
	}

	return c.Subscribe(SubjectAnalysisRequested, func(subject string, data []byte) {
		req, err := ParseAnalysisRequest(data)
		if err != nil {
			c.logger.Warn("bad analysis request", "subject", subject, "error", err)
			return
		}
		if err := t.Analysis(ctx, req); err != nil {
			c.logger.Error("analysis request failed", "subject", subject, "channel", req.Channel, "error", err)
		}
	})
}

// RunCompleted publishes the run as an event. It satisfies pipeline.Observer.
func (c *Client) RunCompleted(_ context.Context, r pipeline.Report) {
	if err := c.Publish(SubjectRunCompleted, r.Event()); err != nil {
		c.logger.Warn("run event not published", "run_id", r.RunID.String(), "error", err)
	}
}
