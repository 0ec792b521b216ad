package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/dispatch"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// Poster delivers dispatch messages to a Slack channel.
type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// Send posts one message. A panel becomes a coloured attachment under the text.
func (p *Poster) Send(ctx context.Context, msg dispatch.Message) error {
	payload := map[string]any{
		"channel": p.channel,
		"text":    msg.Content,
		"mrkdwn":  true,
	}
	if msg.Panel != nil {
		payload["attachments"] = []map[string]any{
			{
				"color": fmt.Sprintf("#%06x", msg.Panel.Color),
				"title": msg.Panel.Title,
				"text":  msg.Panel.Description,
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return fmt.Errorf("parse slack response (status %d): %w", resp.StatusCode, err)
	}
	if !slackResp.OK {
		return fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Debug("posted to slack", "channel", p.channel, "ts", slackResp.TS, "len", len(msg.Content))
	return nil
}
