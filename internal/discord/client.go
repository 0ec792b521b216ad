// Package discord reads channel history and posts messages over the Discord REST API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/dispatch"
	"github.com/MikeSquared-Agency/scribe/internal/source"
)

const (
	defaultAPIURL = "https://discord.com/api/v10"

	// discordEpoch is the first millisecond of 2015, the origin of snowflake timestamps.
	discordEpoch = 1420070400000

	maxRateLimitRetries = 3
	maxRetryAfter       = 30 * time.Second
)

// Channel types that carry a readable message history.
var textChannelTypes = map[int]bool{
	0:  true, // guild text
	1:  true, // DM
	3:  true, // group DM
	5:  true, // announcement
	10: true, // announcement thread
	11: true, // public thread
	12: true, // private thread
}

// APIError is a non-success response from Discord.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("discord api error %d", e.Status)
	}
	return fmt.Sprintf("discord api error %d: %s (code %d)", e.Status, e.Message, e.Code)
}

// Client talks to one bot account. A single Client can serve as both the
// message source and the output sink for a target channel.
type Client struct {
	token  string
	apiURL string
	client *http.Client
	logger *slog.Logger
}

func NewClient(token, apiURL string, logger *slog.Logger) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		token:  token,
		apiURL: apiURL,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

type channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

// Resolve looks up a channel and checks it has a message history the bot can read.
func (c *Client) Resolve(ctx context.Context, channelID string) (source.Collection, error) {
	var ch channel
	if err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID), nil, &ch); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isAccessError(apiErr.Status) {
			return source.Collection{}, fmt.Errorf("channel %s: %w: %v", channelID, source.ErrSourceUnavailable, err)
		}
		return source.Collection{}, fmt.Errorf("resolve channel %s: %w", channelID, err)
	}
	if !textChannelTypes[ch.Type] {
		return source.Collection{}, fmt.Errorf("channel %s is not text based (type %d): %w", channelID, ch.Type, source.ErrSourceUnavailable)
	}
	return source.Collection{ID: ch.ID, Name: ch.Name}, nil
}

type message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Author    struct {
		Username string `json:"username"`
	} `json:"author"`
}

// Page returns up to limit messages posted after the cursor. Discord returns
// them newest first; callers sort.
func (c *Client) Page(ctx context.Context, channelID string, after source.Cursor, limit int) ([]source.Item, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if after != "" {
		q.Set("after", string(after))
	}

	var msgs []message
	path := "/channels/" + url.PathEscape(channelID) + "/messages?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isAccessError(apiErr.Status) {
			return nil, fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
		}
		return nil, err
	}

	items := make([]source.Item, 0, len(msgs))
	for _, m := range msgs {
		seq, _ := strconv.ParseUint(m.ID, 10, 64)
		items = append(items, source.Item{
			ID:        m.ID,
			Text:      m.Content,
			Author:    m.Author.Username,
			Timestamp: m.Timestamp,
			Seq:       seq,
		})
	}
	return items, nil
}

// CursorAt returns the smallest snowflake created at t, so that paging after it
// yields messages created strictly later than t.
func (c *Client) CursorAt(t time.Time) source.Cursor {
	ms := t.UnixMilli() - discordEpoch
	if ms < 0 {
		ms = 0
	}
	return source.Cursor(strconv.FormatUint(uint64(ms)<<22, 10))
}

// Poster sends messages to one Discord channel.
type Poster struct {
	client    *Client
	channelID string
}

// PosterFor returns a sink bound to channelID.
func (c *Client) PosterFor(channelID string) *Poster {
	return &Poster{client: c, channelID: channelID}
}

type embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
}

type createMessage struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

func (p *Poster) Send(ctx context.Context, msg dispatch.Message) error {
	body := createMessage{Content: msg.Content}
	if msg.Panel != nil {
		body.Embeds = []embed{{Title: msg.Panel.Title, Description: msg.Panel.Description, Color: msg.Panel.Color}}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := p.client.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(p.channelID)+"/messages", body, &created); err != nil {
		return fmt.Errorf("post to channel %s: %w", p.channelID, err)
	}
	p.client.logger.Debug("posted to discord", "channel", p.channelID, "message_id", created.ID, "len", len(msg.Content))
	return nil
}

// do performs one API call, retrying while Discord reports a rate limit.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		req.Header.Set("User-Agent", "DiscordBot (https://github.com/MikeSquared-Agency/scribe, 1.0)")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("discord %s %s: %w", method, path, err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			wait := retryAfter(resp.Header, respBody)
			c.logger.Warn("discord rate limited", "path", path, "retry_after", wait, "attempt", attempt+1)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode}
			_ = json.Unmarshal(respBody, apiErr)
			return apiErr
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
		}
		return nil
	}
}

func retryAfter(h http.Header, body []byte) time.Duration {
	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	secs := 1.0
	if json.Unmarshal(body, &rl) == nil && rl.RetryAfter > 0 {
		secs = rl.RetryAfter
	} else if v, err := strconv.ParseFloat(h.Get("Retry-After"), 64); err == nil && v > 0 {
		secs = v
	}
	d := time.Duration(secs * float64(time.Second))
	return min(d, maxRetryAfter)
}

func isAccessError(status int) bool {
	return status == http.StatusNotFound || status == http.StatusForbidden || status == http.StatusUnauthorized
}
