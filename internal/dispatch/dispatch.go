package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/chunker"
)

// Panel is the metadata card attached to the final part of a multi-part post.
type Panel struct {
	Title       string
	Description string
	Color       int
}

// Message is a single payload handed to a Sink.
type Message struct {
	Content string
	Panel   *Panel
}

// Sink is an output surface. It has no multi-part atomicity; callers order sends.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Render turns chunks into messages in send order. Parts are labelled when there
// is more than one, fences spanning a part boundary are reopened and closed, and
// the panel goes on the last message only.
func Render(chunks []chunker.Chunk, panel *Panel) []Message {
	msgs := make([]Message, len(chunks))
	for i, c := range chunks {
		msgs[i] = Message{Content: renderChunk(c, len(chunks) > 1)}
	}
	if panel != nil && len(msgs) > 0 {
		p := *panel
		msgs[len(msgs)-1].Panel = &p
	}
	return msgs
}

func renderChunk(c chunker.Chunk, labelled bool) string {
	var sb strings.Builder
	if labelled {
		fmt.Fprintf(&sb, "**Part %d/%d**\n", c.Index, c.Total)
	}
	if c.Start.Open {
		sb.WriteString(chunker.FenceMarker + c.Start.Language + "\n")
	}
	sb.WriteString(c.Body)
	// The closer is a bare fence. A fence line carrying an info string cannot
	// close a block; it would open a new one.
	if c.End.Open {
		if !strings.HasSuffix(c.Body, "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString(chunker.FenceMarker + "\n")
	}
	return sb.String()
}

// Dispatcher sends rendered parts to a sink one at a time.
type Dispatcher struct {
	sink   Sink
	logger *slog.Logger
}

func New(sink Sink, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{sink: sink, logger: logger}
}

// Dispatch sends every chunk in order, waiting for each send to return before the
// next. It stops at the first failed send and reports how many parts went out;
// parts already sent stay sent.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []chunker.Chunk, panel *Panel) (int, error) {
	msgs := Render(chunks, panel)
	for i, msg := range msgs {
		if err := d.sink.Send(ctx, msg); err != nil {
			d.logger.Error("part send failed", "part", i+1, "total", len(msgs), "error", err)
			return i, fmt.Errorf("send part %d/%d: %w", i+1, len(msgs), err)
		}
		d.logger.Debug("part sent", "part", i+1, "total", len(msgs), "bytes", len(msg.Content))
	}
	return len(msgs), nil
}

// Notice sends a single plain-text message.
func (d *Dispatcher) Notice(ctx context.Context, text string) error {
	if err := d.sink.Send(ctx, Message{Content: text}); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	d.logger.Info("notice sent", "text", text)
	return nil
}
