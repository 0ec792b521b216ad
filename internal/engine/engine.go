// Package engine hands windowed items to an external analysis engine and
// collects its text output.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/source"
)

// Result is everything an engine run produced.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Engine consumes a line-delimited record payload and runs to completion.
// Implementations must not abandon a run when ctx is cancelled.
type Engine interface {
	Run(ctx context.Context, input []byte) (Result, error)
}

// FailedError reports an engine that terminated unsuccessfully.
type FailedError struct {
	ExitCode int
	Stderr   string
}

func (e *FailedError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("analysis engine failed: exit status %d", e.ExitCode)
	}
	return fmt.Sprintf("analysis engine failed: exit status %d: %s", e.ExitCode, e.Stderr)
}

// Pipe serializes items for an engine and interprets its result.
type Pipe struct {
	engine Engine
	logger *slog.Logger
}

func NewPipe(e Engine, logger *slog.Logger) *Pipe {
	return &Pipe{engine: e, logger: logger}
}

// Analyze runs the engine over items and returns its trimmed output. An empty
// string with a nil error means the engine succeeded but said nothing.
//
// The engine always runs to completion. If ctx ends first, Analyze returns
// ctx.Err() and the engine's eventual output is discarded.
func (p *Pipe) Analyze(ctx context.Context, items []source.Item) (string, error) {
	input, err := Encode(items)
	if err != nil {
		return "", err
	}

	p.logger.Info("analysis engine started", "items", len(items), "input_bytes", len(input))

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	runCtx := context.WithoutCancel(ctx)
	go func() {
		res, err := p.engine.Run(runCtx, input)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		p.logger.Warn("analysis abandoned, engine left to finish", "error", ctx.Err())
		return "", ctx.Err()
	}

	if out.err != nil {
		return "", &FailedError{ExitCode: -1, Stderr: out.err.Error()}
	}

	stderr := strings.TrimSpace(string(out.res.Stderr))
	if stderr != "" {
		p.logger.Warn("analysis engine stderr", "exit_code", out.res.ExitCode, "stderr", stderr)
	}
	if out.res.ExitCode != 0 {
		return "", &FailedError{ExitCode: out.res.ExitCode, Stderr: stderr}
	}

	text := string(bytes.TrimSpace(out.res.Stdout))
	p.logger.Info("analysis engine finished", "output_len", len(text))
	return text, nil
}
