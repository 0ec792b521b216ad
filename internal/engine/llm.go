package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/anthropic"
)

const (
	llmPrompt    = "Analyze these messages and provide insights:\n\n%s"
	llmMaxTokens = 4096
)

// LLM is an in-process engine that summarises records with the Anthropic API.
// Failures are reported the way a script would: exit code 1 and a message on stderr.
type LLM struct {
	client *anthropic.Client
	now    func() time.Time
}

func NewLLM(client *anthropic.Client) *LLM {
	return &LLM{client: client, now: time.Now}
}

func (l *LLM) Run(ctx context.Context, input []byte) (Result, error) {
	records, err := Decode(input)
	if err != nil {
		return failed("Error processing input: %v", err), nil
	}
	if len(records) == 0 {
		return failed("No input data received"), nil
	}

	var sb strings.Builder
	for _, r := range records {
		ts := time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339)
		fmt.Fprintf(&sb, "[%s] %s: %s\n", ts, r.Author, r.Content)
	}

	prompt := fmt.Sprintf(llmPrompt, strings.TrimRight(sb.String(), "\n"))
	resp, err := l.client.Complete(ctx, "", []anthropic.Message{{Role: "user", Content: prompt}}, llmMaxTokens)
	if err != nil {
		return failed("Error processing messages: %v", err), nil
	}

	out := fmt.Sprintf("**Daily Summary** - %s\nProcessed %d messages\n\n%s\n",
		l.now().Format("2006-01-02 15:04:05"), len(records), strings.TrimSpace(resp))
	return Result{Stdout: []byte(out)}, nil
}

func failed(format string, args ...any) Result {
	return Result{ExitCode: 1, Stderr: []byte(fmt.Sprintf(format, args...))}
}
