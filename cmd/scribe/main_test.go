package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logOutput = &buf
	t.Cleanup(func() { logOutput = os.Stdout })
	return &buf
}

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "bot-token")
	t.Setenv("TARGET_CHANNEL_ID", "target")
	t.Setenv("SOURCE_CHANNEL_ID", "")
	t.Setenv("SINK", "")
	t.Setenv("ENGINE", "")
	t.Setenv("LOG_LEVEL", "")
}

// failure returns the error attribute of the "command failed" log record.
func failure(t *testing.T, logs io.Reader) string {
	t.Helper()
	sc := bufio.NewScanner(logs)
	for sc.Scan() {
		var rec struct {
			Level string `json:"level"`
			Msg   string `json:"msg"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("log line is not JSON: %q", sc.Text())
		}
		if rec.Msg == "command failed" {
			if rec.Level != "ERROR" {
				t.Errorf("expected ERROR level, got %s", rec.Level)
			}
			return rec.Error
		}
	}
	t.Fatal("no command failed record logged")
	return ""
}

func TestExecute_LogsCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"malformed start date", []string{"analyze", "--channel", "1", "--start", "2026-13-45"}, "invalid window"},
		{"missing start flag", []string{"analyze", "--channel", "1"}, `"start" not set`},
		{"daily without source channel", []string{"daily"}, "SOURCE_CHANNEL_ID is required"},
		{"unknown command", []string{"nope"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validEnv(t)
			logs := captureLogs(t)

			if code := execute(tt.args); code != 1 {
				t.Fatalf("expected exit 1, got %d", code)
			}
			if got := failure(t, logs); !strings.Contains(got, tt.want) {
				t.Errorf("expected error containing %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExecute_InvalidConfiguration(t *testing.T) {
	validEnv(t)
	t.Setenv("DISCORD_TOKEN", "")
	logs := captureLogs(t)

	if code := execute([]string{"daily"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	got := failure(t, logs)
	if !strings.Contains(got, "invalid configuration") || !strings.Contains(got, "DISCORD_TOKEN is required") {
		t.Errorf("unexpected error %q", got)
	}
}
