package main

import (
	"io"
	"log/slog"
	"os"
)

var logOutput io.Writer = os.Stdout

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the command line and logs any failure before reporting exit status 1.
func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		return 1
	}
	return 0
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(logOutput, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
