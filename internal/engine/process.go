package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Process runs an external command, writing the payload to its stdin and
// collecting stdout and stderr until it exits.
type Process struct {
	Path string
	Args []string
	Env  []string // added to the inherited environment
	Dir  string
}

// NewProcess builds a Process from a whitespace-separated command line.
func NewProcess(command string) (*Process, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("empty engine command")
	}
	return &Process{Path: fields[0], Args: fields[1:]}, nil
}

// Run starts the command and waits for it. The process is not tied to ctx and is
// never killed mid-run; a non-zero exit is reported in Result.ExitCode.
func (p *Process) Run(_ context.Context, input []byte) (Result, error) {
	cmd := exec.Command(p.Path, p.Args...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}
	// exec closes the child's stdin once the reader is drained.
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run %s: %w", p.Path, err)
	}
	return res, nil
}
