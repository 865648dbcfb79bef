package commandExecutor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/rs/zerolog/log"
)

// Result is the outcome of an external command. ExitCode is -1 when the process could not be
// started or was killed by a signal.
type Result struct {
	ExitCode int
	Stdout   string
}

func (r Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Executor runs an external command line and captures its exit code and standard output.
type Executor interface {
	Execute(ctx context.Context, dir, command string) (Result, error)
}

type shellExecutor struct{}

func NewExecutor() Executor {
	return &shellExecutor{}
}

// Execute splits command with shell quoting rules and runs it without a shell.
func (se *shellExecutor) Execute(ctx context.Context, dir, command string) (Result, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to split command: %w", err)
	}
	if len(args) == 0 {
		return Result{ExitCode: -1}, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // commands are built by this module or returned by a trusted registry manager
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Msgf("executing %s", args[0])
	err = cmd.Run()
	result := Result{ExitCode: 0, Stdout: stdout.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			log.Debug().Msgf("%s exited with code %d: %s", args[0], result.ExitCode, strings.TrimSpace(stderr.String()))
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("failed to execute %s: %w", args[0], err)
	}
	return result, nil
}

// IsCommandSuccessful reports whether command ran and exited with code zero.
func IsCommandSuccessful(ctx context.Context, executor Executor, command string) bool {
	result, err := executor.Execute(ctx, "", command)
	if err != nil {
		log.Debug().Err(err).Msgf("command %q failed", command)
		return false
	}
	return result.Succeeded()
}
