package remoteDocker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Checkmarx/containers-dependency-resolver/pkg/commandExecutor"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// credentialSource obtains a short-lived login command from a registry manager.
type credentialSource struct {
	executor commandExecutor.Executor
	command  string
}

func (cs credentialSource) loginCommand(ctx context.Context) (string, error) {
	result, err := cs.executor.Execute(ctx, "", cs.command)
	if err != nil {
		return "", err
	}
	if !result.Succeeded() {
		return "", fmt.Errorf("%q exited with code %d", cs.command, result.ExitCode)
	}

	var captured strings.Builder
	for _, line := range strings.Split(result.Stdout, "\n") {
		captured.WriteString(strings.TrimRight(line, "\r"))
	}
	command := strings.TrimSpace(captured.String())
	if command == "" {
		return "", errors.New("registry manager returned no login command")
	}
	return command, nil
}

// twoStepLogin runs the credential command and then executes its output as the login command.
// Only the registry manager's output is ever executed.
func twoStepLogin(ctx context.Context, source credentialSource) error {
	command, err := source.loginCommand(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	result, err := source.executor.Execute(ctx, "", command)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	if !result.Succeeded() {
		return fmt.Errorf("%w: login exited with code %d", ErrRegistryUnavailable, result.ExitCode)
	}
	return nil
}

// loginGuard keeps a login from running concurrently with itself for the same registry identity.
type loginGuard struct {
	group singleflight.Group
}

func (lg *loginGuard) login(ctx context.Context, identity string, source credentialSource) bool {
	_, err, shared := lg.group.Do(identity, func() (interface{}, error) {
		return nil, twoStepLogin(ctx, source)
	})
	if err != nil {
		log.Err(err).Msgf("Could not login to %s.", identity)
		return false
	}
	if shared {
		log.Debug().Msgf("joined running login for %s", identity)
	}
	return true
}
