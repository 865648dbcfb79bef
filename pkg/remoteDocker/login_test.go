package remoteDocker

import (
	"context"
	"testing"

	"github.com/Checkmarx/containers-dependency-resolver/pkg/commandExecutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialSourceLoginCommand(t *testing.T) {
	tests := []struct {
		name     string
		result   commandExecutor.Result
		expected string
		wantErr  bool
	}{
		{name: "Single line", result: commandExecutor.Result{Stdout: "docker login -p x\n"}, expected: "docker login -p x"},
		{name: "Windows line endings", result: commandExecutor.Result{Stdout: "docker login -p x\r\n"}, expected: "docker login -p x"},
		{name: "Wrapped output is concatenated", result: commandExecutor.Result{Stdout: "docker login -p ab\ncd host\n"}, expected: "docker login -p abcd host"},
		{name: "Empty output", result: commandExecutor.Result{Stdout: "\n"}, wantErr: true},
		{name: "Non zero exit", result: commandExecutor.Result{ExitCode: 255, Stdout: "docker login"}, wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			source := credentialSource{
				executor: &fakeExecutor{results: map[string]commandExecutor.Result{"get-login": test.result}},
				command:  "get-login",
			}
			command, err := source.loginCommand(context.Background())
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, command)
		})
	}
}

func TestTwoStepLoginWrapsUnavailable(t *testing.T) {
	source := credentialSource{executor: &fakeExecutor{}, command: "get-login"}

	err := twoStepLogin(context.Background(), source)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
}
