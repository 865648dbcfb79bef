package remoteDocker

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryUnavailable means the managing tool is missing or the login failed. The provider is skipped.
	ErrRegistryUnavailable = errors.New("remote registry unavailable")
	ErrDigestExtraction    = errors.New("failed to extract image digest from manifest")
	errEmptyImageSelector  = errors.New("an image tag or digest is required")
)

// RegistryCallError is a failed call for a single repository or image. Enumeration goes on without it.
type RegistryCallError struct {
	Operation  string
	Repository string
	RegistryID string
	Err        error
}

func (e *RegistryCallError) Error() string {
	target := e.Repository
	if target == "" {
		target = "repositories"
	}
	if e.RegistryID != "" {
		target = fmt.Sprintf("%s in registry %s", target, e.RegistryID)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Operation, target, e.Err)
}

func (e *RegistryCallError) Unwrap() error {
	return e.Err
}
