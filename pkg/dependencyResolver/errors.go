package dependencyResolver

import (
	"errors"
	"fmt"
)

// ErrConfiguration is fatal and is returned before any resolution begins.
var ErrConfiguration = errors.New("configuration error")

// ResolutionError reports a single ecosystem failing on one subtree. The registry recovers
// from it: that ecosystem contributes nothing for the folder and the scan continues.
type ResolutionError struct {
	Type   DependencyType
	Folder string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s dependencies in %s: %v", e.Type, e.Folder, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
