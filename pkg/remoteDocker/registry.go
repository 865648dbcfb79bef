package remoteDocker

import (
	"context"
)

// RemoteRegistry is implemented once per registry provider. A provider whose manager is not
// installed is skipped without a login attempt; a failed login skips only that provider.
type RemoteRegistry interface {
	Name() string
	Type() RegistryType
	IsRequiredRegistryManagerInstalled(ctx context.Context) bool
	LoginToRemoteRegistry(ctx context.Context) bool
	// ListImagesOnRemoteRegistry never fails as a whole. Repositories or images whose calls
	// fail contribute nothing.
	ListImagesOnRemoteRegistry(ctx context.Context) []DockerImage
	// GetImageFullURL is a pure lookup over what ListImagesOnRemoteRegistry discovered.
	GetImageFullURL(image DockerImage) string
}
