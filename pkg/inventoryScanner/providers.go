package inventoryScanner

import (
	"context"
	"fmt"

	"github.com/Checkmarx/containers-dependency-resolver/pkg/commandExecutor"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/config"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/remoteDocker"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ProviderFactory builds the remote registries of a run. Providers that cannot be built are
// reported as errors and left out.
type ProviderFactory func(ctx context.Context, cfg *config.Config, executor commandExecutor.Executor) ([]remoteDocker.RemoteRegistry, []error)

func defaultProviders(ctx context.Context, cfg *config.Config, executor commandExecutor.Executor) ([]remoteDocker.RemoteRegistry, []error) {
	var providers []remoteDocker.RemoteRegistry
	var errs []error

	if cfg.RemoteDocker.Amazon.Enabled {
		ecr, err := remoteDocker.NewAmazonECR(ctx, cfg.AmazonECROptions(), executor)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", remoteDocker.ErrRegistryUnavailable, remoteDocker.AmazonECRRegistry, err))
		} else {
			providers = append(providers, ecr)
		}
	}

	for _, options := range cfg.GenericRegistryOptions() {
		registry, err := remoteDocker.NewGenericRegistry(options)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", remoteDocker.ErrRegistryUnavailable, options.URL, err))
			continue
		}
		providers = append(providers, registry)
	}
	return providers, errs
}

// listRemoteImages processes providers concurrently. Each provider is strictly checked,
// logged in and then listed; a provider failing a step contributes nothing.
func listRemoteImages(ctx context.Context, providers []remoteDocker.RemoteRegistry) ([]remoteDocker.RemoteImage, []error) {
	images := make([][]remoteDocker.RemoteImage, len(providers))
	errs := make([]error, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, provider := range providers {
		g.Go(func() error {
			images[i], errs[i] = listProviderImages(gctx, provider)
			return nil
		})
	}
	_ = g.Wait()

	var remoteImages []remoteDocker.RemoteImage
	var failures []error
	for i := range providers {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			continue
		}
		remoteImages = append(remoteImages, images[i]...)
	}
	return remoteImages, failures
}

func listProviderImages(ctx context.Context, provider remoteDocker.RemoteRegistry) ([]remoteDocker.RemoteImage, error) {
	if !provider.IsRequiredRegistryManagerInstalled(ctx) {
		return nil, fmt.Errorf("%w: %s: required registry manager is not installed", remoteDocker.ErrRegistryUnavailable, provider.Name())
	}
	if !provider.LoginToRemoteRegistry(ctx) {
		return nil, fmt.Errorf("%w: %s: login failed", remoteDocker.ErrRegistryUnavailable, provider.Name())
	}

	var remoteImages []remoteDocker.RemoteImage
	for _, image := range provider.ListImagesOnRemoteRegistry(ctx) {
		remoteImages = append(remoteImages, remoteDocker.RemoteImage{
			Registry: provider.Type(),
			Image:    image,
			FullURL:  provider.GetImageFullURL(image),
		})
	}
	log.Info().Msgf("found %d images on remote registry %s", len(remoteImages), provider.Name())
	return remoteImages, nil
}
