package inventoryScanner

import (
	"context"
	"fmt"

	"github.com/Checkmarx/containers-dependency-resolver/pkg/commandExecutor"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/config"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/dependencyResolver"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/remoteDocker"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/syftPackagesExtractor"
	"github.com/Checkmarx/containers-types/types"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/rs/zerolog/log"
)

type ExtractorFactory func(options syftPackagesExtractor.ExtractorOptions) (syftPackagesExtractor.SyftPackagesExtractor, error)

type InventoryScanner interface {
	Scan(ctx context.Context) (*Inventory, error)
}

type inventoryScanner struct {
	config    *config.Config
	executor  commandExecutor.Executor
	providers ProviderFactory
	extractor ExtractorFactory
}

func NewInventoryScanner(cfg *config.Config, executor commandExecutor.Executor) InventoryScanner {
	return newInventoryScanner(cfg, executor, defaultProviders, syftPackagesExtractor.NewSyftPackagesExtractor)
}

func newInventoryScanner(cfg *config.Config, executor commandExecutor.Executor, providers ProviderFactory, extractor ExtractorFactory) *inventoryScanner {
	return &inventoryScanner{config: cfg, executor: executor, providers: providers, extractor: extractor}
}

// Scan fails only on configuration errors and cancellation. Everything recoverable ends up
// in Inventory.Warnings.
func (is *inventoryScanner) Scan(ctx context.Context) (*Inventory, error) {
	if err := is.config.Validate(); err != nil {
		return nil, err
	}
	registryOptions, err := is.config.RegistryOptions()
	if err != nil {
		return nil, err
	}

	project, err := dependencyResolver.NewRegistry(registryOptions, is.executor).Resolve(ctx, is.config.Scan.Directory)
	if err != nil {
		return nil, err
	}

	inventory := &Inventory{
		ProjectFolder: project.ProjectFolder,
		Results:       project.Results,
		Dependencies:  project.Dependencies,
		Excludes:      project.Excludes,
		Warnings:      project.Warnings,
	}

	if is.config.RemoteDocker.Enabled {
		is.addRemoteImages(ctx, inventory)
	}

	if is.config.Docker.ScanImages {
		if err := is.analyzeImages(ctx, inventory); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return inventory, nil
}

func (is *inventoryScanner) addRemoteImages(ctx context.Context, inventory *Inventory) {
	providers, errs := is.providers(ctx, is.config, is.executor)
	remoteImages, listErrs := listRemoteImages(ctx, providers)

	for _, err := range append(errs, listErrs...) {
		log.Warn().Err(err).Msg("Skipping remote registry.")
		inventory.addWarning(err.Error())
	}
	inventory.RemoteImages = remoteImages
	correlateDockerDependencies(inventory.Dependencies, remoteImages)
}

// correlateDockerDependencies fills the checksum of unpinned Docker dependencies from the
// registry-listed image with the same repository and tag. Checksums use the "sha256:<hex>" form
// of pinned Dockerfile references.
func correlateDockerDependencies(dependencies []dependencyResolver.Dependency, remoteImages []remoteDocker.RemoteImage) {
	digests := make(map[string]string)
	for _, remoteImage := range remoteImages {
		if !remoteImage.Image.HasKnownDigest() || remoteImage.FullURL == "" {
			continue
		}
		tag, err := name.NewTag(remoteImage.FullURL)
		if err != nil {
			log.Debug().Err(err).Msgf("could not parse remote image url %s", remoteImage.FullURL)
			continue
		}
		digests[tag.Name()] = remoteImage.Image.CanonicalDigest()
	}

	for i := range dependencies {
		dependency := &dependencies[i]
		if dependency.Type != dependencyResolver.Docker {
			continue
		}
		digest, ok := digests[dockerDependencyKey(*dependency)]
		if !ok {
			continue
		}
		if dependency.Checksum == "" {
			dependency.Checksum = digest
		} else if dependency.Checksum != digest {
			log.Debug().Msgf("pinned digest of %s differs from the registry: %s", dependency.Filename, digest)
		}
	}
}

func dockerDependencyKey(dependency dependencyResolver.Dependency) string {
	return fmt.Sprintf("%s/%s:%s", dependency.GroupId, dependency.ArtifactId, dependency.Version)
}

func (is *inventoryScanner) analyzeImages(ctx context.Context, inventory *Inventory) error {
	images := buildImageModels(inventory.Dependencies, inventory.RemoteImages)
	if len(images) == 0 {
		return nil
	}

	extractor, err := is.extractor(is.config.ExtractorOptions())
	if err != nil {
		return fmt.Errorf("%w: %v", dependencyResolver.ErrConfiguration, err)
	}

	containers, err := extractor.AnalyzeImages(ctx, images)
	if err != nil {
		return err
	}
	for _, container := range containers {
		if container.ContainerImage.Status == syftPackagesExtractor.StatusFailed {
			inventory.addWarning(fmt.Sprintf("image %s: %s", container.ContainerImage.ImageId, container.ContainerImage.ScanError))
		}
	}
	inventory.Containers = containers
	return nil
}

// buildImageModels lists every image once, local Dockerfile references first. An image found
// in a Dockerfile and on a registry keeps both locations.
func buildImageModels(dependencies []dependencyResolver.Dependency, remoteImages []remoteDocker.RemoteImage) []types.ImageModel {
	var images []types.ImageModel
	indexByName := make(map[string]int)

	addLocation := func(imageName string, location types.ImageLocation) {
		if i, ok := indexByName[imageName]; ok {
			images[i].ImageLocations = append(images[i].ImageLocations, location)
			return
		}
		indexByName[imageName] = len(images)
		images = append(images, types.ImageModel{Name: imageName, ImageLocations: []types.ImageLocation{location}})
	}

	for _, dependency := range dependencies {
		if dependency.Type != dependencyResolver.Docker || dependency.Filename == "" {
			continue
		}
		addLocation(dependency.Filename, types.ImageLocation{
			Origin:     types.DockerFileOrigin,
			Path:       dependency.SystemPath,
			FinalStage: dependency.Scope == dependencyResolver.DockerFinalStageScope,
		})
	}

	for _, remoteImage := range remoteImages {
		if remoteImage.FullURL == "" {
			continue
		}
		addLocation(remoteImage.FullURL, types.ImageLocation{
			Origin: syftPackagesExtractor.RemoteRegistryOrigin,
			Path:   remoteImage.FullURL,
		})
	}
	return images
}
