package syftPackagesExtractor

import (
	"context"

	"github.com/Checkmarx/containers-types/types"
	"github.com/anchore/stereoscope/pkg/image"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPlatform = "linux/amd64"

	// RemoteRegistryOrigin marks images discovered by listing a remote registry.
	RemoteRegistryOrigin = "RemoteRegistry"
)

type SyftPackagesExtractor interface {
	AnalyzeImages(ctx context.Context, images []types.ImageModel) ([]*ContainerResolution, error)
}

type ExtractorOptions struct {
	Platform    string
	CycloneDx   bool
	Credentials []image.RegistryCredentials
}

type syftPackagesExtractor struct {
	options ExtractorOptions
	catalog imageCataloger
}

func NewSyftPackagesExtractor(options ExtractorOptions) (SyftPackagesExtractor, error) {
	if options.Platform == "" {
		options.Platform = DefaultPlatform
	}
	catalog, err := newSyftCataloger(options)
	if err != nil {
		return nil, err
	}
	return &syftPackagesExtractor{options: options, catalog: catalog}, nil
}

// AnalyzeImages returns one resolution per image. Images that cannot be pulled or cataloged
// are reported with the Failed status instead of failing the whole batch.
func (spe *syftPackagesExtractor) AnalyzeImages(ctx context.Context, images []types.ImageModel) ([]*ContainerResolution, error) {
	containerResolution := []*ContainerResolution{}

	for _, imageModel := range images {
		if err := ctx.Err(); err != nil {
			return containerResolution, err
		}
		log.Debug().Msgf("going to analyze image using syft. image: %s, found in file paths: %s", imageModel.Name, GetImageLocationsPathsString(imageModel))

		resolution, err := spe.analyzeImage(ctx, imageModel)
		if err != nil {
			log.Err(err).Msgf("Could not analyze image: %s.", imageModel.Name)
			containerResolution = append(containerResolution, failedResolution(imageModel, err))
			continue
		}
		containerResolution = append(containerResolution, resolution)
		log.Info().Msgf("successfully analyzed image: %s, found %d packages. image paths: %s", imageModel.Name,
			len(resolution.ContainerPackages), GetImageLocationsPathsString(imageModel))
	}

	return containerResolution, nil
}

func (spe *syftPackagesExtractor) analyzeImage(ctx context.Context, imageModel types.ImageModel) (*ContainerResolution, error) {
	s, err := spe.catalog(ctx, imageModel.Name)
	if err != nil {
		return nil, err
	}

	resolution, err := transformSBOMToContainerResolution(*s, imageModel)
	if err != nil {
		return nil, err
	}

	if spe.options.CycloneDx {
		encoded, err := tryGenerateCycloneDxSBOM(*s)
		if err != nil {
			log.Warn().Err(err).Msgf("Could not generate CycloneDX SBOM for image: %s.", imageModel.Name)
		} else {
			resolution.CycloneDxSBOM = encoded
		}
	}
	return resolution, nil
}

func failedResolution(imageModel types.ImageModel, err error) *ContainerResolution {
	imageName, imageTag := splitImageName(imageModel.Name)
	return &ContainerResolution{
		ContainerImage: ContainerImage{
			ImageName:      imageName,
			ImageTag:       imageTag,
			ImageId:        imageModel.Name,
			ImageLocations: getImageLocations(imageModel.ImageLocations),
			Status:         StatusFailed,
			ScanError:      mapErrorToCustomMessage(err),
		},
		ContainerPackages: []ContainerPackage{},
	}
}
