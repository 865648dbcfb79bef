package syftPackagesExtractor

import (
	"context"
	"fmt"

	"github.com/anchore/go-collections"
	"github.com/anchore/stereoscope"
	"github.com/anchore/stereoscope/pkg/image"
	"github.com/anchore/syft/syft"
	"github.com/anchore/syft/syft/sbom"
	"github.com/anchore/syft/syft/source"
	"github.com/anchore/syft/syft/source/sourceproviders"
	"github.com/rs/zerolog/log"
)

// imageCataloger pulls an image reference and catalogs its packages.
type imageCataloger func(ctx context.Context, imageRef string) (*sbom.SBOM, error)

func newSyftCataloger(options ExtractorOptions) (imageCataloger, error) {
	platform, err := image.NewPlatform(options.Platform)
	if err != nil {
		return nil, fmt.Errorf("invalid platform %q: %w", options.Platform, err)
	}

	credentials := append(loadPodmanCredentials(), options.Credentials...)
	registryOptions := &image.RegistryOptions{Credentials: credentials}

	return func(ctx context.Context, imageRef string) (*sbom.SBOM, error) {
		sourceConfig := syft.DefaultGetSourceConfig().
			WithRegistryOptions(registryOptions).
			WithPlatform(platform)

		schemeSource, userInput := stereoscope.ExtractSchemeSource(imageRef, allSourceTags()...)
		if schemeSource != "" {
			sourceConfig = sourceConfig.WithSources(schemeSource)
			imageRef = userInput
		}

		src, err := syft.GetSource(ctx, imageRef, sourceConfig)
		if err != nil {
			return nil, fmt.Errorf("could not create image source: %w", err)
		}
		defer func() {
			if closeErr := src.Close(); closeErr != nil {
				log.Debug().Err(closeErr).Msgf("could not release image source %s", imageRef)
			}
		}()

		s, err := syft.CreateSBOM(ctx, src, nil)
		if err != nil {
			return nil, fmt.Errorf("could not catalog image: %w", err)
		}
		return s, nil
	}, nil
}

func allSourceTags() []string {
	return collections.TaggedValueSet[source.Provider]{}.Join(sourceproviders.All("", nil)...).Tags()
}
