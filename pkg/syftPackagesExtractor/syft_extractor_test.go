package syftPackagesExtractor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Checkmarx/containers-types/types"
	"github.com/anchore/syft/syft/pkg"
	"github.com/anchore/syft/syft/sbom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	sboms  map[string]sbom.SBOM
	errs   map[string]error
	pulled []string
}

func (fc *fakeCatalog) catalog(_ context.Context, imageRef string) (*sbom.SBOM, error) {
	fc.pulled = append(fc.pulled, imageRef)
	if err, ok := fc.errs[imageRef]; ok {
		return nil, err
	}
	s, ok := fc.sboms[imageRef]
	if !ok {
		return nil, errors.New("GET https://index.docker.io/v2/library/" + imageRef + "/manifests/latest: MANIFEST_UNKNOWN: manifest unknown")
	}
	return &s, nil
}

func newTestExtractor(catalog *fakeCatalog, options ExtractorOptions) *syftPackagesExtractor {
	return &syftPackagesExtractor{options: options, catalog: catalog.catalog}
}

func alpineSBOM() sbom.SBOM {
	return testSBOM(
		locatedPackage(pkg.Package{Name: "busybox", Version: "1.36.1-r15", Type: pkg.ApkPkg}, "sha256:base111"),
		locatedPackage(pkg.Package{Name: "musl", Version: "1.2.4-r2", Type: pkg.ApkPkg}, "sha256:base111"),
	)
}

func TestSyftExtractor(t *testing.T) {
	dockerfileLocation := types.ImageLocation{Origin: types.DockerFileOrigin, Path: "/path/to/Dockerfile", FinalStage: true}

	t.Run("ValidImages", func(t *testing.T) {
		catalog := &fakeCatalog{sboms: map[string]sbom.SBOM{"alpine:3.19": alpineSBOM(), "rabbitmq:3": testSBOM()}}
		images := []types.ImageModel{
			{Name: "alpine:3.19", ImageLocations: []types.ImageLocation{dockerfileLocation}},
			{Name: "rabbitmq:3", ImageLocations: []types.ImageLocation{{Origin: types.UserInput, Path: types.NoFilePath}}},
		}

		resolutions, err := newTestExtractor(catalog, ExtractorOptions{}).AnalyzeImages(context.Background(), images)
		require.NoError(t, err)

		require.Len(t, resolutions, 2)
		assert.Equal(t, "alpine:3.19", resolutions[0].ContainerImage.ImageId)
		assert.Equal(t, StatusResolved, resolutions[0].ContainerImage.Status)
		assert.Len(t, resolutions[0].ContainerPackages, 2)
		assert.Len(t, resolutions[0].ContainerImage.Layers, 2)
		assert.True(t, resolutions[0].ContainerImage.ImageLocations[0].FinalStage)
		assert.Empty(t, resolutions[0].CycloneDxSBOM)
		assert.Empty(t, resolutions[1].ContainerPackages)
		assert.NotNil(t, resolutions[1].ContainerPackages)
		assert.Equal(t, []string{"alpine:3.19", "rabbitmq:3"}, catalog.pulled)
	})

	t.Run("ImageWithTwoFileLocations", func(t *testing.T) {
		catalog := &fakeCatalog{sboms: map[string]sbom.SBOM{"alpine:3.19": alpineSBOM()}}
		images := []types.ImageModel{{Name: "alpine:3.19", ImageLocations: []types.ImageLocation{
			dockerfileLocation,
			{Origin: types.DockerFileOrigin, Path: "/path/to/AnotherDockerfile"},
		}}}

		resolutions, err := newTestExtractor(catalog, ExtractorOptions{}).AnalyzeImages(context.Background(), images)
		require.NoError(t, err)

		require.Len(t, resolutions, 1)
		assert.Len(t, resolutions[0].ContainerImage.ImageLocations, 2)
	})

	t.Run("ImagesAreNil", func(t *testing.T) {
		resolutions, err := newTestExtractor(&fakeCatalog{}, ExtractorOptions{}).AnalyzeImages(context.Background(), nil)
		require.NoError(t, err)
		assert.NotNil(t, resolutions)
		assert.Empty(t, resolutions)
	})

	t.Run("OneImageSuccessOneImageFailure", func(t *testing.T) {
		catalog := &fakeCatalog{sboms: map[string]sbom.SBOM{"alpine:3.19": alpineSBOM()}}
		images := []types.ImageModel{
			{Name: "alpine:3.19", ImageLocations: []types.ImageLocation{dockerfileLocation}},
			{Name: "invalid-image:latest", ImageLocations: []types.ImageLocation{dockerfileLocation}},
		}

		resolutions, err := newTestExtractor(catalog, ExtractorOptions{}).AnalyzeImages(context.Background(), images)
		require.NoError(t, err)
		require.Len(t, resolutions, 2)

		assert.Equal(t, StatusResolved, resolutions[0].ContainerImage.Status)

		failed := resolutions[1].ContainerImage
		assert.Equal(t, StatusFailed, failed.Status)
		assert.Equal(t, "invalid-image", failed.ImageName)
		assert.Equal(t, "latest", failed.ImageTag)
		assert.Equal(t, "The requested image is not found or is unavailable. Registry: index.docker.io", failed.ScanError)
		assert.Equal(t, []ImageLocation{{Origin: types.DockerFileOrigin, Path: "/path/to/Dockerfile", FinalStage: true}}, failed.ImageLocations)
		assert.Empty(t, failed.Layers)
		assert.Empty(t, resolutions[1].ContainerPackages)
	})

	t.Run("CycloneDxEnabled", func(t *testing.T) {
		catalog := &fakeCatalog{sboms: map[string]sbom.SBOM{"alpine:3.19": alpineSBOM()}}

		resolutions, err := newTestExtractor(catalog, ExtractorOptions{CycloneDx: true}).
			AnalyzeImages(context.Background(), []types.ImageModel{{Name: "alpine:3.19"}})
		require.NoError(t, err)

		require.Len(t, resolutions, 1)
		cycloneDx, _ := decodeCycloneDx(t, resolutions[0].CycloneDxSBOM)
		assert.Contains(t, componentsByName(t, cycloneDx), "busybox")
	})

	t.Run("CancelledContext", func(t *testing.T) {
		catalog := &fakeCatalog{sboms: map[string]sbom.SBOM{"alpine:3.19": alpineSBOM()}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		resolutions, err := newTestExtractor(catalog, ExtractorOptions{}).AnalyzeImages(ctx, []types.ImageModel{{Name: "alpine:3.19"}})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, resolutions)
		assert.Empty(t, catalog.pulled)
	})
}

func TestNewSyftPackagesExtractorRejectsInvalidPlatform(t *testing.T) {
	isolateAuthLookup(t)

	_, err := NewSyftPackagesExtractor(ExtractorOptions{Platform: "linux/amd64/v8/extra"})
	assert.Error(t, err)

	extractor, err := NewSyftPackagesExtractor(ExtractorOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPlatform, extractor.(*syftPackagesExtractor).options.Platform)
}

func TestContainerResolutionIncludesCycloneDxSBOM(t *testing.T) {
	resolution := ContainerResolution{
		ContainerImage:    ContainerImage{ImageName: "test-image", ImageTag: "latest"},
		ContainerPackages: []ContainerPackage{},
		CycloneDxSBOM:     "H4sIAAAAAAAAA...",
	}

	jsonData, err := json.Marshal(resolution)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(jsonData, &result))
	assert.Equal(t, "H4sIAAAAAAAAA...", result["cycloneDxSBOM"])
}

func TestOptionalFieldsOmittedWhenEmpty(t *testing.T) {
	resolution := ContainerResolution{
		ContainerImage:    ContainerImage{ImageName: "test-image", ImageTag: "latest", Status: StatusResolved},
		ContainerPackages: []ContainerPackage{},
	}

	jsonData, err := json.Marshal(resolution)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(jsonData, &result))
	assert.NotContains(t, result, "cycloneDxSBOM")

	image, ok := result["containerImage"].(map[string]interface{})
	require.True(t, ok)
	assert.NotContains(t, image, "ScanError")
	assert.Equal(t, StatusResolved, image["status"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		inputError    string
		expectedError string
	}{
		{
			name:          "TooManyRequests error",
			inputError:    "error: toomanyrequests: exceeded rate limit",
			expectedError: "Exceeded request limit to Docker Hub",
		},
		{
			name:          "Could not parse reference error",
			inputError:    "could not parse reference: invalid format at https://registry.example.com/v2/",
			expectedError: "Unable to parse image name or tag. Registry: registry.example.com",
		},
		{
			name:          "Could not parse reference without registry",
			inputError:    "could not parse reference: UPPER:case",
			expectedError: "Unable to parse image name or tag.",
		},
		{
			name:          "MANIFEST_UNKNOWN error",
			inputError:    "GET https://index.docker.io/v2/library/nonexistent/manifests/latest: MANIFEST_UNKNOWN: manifest unknown",
			expectedError: "The requested image is not found or is unavailable. Registry: index.docker.io",
		},
		{
			name:          "Authentication is required error",
			inputError:    "GET https://private-registry.example.com/v2/: UNAUTHORIZED: authentication is required",
			expectedError: "Retrieval from the private repository failed. Verify the credentials used for the integration. Registry: private-registry.example.com",
		},
		{
			name:          "Unauthorized error",
			inputError:    "GET https://registry.example.com/v2/library/image/manifests/tag: UNAUTHORIZED: authentication required",
			expectedError: "Access to the image is restricted. Verify the repository permissions and credentials. Registry: registry.example.com",
		},
		{
			name:          "No child with platform error",
			inputError:    "no child with platform linux/amd64 found in manifest list",
			expectedError: "The image is incompatible with the scanning tool. A Linux/AMD64 version is required.",
		},
		{
			name:          "Unsupported MediaType error",
			inputError:    "unsupported MediaType: application/vnd.oci.image.manifest.v1+json",
			expectedError: "The image format is outdated and unsupported. You may need to update or rebuild the image.",
		},
		{
			name:          "Generic error",
			inputError:    "some random error that doesn't match any pattern",
			expectedError: "Unexpected error occurred during image resolution: some random error that doesn't match any pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedError, mapErrorToCustomMessage(errors.New(tt.inputError)))
		})
	}
	assert.Empty(t, mapErrorToCustomMessage(nil))
}
