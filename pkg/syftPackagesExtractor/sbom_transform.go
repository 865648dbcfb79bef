package syftPackagesExtractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Checkmarx/containers-types/types"
	"github.com/anchore/syft/syft/file"
	"github.com/anchore/syft/syft/linux"
	"github.com/anchore/syft/syft/pkg"
	"github.com/anchore/syft/syft/sbom"
	"github.com/anchore/syft/syft/source"
	"github.com/rs/zerolog/log"
)

const sha256Prefix = "sha256:"

var (
	errNotAnImage = errors.New("cataloged source is not an image")

	purlNamespacePattern = regexp.MustCompile(`/(.*?)/`)

	// package types whose names carry a group id
	groupedPackageTypes = map[string]bool{
		"java-archive": true,
		"maven":        true,
		"ios":          true,
		"pod":          true,
		"cocoapodspkg": true,
	}
)

func transformSBOMToContainerResolution(s sbom.SBOM, imageModel types.ImageModel) (*ContainerResolution, error) {
	metadata, ok := s.Source.Metadata.(source.ImageMetadata)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNotAnImage, imageModel.Name)
	}

	distro := getDistro(s.Artifacts.LinuxDistribution)
	history := extractHistory(metadata)
	imageName, imageTag := splitImageName(imageModel.Name)

	return &ContainerResolution{
		ContainerImage: ContainerImage{
			ImageName:      imageName,
			ImageTag:       imageTag,
			Distribution:   distro,
			ImageHash:      metadata.ID,
			ImageId:        imageModel.Name,
			ImageLocations: getImageLocations(imageModel.ImageLocations),
			Layers:         extractLayerIds(history),
			History:        history,
			Status:         StatusResolved,
		},
		ContainerPackages: extractImagePackages(s.Artifacts.Packages, distro),
	}, nil
}

// splitImageName separates the tag from a reference; a registry port is not a tag.
func splitImageName(imageRef string) (string, string) {
	withoutDigest, imageDigest, _ := strings.Cut(imageRef, "@")
	slash := strings.LastIndex(withoutDigest, "/")
	colon := strings.LastIndex(withoutDigest, ":")
	if colon > slash {
		return withoutDigest[:colon], withoutDigest[colon+1:]
	}
	if imageDigest != "" {
		return withoutDigest, imageDigest
	}
	return withoutDigest, "latest"
}

func extractImagePackages(packages *pkg.Collection, distro string) []ContainerPackage {
	containerPackages := []ContainerPackage{}
	if packages == nil {
		return containerPackages
	}

	for _, p := range uniqueSupportedPackages(packages) {
		sourceName, sourceVersion := getPackageRelationships(p)
		containerPackages = append(containerPackages, ContainerPackage{
			Name:          extractPackageName(p),
			Version:       p.Version,
			Distribution:  distro,
			Type:          packageTypeToPackageManager(p.Type),
			SourceName:    sourceName,
			SourceVersion: sourceVersion,
			Licenses:      extractPackageLicenses(p),
			LayerIds:      extractPackageLayerIds(p.Locations),
		})
	}
	return containerPackages
}

// uniqueSupportedPackages keeps one package per name and version. When several types report
// the same package the supported type sorting first wins; a lone package is kept whatever its type.
func uniqueSupportedPackages(packages *pkg.Collection) []pkg.Package {
	grouped := make(map[string][]pkg.Package)
	for p := range packages.Enumerate() {
		if p.Name == "" || p.Version == "" {
			continue
		}
		key := p.Name + "@" + p.Version
		grouped[key] = append(grouped[key], p)
	}

	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var unique []pkg.Package
	for _, key := range keys {
		group := grouped[key]
		if len(group) == 1 {
			unique = append(unique, group[0])
			continue
		}

		var supported []pkg.Package
		for _, p := range group {
			if packageTypeToPackageManager(p.Type) != string(Unsupported) {
				supported = append(supported, p)
			}
		}
		if len(supported) > 1 {
			sort.Slice(supported, func(i, j int) bool { return supported[i].Type < supported[j].Type })
			log.Warn().Msgf("Found same package id with different types: %s. Selecting %s.", key, supported[0].Type)
		}
		if len(supported) > 0 {
			unique = append(unique, supported[0])
		}
	}
	return unique
}

func extractPackageName(p pkg.Package) string {
	if !groupedPackageTypes[strings.ToLower(string(p.Type))] {
		return p.Name
	}
	return extractName(p.Name, p.PURL, getGroupId(p.Metadata))
}

func getGroupId(metadata interface{}) string {
	javaMetadata, ok := metadata.(pkg.JavaArchive)
	if !ok || javaMetadata.PomProperties == nil {
		return ""
	}
	return javaMetadata.PomProperties.GroupID
}

func extractName(packageName, purl, groupId string) string {
	if groupId == "" {
		match := purlNamespacePattern.FindStringSubmatch(purl)
		if len(match) < 2 {
			return packageName
		}
		groupId = strings.TrimSpace(match[1])
	}
	if groupId == "" || groupId == packageName {
		return packageName
	}
	return fmt.Sprintf("%s:%s", groupId, packageName)
}

// getPackageRelationships returns the source package of os packages.
func getPackageRelationships(p pkg.Package) (string, string) {
	switch metadata := p.Metadata.(type) {
	case pkg.ApkDBEntry:
		return sourcePackage(p, metadata.OriginPackage, metadata.Version)
	case pkg.DpkgDBEntry:
		return sourcePackage(p, metadata.Source, metadata.SourceVersion)
	case pkg.RpmDBEntry:
		return sourcePackage(p, metadata.SourceRpm, metadata.Version)
	default:
		return "", ""
	}
}

func sourcePackage(p pkg.Package, sourceName, sourceVersion string) (string, string) {
	if sourceName == "" {
		return "", ""
	}
	if sourceVersion == "" {
		sourceVersion = p.Version
	}
	return sourceName, sourceVersion
}

func getDistro(release *linux.Release) string {
	if release == nil || release.ID == "" || release.VersionID == "" {
		return types.NoFilePath
	}
	return fmt.Sprintf("%s:%s", release.ID, release.VersionID)
}

func extractPackageLayerIds(locations file.LocationSet) []string {
	var layerIds []string
	for _, location := range locations.ToSlice() {
		layerIds = append(layerIds, removeSha256(location.FileSystemID))
	}
	return layerIds
}

func extractPackageLicenses(p pkg.Package) []string {
	var licenses []string
	for _, license := range p.Licenses.ToSlice() {
		licenses = append(licenses, license.Value)
	}
	return licenses
}

func extractLayerIds(history []Layer) []string {
	var layerIds []string
	for _, layer := range history {
		if layer.LayerId != "" {
			layerIds = append(layerIds, layer.LayerId)
		}
	}
	return layerIds
}

// extractHistory pairs every non-empty history entry with the next rootfs diff id.
func extractHistory(metadata source.ImageMetadata) []Layer {
	var config imageConfig
	if err := json.Unmarshal(metadata.RawConfig, &config); err != nil {
		log.Debug().Err(err).Msgf("could not decode config of image %s", metadata.UserInput)
		return nil
	}

	var history []Layer
	diffIndex := 0
	for order, entry := range config.History {
		layer := Layer{Order: order, Command: entry.CreatedBy}
		if !entry.EmptyLayer && diffIndex < len(config.Rootfs.DiffIds) {
			layer.LayerId = removeSha256(config.Rootfs.DiffIds[diffIndex])
			layer.Size = getSize(layer.LayerId, metadata.Layers)
			diffIndex++
		}
		history = append(history, layer)
	}
	return history
}

func removeSha256(value string) string {
	return strings.TrimPrefix(value, sha256Prefix)
}

func getSize(layerId string, layers []source.LayerMetadata) int64 {
	for _, layer := range layers {
		if removeSha256(layer.Digest) == layerId {
			return layer.Size
		}
	}
	return 0
}

func getImageLocations(imageLocations []types.ImageLocation) []ImageLocation {
	var locations []ImageLocation
	for _, location := range imageLocations {
		locations = append(locations, ImageLocation{
			Origin:     location.Origin,
			Path:       location.Path,
			FinalStage: location.FinalStage,
		})
	}
	return locations
}

func GetImageLocationsPathsString(imageModel types.ImageModel) string {
	paths := make([]string, 0, len(imageModel.ImageLocations))
	for _, location := range imageModel.ImageLocations {
		paths = append(paths, location.Path)
	}
	return strings.Join(paths, ", ")
}
