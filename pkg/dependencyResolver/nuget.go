package dependencyResolver

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	packagesConfig = "packages.config"
	csprojSuffix   = ".csproj"
)

type nugetResolver struct{}

func NewNugetResolver() DependencyResolver {
	return &nugetResolver{}
}

type csproj struct {
	XMLName    xml.Name           `xml:"Project"`
	References []packageReference `xml:"ItemGroup>PackageReference"`
}

type packageReference struct {
	Include        string `xml:"Include,attr"`
	Update         string `xml:"Update,attr"`
	VersionAttr    string `xml:"Version,attr"`
	VersionElement string `xml:"Version"`
	PrivateAssets  string `xml:"PrivateAssets,attr"`
}

type nugetPackages struct {
	XMLName  xml.Name       `xml:"packages"`
	Packages []nugetPackage `xml:"package"`
}

type nugetPackage struct {
	Id                    string `xml:"id,attr"`
	Version               string `xml:"version,attr"`
	TargetFramework       string `xml:"targetFramework,attr"`
	DevelopmentDependency bool   `xml:"developmentDependency,attr"`
}

func (nr *nugetResolver) ResolveDependencies(_ context.Context, projectFolder, topLevelFolder string, bomFiles []string) (*ResolutionResult, error) {
	var dependencies []Dependency
	for _, bomFile := range bomFiles {
		content, err := os.ReadFile(bomFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", bomFile, err)
		}

		systemPath := relativeSystemPath(projectFolder, bomFile)
		var found []Dependency
		switch {
		case strings.EqualFold(filepath.Base(bomFile), packagesConfig):
			found, err = parsePackagesConfig(content, systemPath)
		case strings.HasSuffix(strings.ToLower(bomFile), csprojSuffix):
			found, err = parseCsproj(content, systemPath)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", bomFile, err)
		}
		dependencies = append(dependencies, found...)
	}
	return NewResolutionResult(Nuget, topLevelFolder, dependencies, resultExcludes(nr, projectFolder, topLevelFolder)), nil
}

func parseCsproj(content []byte, systemPath string) ([]Dependency, error) {
	var project csproj
	if err := xml.Unmarshal(content, &project); err != nil {
		return nil, err
	}

	var dependencies []Dependency
	for _, reference := range project.References {
		name := reference.Include
		if name == "" {
			name = reference.Update
		}
		if name == "" {
			continue
		}
		version := reference.VersionAttr
		if version == "" {
			version = strings.TrimSpace(reference.VersionElement)
		}
		scope := ""
		if strings.EqualFold(reference.PrivateAssets, "all") {
			scope = "dev"
		}
		dependencies = append(dependencies, Dependency{
			ArtifactId: name,
			Version:    version,
			Type:       Nuget,
			Scope:      scope,
			Direct:     true,
			SystemPath: systemPath,
			Filename:   nugetFilename(name, version),
		})
	}
	return dependencies, nil
}

func parsePackagesConfig(content []byte, systemPath string) ([]Dependency, error) {
	var packages nugetPackages
	if err := xml.Unmarshal(content, &packages); err != nil {
		return nil, err
	}

	dependencies := make([]Dependency, 0, len(packages.Packages))
	for _, p := range packages.Packages {
		if p.Id == "" {
			continue
		}
		scope := ""
		if p.DevelopmentDependency {
			scope = "dev"
		}
		dependencies = append(dependencies, Dependency{
			ArtifactId: p.Id,
			Version:    p.Version,
			Type:       Nuget,
			Scope:      scope,
			Direct:     true,
			SystemPath: systemPath,
			Filename:   nugetFilename(p.Id, p.Version),
		})
	}
	return dependencies, nil
}

func nugetFilename(id, version string) string {
	return strings.ToLower(fmt.Sprintf("%s.%s.nupkg", id, version))
}

func (nr *nugetResolver) Excludes() []string {
	return []string{"**/bin/**", "**/obj/**", "**/packages/**"}
}

func (nr *nugetResolver) SourceFileExtensions() []string {
	return []string{".cs", ".vb", ".fs", ".dll"}
}

func (nr *nugetResolver) DependencyType() DependencyType {
	return Nuget
}

func (nr *nugetResolver) BomPattern() string {
	return "**/{*" + csprojSuffix + "," + packagesConfig + "}"
}

func (nr *nugetResolver) LanguageExcludes() []string {
	return []string{"**/bin/**", "**/obj/**"}
}
