package dependencyResolver

import (
	"fmt"
	"strings"
)

type DependencyType string

const (
	Npm    DependencyType = "Npm"
	Maven  DependencyType = "Maven"
	Nuget  DependencyType = "Nuget"
	Python DependencyType = "Python"
	Go     DependencyType = "Go"
	Docker DependencyType = "Docker"
)

// AllDependencyTypes returns every supported ecosystem in the default resolution priority.
func AllDependencyTypes() []DependencyType {
	return []DependencyType{Maven, Npm, Nuget, Python, Go, Docker}
}

func ParseDependencyType(value string) (DependencyType, error) {
	for _, t := range AllDependencyTypes() {
		if strings.EqualFold(string(t), strings.TrimSpace(value)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unsupported dependency type: %s", value)
}

// Dependency is a single resolved third-party component.
type Dependency struct {
	GroupId    string         `json:"groupId,omitempty"`
	ArtifactId string         `json:"artifactId"`
	Version    string         `json:"version,omitempty"`
	Checksum   string         `json:"checksum,omitempty"`
	Type       DependencyType `json:"dependencyType"`
	Scope      string         `json:"scope,omitempty"`
	Direct     bool           `json:"direct"`
	SystemPath string         `json:"systemPath,omitempty"` // bom file, relative to the scan root
	Filename   string         `json:"filename,omitempty"`
}

// Coordinates identifies the dependency regardless of where it was found.
func (d Dependency) Coordinates() string {
	if d.GroupId == "" {
		return fmt.Sprintf("%s:%s", d.ArtifactId, d.Version)
	}
	return fmt.Sprintf("%s:%s:%s", d.GroupId, d.ArtifactId, d.Version)
}

type BomFile struct {
	Path   string
	Type   DependencyType
	Folder string
}

type ResolutionResult struct {
	DependencyType DependencyType `json:"dependencyType"`
	TopLevelFolder string         `json:"topLevelFolder"`
	Dependencies   []Dependency   `json:"dependencies"`
	// Excludes are glob patterns relative to the scan root that later resolvers and the
	// file scanner must skip.
	Excludes []string `json:"excludes,omitempty"`
}

// NewResolutionResult builds a result whose dependency coordinates are unique.
// The first occurrence of a coordinate wins and the input order is preserved.
func NewResolutionResult(dependencyType DependencyType, topLevelFolder string, dependencies []Dependency, excludes []string) *ResolutionResult {
	seen := make(map[string]bool, len(dependencies))
	unique := make([]Dependency, 0, len(dependencies))
	for _, dependency := range dependencies {
		key := dependency.Coordinates()
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, dependency)
	}

	return &ResolutionResult{
		DependencyType: dependencyType,
		TopLevelFolder: topLevelFolder,
		Dependencies:   unique,
		Excludes:       excludes,
	}
}

// ProjectInventory is the merged output of every resolver for one scan root.
type ProjectInventory struct {
	ProjectFolder string              `json:"projectFolder"`
	Results       []*ResolutionResult `json:"results"`
	Dependencies  []Dependency        `json:"dependencies"`
	Excludes      []string            `json:"excludes,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
}

func (pi *ProjectInventory) DependenciesOfType(dependencyType DependencyType) []Dependency {
	var dependencies []Dependency
	for _, dependency := range pi.Dependencies {
		if dependency.Type == dependencyType {
			dependencies = append(dependencies, dependency)
		}
	}
	return dependencies
}
