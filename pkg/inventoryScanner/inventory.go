package inventoryScanner

import (
	"github.com/Checkmarx/containers-dependency-resolver/pkg/dependencyResolver"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/remoteDocker"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/syftPackagesExtractor"
)

// Inventory is the merged outcome of one scan.
type Inventory struct {
	ProjectFolder string                                       `json:"projectFolder"`
	Results       []*dependencyResolver.ResolutionResult       `json:"results"`
	Dependencies  []dependencyResolver.Dependency              `json:"dependencies"`
	Excludes      []string                                     `json:"excludes,omitempty"`
	RemoteImages  []remoteDocker.RemoteImage                   `json:"remoteImages,omitempty"`
	Containers    []*syftPackagesExtractor.ContainerResolution `json:"containers,omitempty"`
	Warnings      []string                                     `json:"warnings,omitempty"`
}

func (i *Inventory) addWarning(warning string) {
	i.Warnings = append(i.Warnings, warning)
}
