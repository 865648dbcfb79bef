package syftPackagesExtractor

const (
	StatusResolved = "Resolved"
	StatusFailed   = "Failed"
)

// imageConfig is the subset of the OCI image config needed to rebuild the layer history.
type imageConfig struct {
	History []historyEntry `json:"history"`
	Rootfs  rootfsConfig   `json:"rootfs"`
}

type historyEntry struct {
	CreatedBy  string `json:"created_by"`
	EmptyLayer bool   `json:"empty_layer"`
}

type rootfsConfig struct {
	DiffIds []string `json:"diff_ids"`
}

type ContainerResolution struct {
	ContainerImage    ContainerImage     `json:"containerImage"`
	ContainerPackages []ContainerPackage `json:"containerPackages"`
	CycloneDxSBOM     string             `json:"cycloneDxSBOM,omitempty"` // gzipped, base64 encoded
}

type ContainerImage struct {
	ImageName      string          `json:"imageName"`
	ImageTag       string          `json:"imageTag"`
	Distribution   string          `json:"distribution,omitempty"`
	ImageHash      string          `json:"imageHash,omitempty"`
	ImageId        string          `json:"imageId"`
	ImageLocations []ImageLocation `json:"imageLocations,omitempty"`
	Layers         []string        `json:"layers,omitempty"`
	History        []Layer         `json:"history,omitempty"`
	Status         string          `json:"status,omitempty"`
	ScanError      string          `json:"ScanError,omitempty"`
}

type ImageLocation struct {
	Origin     string `json:"origin"`
	Path       string `json:"path"`
	FinalStage bool   `json:"finalStage"`
}

type ContainerPackage struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Distribution  string   `json:"distribution,omitempty"`
	Type          string   `json:"type"`
	SourceName    string   `json:"sourceName,omitempty"`
	SourceVersion string   `json:"sourceVersion,omitempty"`
	Licenses      []string `json:"licenses,omitempty"`
	LayerIds      []string `json:"layerIds,omitempty"`
}

type Layer struct {
	Order   int    `json:"order"`
	Size    int64  `json:"size"`
	LayerId string `json:"layerId,omitempty"`
	Command string `json:"command,omitempty"`
}
