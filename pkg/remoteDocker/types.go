package remoteDocker

import (
	"fmt"

	"github.com/opencontainers/go-digest"
)

// DockerImage identifies an image by repository, tag and canonical digest. The digest is the
// identity; tags move. Digest holds the 64 hex characters without the algorithm prefix. An empty
// digest means the identity is unknown, not that the image is absent.
type DockerImage struct {
	Repository string `json:"repository"`
	Tag        string `json:"tag,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

func NewDockerImage(repository, tag, digest string) DockerImage {
	return DockerImage{Repository: repository, Tag: tag, Digest: digest}
}

func (di DockerImage) Equal(other DockerImage) bool {
	return di == other
}

func (di DockerImage) HasKnownDigest() bool {
	return di.Digest != ""
}

// CanonicalDigest returns the digest in "sha256:<hex>" form, as Dockerfiles pin it, or "".
func (di DockerImage) CanonicalDigest() string {
	if di.Digest == "" {
		return ""
	}
	return digest.NewDigestFromEncoded(digest.SHA256, di.Digest).String()
}

func (di DockerImage) String() string {
	if di.Digest == "" {
		return fmt.Sprintf("%s:%s", di.Repository, di.Tag)
	}
	return fmt.Sprintf("%s:%s@%s", di.Repository, di.Tag, di.CanonicalDigest())
}

type RegistryType string

const (
	AmazonECRRegistry RegistryType = "AmazonECR"
	GenericRegistry   RegistryType = "Generic"
)

// RemoteImage is a registry-listed image together with its pullable reference.
type RemoteImage struct {
	Registry RegistryType `json:"registry"`
	Image    DockerImage  `json:"image"`
	FullURL  string       `json:"fullUrl,omitempty"`
}
