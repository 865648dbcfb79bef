package remoteDocker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	configDigest = strings.Repeat("c", 64)
	layerDigest  = strings.Repeat("1", 64)
)

func testManifest(config string) string {
	return `{
   "schemaVersion": 2,
   "mediaType": "application/vnd.docker.distribution.manifest.v2+json",
   "config": {
      "mediaType": "application/vnd.docker.container.image.v1+json",
      "size": 1512,
      "digest": "sha256:` + config + `"
   },
   "layers": [
      {
         "mediaType": "application/vnd.docker.image.rootfs.diff.tar.gzip",
         "size": 3370628,
         "digest": "sha256:` + layerDigest + `"
      }
   ]
}`
}

func TestExtractSHA256FromManifest(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		expected string
	}{
		{name: "Config digest precedes layers", manifest: testManifest(configDigest), expected: configDigest},
		{name: "No marker", manifest: `{"schemaVersion": 2, "config": {}}`, expected: ""},
		{name: "Empty manifest", manifest: "", expected: ""},
		{name: "Truncated digest", manifest: `{"config": {"digest": "sha256:abc"}}`, expected: ""},
		{name: "Marker at the very end", manifest: "sha256:", expected: ""},
		{name: "Non hex characters", manifest: `"sha256:` + strings.Repeat("z", 64) + `"`, expected: ""},
		{name: "Exactly 64 characters", manifest: "sha256:" + configDigest, expected: configDigest},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, ExtractSHA256FromManifest(test.manifest))
		})
	}
}

func TestExtractSHA256ReturnsHexOnly(t *testing.T) {
	configHex := strings.Repeat("2c", 32)

	extracted := ExtractSHA256FromManifest(testManifest(configHex))

	assert.Len(t, extracted, 64)
	assert.Equal(t, configHex, extracted)
	assert.NotContains(t, extracted, "sha256:")
}

func TestExtractSHA256Errors(t *testing.T) {
	_, err := extractSHA256("no digest here")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDigestExtraction)
}

func TestDockerImageEquality(t *testing.T) {
	first := NewDockerImage("payments", "v3", configDigest)
	second := DockerImage{Digest: configDigest, Tag: "v3", Repository: "payments"}
	other := NewDockerImage("payments", "v3", layerDigest)

	assert.True(t, first.Equal(second))
	assert.Equal(t, first, second)
	assert.False(t, first.Equal(other))
	assert.True(t, first.HasKnownDigest())
	assert.False(t, NewDockerImage("payments", "v3", "").HasKnownDigest())
	assert.Equal(t, "sha256:"+configDigest, first.CanonicalDigest())
	assert.Empty(t, NewDockerImage("payments", "v3", "").CanonicalDigest())
	assert.Equal(t, "payments:v3@sha256:"+configDigest, first.String())
	assert.Equal(t, "payments:v3", NewDockerImage("payments", "v3", "").String())
}
