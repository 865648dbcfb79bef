package remoteDocker

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog/log"
)

const (
	sha256Marker    = "sha256:"
	sha256HexLength = 64
)

// ExtractSHA256FromManifest returns the 64 hex characters of the config digest of an image manifest,
// without the "sha256:" prefix, or "" when none is found.
//
// The manifest is scanned, not parsed: the first "sha256:" is taken as the config digest because
// config precedes layers in the schema 2 and OCI manifest layouts. A manifest that reorders its keys
// breaks this.
func ExtractSHA256FromManifest(manifest string) string {
	extracted, err := extractSHA256(manifest)
	if err != nil {
		log.Debug().Err(err).Msg("image digest unknown")
		return ""
	}
	return extracted
}

func extractSHA256(manifest string) (string, error) {
	index := strings.Index(manifest, sha256Marker)
	if index < 0 {
		return "", fmt.Errorf("%w: no %s marker", ErrDigestExtraction, sha256Marker)
	}
	start := index + len(sha256Marker)
	if len(manifest)-start < sha256HexLength {
		return "", fmt.Errorf("%w: truncated digest", ErrDigestExtraction)
	}

	encoded := manifest[start : start+sha256HexLength]
	if err := digest.NewDigestFromEncoded(digest.SHA256, encoded).Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDigestExtraction, err)
	}
	return encoded, nil
}
