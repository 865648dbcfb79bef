package syftPackagesExtractor

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"

	"github.com/anchore/syft/syft/format"
	"github.com/anchore/syft/syft/format/cyclonedxjson"
	"github.com/anchore/syft/syft/sbom"
)

// tryGenerateCycloneDxSBOM returns the CycloneDX JSON document of s, gzipped and base64 encoded.
func tryGenerateCycloneDxSBOM(s sbom.SBOM) (string, error) {
	encoder, err := cyclonedxjson.NewFormatEncoderWithConfig(cyclonedxjson.DefaultEncoderConfig())
	if err != nil {
		return "", fmt.Errorf("failed to create CycloneDX encoder: %w", err)
	}

	document, err := format.Encode(s, encoder)
	if err != nil {
		return "", fmt.Errorf("failed to encode CycloneDX SBOM: %w", err)
	}

	var compressed bytes.Buffer
	gzipWriter := gzip.NewWriter(&compressed)
	if _, err = gzipWriter.Write(document); err != nil {
		return "", fmt.Errorf("failed to compress CycloneDX SBOM: %w", err)
	}
	if err = gzipWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return base64.StdEncoding.EncodeToString(compressed.Bytes()), nil
}
