package syftPackagesExtractor

import (
	"fmt"
	"regexp"
	"strings"
)

var registryHostPattern = regexp.MustCompile(`https?://([^/\s]+)`)

type errorRule struct {
	fragment     string
	message      string
	withRegistry bool
}

// order matters: "authentication is required" also shows up next to UNAUTHORIZED
var errorRules = []errorRule{
	{fragment: "toomanyrequests", message: "Exceeded request limit to Docker Hub"},
	{fragment: "could not parse reference", message: "Unable to parse image name or tag.", withRegistry: true},
	{fragment: "MANIFEST_UNKNOWN", message: "The requested image is not found or is unavailable.", withRegistry: true},
	{fragment: "authentication is required", message: "Retrieval from the private repository failed. Verify the credentials used for the integration.", withRegistry: true},
	{fragment: "UNAUTHORIZED", message: "Access to the image is restricted. Verify the repository permissions and credentials.", withRegistry: true},
	{fragment: "no child with platform", message: "The image is incompatible with the scanning tool. A Linux/AMD64 version is required."},
	{fragment: "unsupported MediaType", message: "The image format is outdated and unsupported. You may need to update or rebuild the image."},
}

// mapErrorToCustomMessage turns a pull or catalog failure into the message reported as ScanError.
func mapErrorToCustomMessage(err error) string {
	if err == nil {
		return ""
	}
	errorMessage := err.Error()

	for _, rule := range errorRules {
		if !strings.Contains(errorMessage, rule.fragment) {
			continue
		}
		if !rule.withRegistry {
			return rule.message
		}
		if registry := extractRegistry(errorMessage); registry != "" {
			return fmt.Sprintf("%s Registry: %s", rule.message, registry)
		}
		return rule.message
	}

	return fmt.Sprintf("Unexpected error occurred during image resolution: %s", errorMessage)
}

func extractRegistry(errorMessage string) string {
	match := registryHostPattern.FindStringSubmatch(errorMessage)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}
