package syftPackagesExtractor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anchore/stereoscope/pkg/image"
	"github.com/rs/zerolog/log"
)

var (
	errPodmanAuthNotFound = errors.New("podman configuration not found")
	errInvalidAuth        = errors.New("invalid auth format")
)

type podmanAuthEntry struct {
	Auth          string `json:"auth"`
	IdentityToken string `json:"identitytoken,omitempty"`
}

// PodmanAuth is the containers auth.json format shared by podman, skopeo and buildah.
type PodmanAuth struct {
	Auths map[string]podmanAuthEntry `json:"auths"`
}

// podmanAuthPaths lists candidate auth files in lookup order.
func podmanAuthPaths() []string {
	var paths []string
	if authFile := os.Getenv("REGISTRY_AUTH_FILE"); authFile != "" {
		paths = append(paths, authFile)
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		paths = append(paths, filepath.Join(runtimeDir, "containers", "auth.json"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "containers", "auth.json"))
	} else {
		log.Debug().Err(err).Msg("failed to get user home directory")
	}
	return paths
}

// LoadPodmanAuth parses the first auth file found.
func LoadPodmanAuth() (*PodmanAuth, error) {
	for _, configPath := range podmanAuthPaths() {
		data, err := os.ReadFile(configPath)
		if err != nil {
			continue
		}
		log.Debug().Msgf("podman config file found: %s", configPath)

		var podmanAuth PodmanAuth
		if err := json.Unmarshal(data, &podmanAuth); err != nil {
			log.Debug().Err(err).Msgf("failed to parse Podman config file %s", configPath)
			return nil, errors.New("failed to parse Podman config file")
		}
		return &podmanAuth, nil
	}
	return nil, errPodmanAuthNotFound
}

// ParseAuth decodes a base64 "user:password" pair.
func ParseAuth(auth string) (string, string, error) {
	decoded, err := base64.StdEncoding.DecodeString(auth)
	if err != nil {
		return "", "", errors.New("failed to decode auth string")
	}

	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", errInvalidAuth
	}
	return username, password, nil
}

// CreateRegistryCredentials converts auth entries to credentials sorted by authority.
// Entries that cannot be decoded are skipped.
func CreateRegistryCredentials(authConfig *PodmanAuth) ([]image.RegistryCredentials, error) {
	var credentials []image.RegistryCredentials
	if authConfig == nil {
		return credentials, nil
	}

	for registry, auth := range authConfig.Auths {
		if auth.IdentityToken != "" {
			credentials = append(credentials, image.RegistryCredentials{Authority: registry, Token: auth.IdentityToken})
			continue
		}

		username, password, err := ParseAuth(auth.Auth)
		if err != nil {
			log.Debug().Err(err).Str("registry", registry).Msg("failed to parse credentials for registry")
			continue
		}
		credentials = append(credentials, image.RegistryCredentials{
			Authority: registry,
			Username:  username,
			Password:  password,
		})
	}

	sort.Slice(credentials, func(i, j int) bool {
		return credentials[i].Authority < credentials[j].Authority
	})
	log.Debug().Msgf("podman credentials found: %v", len(credentials))

	return credentials, nil
}

func loadPodmanCredentials() []image.RegistryCredentials {
	authConfig, err := LoadPodmanAuth()
	if err != nil {
		log.Info().Msgf("Continuing without Podman credentials: %v", err)
		return nil
	}
	credentials, _ := CreateRegistryCredentials(authConfig)
	return credentials
}
