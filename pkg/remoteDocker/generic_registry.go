package remoteDocker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultPlatform = "linux/amd64"

type GenericRegistryOptions struct {
	URL          string
	Repositories []string
	Platform     string
	Workers      int
}

// registryCatalog is the part of the registry API a generic v2 registry is listed with.
type registryCatalog interface {
	Catalog(ctx context.Context, registry string) ([]string, error)
	ListTags(ctx context.Context, repository string) ([]string, error)
	Manifest(ctx context.Context, reference string) ([]byte, error)
}

type craneCatalog struct {
	keychain authn.Keychain
}

func (cc *craneCatalog) options(ctx context.Context) []crane.Option {
	return []crane.Option{crane.WithContext(ctx), crane.WithAuthFromKeychain(cc.keychain)}
}

func (cc *craneCatalog) Catalog(ctx context.Context, registry string) ([]string, error) {
	return crane.Catalog(registry, cc.options(ctx)...)
}

func (cc *craneCatalog) ListTags(ctx context.Context, repository string) ([]string, error) {
	return crane.ListTags(repository, cc.options(ctx)...)
}

func (cc *craneCatalog) Manifest(ctx context.Context, reference string) ([]byte, error) {
	return crane.Manifest(reference, cc.options(ctx)...)
}

// genericRegistry lists any OCI distribution registry. Credentials come from the docker
// keychain, so there is no manager to install.
type genericRegistry struct {
	registry name.Registry
	options  GenericRegistryOptions
	keychain authn.Keychain
	catalog  registryCatalog
	platform v1.Platform
}

func NewGenericRegistry(options GenericRegistryOptions) (RemoteRegistry, error) {
	return newGenericRegistry(options, authn.DefaultKeychain, &craneCatalog{keychain: authn.DefaultKeychain})
}

func newGenericRegistry(options GenericRegistryOptions, keychain authn.Keychain, catalog registryCatalog) (*genericRegistry, error) {
	platformValue := options.Platform
	if platformValue == "" {
		platformValue = defaultPlatform
	}
	platform, err := v1.ParsePlatform(platformValue)
	if err != nil {
		return nil, fmt.Errorf("invalid platform %s: %w", platformValue, err)
	}

	host := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(options.URL, "https://"), "http://"), "/")
	registry, err := name.NewRegistry(host)
	if err != nil {
		return nil, fmt.Errorf("invalid registry url %s: %w", options.URL, err)
	}
	if options.Workers < 1 {
		options.Workers = 1
	}
	return &genericRegistry{registry: registry, options: options, keychain: keychain, catalog: catalog, platform: *platform}, nil
}

func (gr *genericRegistry) Name() string {
	return gr.registry.RegistryStr()
}

func (gr *genericRegistry) Type() RegistryType {
	return GenericRegistry
}

func (gr *genericRegistry) IsRequiredRegistryManagerInstalled(_ context.Context) bool {
	return true
}

func (gr *genericRegistry) LoginToRemoteRegistry(ctx context.Context) bool {
	authenticator, err := authn.Resolve(ctx, gr.keychain, gr.registry)
	if err != nil {
		log.Err(err).Msgf("Could not resolve credentials for %s.", gr.Name())
		return false
	}
	if authenticator == authn.Anonymous {
		log.Debug().Msgf("no credentials for %s, using anonymous access", gr.Name())
	}
	return true
}

func (gr *genericRegistry) ListImagesOnRemoteRegistry(ctx context.Context) []DockerImage {
	repositories := gr.options.Repositories
	if len(repositories) == 0 {
		catalog, err := gr.catalog.Catalog(ctx, gr.registry.RegistryStr())
		if err != nil {
			log.Err(&RegistryCallError{Operation: "catalog", RegistryID: gr.Name(), Err: err}).Msg("Could not list repositories.")
			return nil
		}
		repositories = catalog
	}

	perRepository := make([][]DockerImage, len(repositories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(gr.options.Workers)
	for i, repository := range repositories {
		g.Go(func() error {
			perRepository[i] = gr.listRepositoryImages(gctx, repository)
			return nil
		})
	}
	_ = g.Wait()

	var images []DockerImage
	for _, repositoryImages := range perRepository {
		images = append(images, repositoryImages...)
	}
	return images
}

func (gr *genericRegistry) listRepositoryImages(ctx context.Context, repository string) []DockerImage {
	repositoryRef := gr.registry.Repo(repository).Name()
	tags, err := gr.catalog.ListTags(ctx, repositoryRef)
	if err != nil {
		log.Err(&RegistryCallError{Operation: "list-tags", Repository: repository, RegistryID: gr.Name(), Err: err}).Msg("Could not list tags.")
		return nil
	}

	var images []DockerImage
	for _, tag := range tags {
		manifest, err := gr.catalog.Manifest(ctx, repositoryRef+":"+tag)
		if err != nil {
			log.Err(&RegistryCallError{Operation: "get-manifest", Repository: repository, RegistryID: gr.Name(), Err: err}).Msgf("Could not get manifest of tag: %s.", tag)
			continue
		}

		child, isIndex, err := selectPlatformManifest(manifest, gr.platform)
		if err != nil {
			log.Err(&RegistryCallError{Operation: "get-manifest", Repository: repository, RegistryID: gr.Name(), Err: err}).Msgf("Digest of tag %s is unknown.", tag)
			images = append(images, NewDockerImage(repository, tag, ""))
			continue
		}
		if isIndex {
			manifest, err = gr.catalog.Manifest(ctx, repositoryRef+"@"+child.String())
			if err != nil {
				log.Err(&RegistryCallError{Operation: "get-manifest", Repository: repository, RegistryID: gr.Name(), Err: err}).Msgf("Could not get %s manifest of tag: %s.", gr.platform.String(), tag)
				images = append(images, NewDockerImage(repository, tag, ""))
				continue
			}
		}
		images = append(images, NewDockerImage(repository, tag, ExtractSHA256FromManifest(string(manifest))))
	}
	return images
}

// selectPlatformManifest returns the digest of the child manifest matching platform when manifest
// is an image index. The first digest of an index belongs to a child manifest, not to a config.
func selectPlatformManifest(manifest []byte, platform v1.Platform) (v1.Hash, bool, error) {
	index, err := v1.ParseIndexManifest(bytes.NewReader(manifest))
	if err != nil {
		return v1.Hash{}, false, nil
	}
	if !index.MediaType.IsIndex() && (index.MediaType != "" || len(index.Manifests) == 0) {
		return v1.Hash{}, false, nil
	}
	for _, descriptor := range index.Manifests {
		if descriptor.Platform != nil && descriptor.Platform.Satisfies(platform) {
			return descriptor.Digest, true, nil
		}
	}
	return v1.Hash{}, true, fmt.Errorf("no child with platform %s in index", platform.String())
}

func (gr *genericRegistry) GetImageFullURL(image DockerImage) string {
	if image.Repository == "" || image.Tag == "" {
		return ""
	}
	return gr.registry.Repo(image.Repository).Name() + ":" + image.Tag
}
