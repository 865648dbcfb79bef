package dependencyResolver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/moby/buildkit/frontend/dockerfile/parser"
	"github.com/rs/zerolog/log"
)

const (
	DockerFinalStageScope = "final"
	DockerBuildStageScope = "stage"
	scratchImage          = "scratch"
)

type DockerOptions struct {
	IgnoreBuildStages bool
}

type dockerResolver struct {
	options DockerOptions
}

func NewDockerResolver(options DockerOptions) DependencyResolver {
	return &dockerResolver{options: options}
}

// baseImage is one FROM instruction after ARG substitution.
type baseImage struct {
	reference string
	alias     string
	line      int
}

func (dr *dockerResolver) ResolveDependencies(_ context.Context, projectFolder, topLevelFolder string, bomFiles []string) (*ResolutionResult, error) {
	var dependencies []Dependency
	for _, bomFile := range bomFiles {
		content, err := os.ReadFile(bomFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", bomFile, err)
		}
		images, err := parseDockerfileImages(content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", bomFile, err)
		}

		systemPath := relativeSystemPath(projectFolder, bomFile)
		stages := make(map[string]bool)
		for i, image := range images {
			final := i == len(images)-1
			isStage := stages[strings.ToLower(image.reference)]
			if image.alias != "" {
				stages[strings.ToLower(image.alias)] = true
			}
			if isStage || strings.EqualFold(image.reference, scratchImage) {
				continue
			}
			if !final && dr.options.IgnoreBuildStages {
				continue
			}

			dependency, err := dockerReferenceToDependency(image.reference)
			if err != nil {
				log.Warn().Msgf("skipping image %q in %s:%d: %v", image.reference, systemPath, image.line, err)
				continue
			}
			dependency.SystemPath = systemPath
			dependency.Scope = DockerBuildStageScope
			if final {
				dependency.Scope = DockerFinalStageScope
			}
			dependencies = append(dependencies, dependency)
		}
	}
	return NewResolutionResult(Docker, topLevelFolder, dependencies, resultExcludes(dr, projectFolder, topLevelFolder)), nil
}

// parseDockerfileImages returns the FROM images in order. Global ARG defaults are substituted;
// images that still reference an unknown variable are dropped.
func parseDockerfileImages(content []byte) ([]baseImage, error) {
	result, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	args := make(map[string]string)
	seenFrom := false
	var images []baseImage
	for _, node := range result.AST.Children {
		switch strings.ToLower(node.Value) {
		case "arg":
			if seenFrom || node.Next == nil {
				continue
			}
			for arg := node.Next; arg != nil; arg = arg.Next {
				key, value, _ := strings.Cut(arg.Value, "=")
				args[key] = strings.Trim(value, `"'`)
			}
		case "from":
			seenFrom = true
			if node.Next == nil {
				continue
			}
			reference, resolved := expandDockerArgs(node.Next.Value, args)
			if !resolved {
				log.Debug().Msgf("unresolved build argument in image %q at line %d", node.Next.Value, node.StartLine)
				continue
			}
			image := baseImage{reference: reference, line: node.StartLine}
			if as := node.Next.Next; as != nil && strings.EqualFold(as.Value, "as") && as.Next != nil {
				image.alias = as.Next.Value
			}
			images = append(images, image)
		}
	}
	return images, nil
}

func expandDockerArgs(value string, args map[string]string) (string, bool) {
	resolved := true
	expanded := os.Expand(value, func(key string) string {
		key, fallback, hasFallback := strings.Cut(key, ":-")
		if v, ok := args[key]; ok && v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		resolved = false
		return ""
	})
	return expanded, resolved && expanded != ""
}

// dockerReferenceToDependency maps registry/repository:tag@digest to dependency coordinates.
func dockerReferenceToDependency(reference string) (Dependency, error) {
	withoutDigest, digest, _ := strings.Cut(reference, "@")

	tag, err := name.NewTag(withoutDigest)
	if err != nil {
		return Dependency{}, err
	}
	if digest != "" {
		if _, err := name.NewDigest(tag.Context().Name() + "@" + digest); err != nil {
			return Dependency{}, err
		}
	}

	return Dependency{
		GroupId:    tag.RegistryStr(),
		ArtifactId: tag.RepositoryStr(),
		Version:    tag.TagStr(),
		Checksum:   digest,
		Type:       Docker,
		Direct:     true,
		Filename:   reference,
	}, nil
}

func (dr *dockerResolver) Excludes() []string {
	return []string{"**/node_modules/**", "**/vendor/**"}
}

func (dr *dockerResolver) SourceFileExtensions() []string {
	return []string{}
}

func (dr *dockerResolver) DependencyType() DependencyType {
	return Docker
}

func (dr *dockerResolver) BomPattern() string {
	return "**/{Dockerfile,Dockerfile.*,*.Dockerfile,Containerfile}"
}

func (dr *dockerResolver) LanguageExcludes() []string {
	return []string{}
}
