package dependencyResolver

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	pomXml         = "pom.xml"
	mavenTestScope = "test"
)

var mavenPropertyPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

type MavenOptions struct {
	IgnoreTestScope bool
}

type mavenResolver struct {
	options MavenOptions
}

func NewMavenResolver(options MavenOptions) DependencyResolver {
	return &mavenResolver{options: options}
}

type pomProject struct {
	XMLName              xml.Name        `xml:"project"`
	GroupId              string          `xml:"groupId"`
	ArtifactId           string          `xml:"artifactId"`
	Version              string          `xml:"version"`
	Parent               pomParent       `xml:"parent"`
	Properties           pomProperties   `xml:"properties"`
	Dependencies         []pomDependency `xml:"dependencies>dependency"`
	DependencyManagement []pomDependency `xml:"dependencyManagement>dependencies>dependency"`
	Modules              []string        `xml:"modules>module"`
}

type pomParent struct {
	GroupId    string `xml:"groupId"`
	ArtifactId string `xml:"artifactId"`
	Version    string `xml:"version"`
}

type pomProperties struct {
	Entries []pomProperty `xml:",any"`
}

type pomProperty struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type pomDependency struct {
	GroupId    string `xml:"groupId"`
	ArtifactId string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
	Type       string `xml:"type"`
	Optional   string `xml:"optional"`
}

type parsedPom struct {
	path       string
	project    pomProject
	properties map[string]string
}

func (mr *mavenResolver) ResolveDependencies(_ context.Context, projectFolder, topLevelFolder string, bomFiles []string) (*ResolutionResult, error) {
	var poms []*parsedPom
	for _, bomFile := range bomFiles {
		if filepath.Base(bomFile) != pomXml {
			continue
		}
		pom, err := parsePom(bomFile)
		if err != nil {
			return nil, err
		}
		poms = append(poms, pom)
	}

	// artifacts built by the project itself are not third-party dependencies
	modules := make(map[string]bool, len(poms))
	managed := make(map[string]string)
	for _, pom := range poms {
		modules[pom.groupId()+":"+pom.project.ArtifactId] = true
		for _, dependency := range pom.project.DependencyManagement {
			managed[pom.resolve(dependency.GroupId)+":"+pom.resolve(dependency.ArtifactId)] = pom.resolve(dependency.Version)
		}
	}

	var dependencies []Dependency
	for _, pom := range poms {
		systemPath := relativeSystemPath(projectFolder, pom.path)
		for _, declared := range pom.project.Dependencies {
			dependency := Dependency{
				GroupId:    pom.resolve(declared.GroupId),
				ArtifactId: pom.resolve(declared.ArtifactId),
				Version:    pom.resolve(declared.Version),
				Type:       Maven,
				Scope:      declared.Scope,
				Direct:     true,
				SystemPath: systemPath,
			}
			key := dependency.GroupId + ":" + dependency.ArtifactId
			if modules[key] {
				continue
			}
			if dependency.Scope == mavenTestScope && mr.options.IgnoreTestScope {
				continue
			}
			if dependency.Version == "" {
				dependency.Version = managed[key]
			}
			if strings.Contains(dependency.Version, "${") {
				log.Warn().Msgf("unresolved version %s for %s in %s", dependency.Version, key, systemPath)
			}
			dependency.Filename = mavenFilename(dependency, declared.Type)
			dependencies = append(dependencies, dependency)
		}
	}

	return NewResolutionResult(Maven, topLevelFolder, dependencies, resultExcludes(mr, projectFolder, topLevelFolder)), nil
}

func parsePom(path string) (*parsedPom, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var project pomProject
	if err := xml.Unmarshal(content, &project); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	pom := &parsedPom{path: path, project: project, properties: make(map[string]string)}
	for _, property := range project.Properties.Entries {
		pom.properties[property.XMLName.Local] = strings.TrimSpace(property.Value)
	}
	pom.properties["project.groupId"] = pom.groupId()
	pom.properties["project.artifactId"] = project.ArtifactId
	pom.properties["project.version"] = pom.version()
	pom.properties["project.parent.groupId"] = project.Parent.GroupId
	pom.properties["project.parent.version"] = project.Parent.Version
	pom.properties["pom.version"] = pom.version()
	pom.properties["version"] = pom.version()
	return pom, nil
}

// groupId and version are inherited from the parent when omitted.
func (p *parsedPom) groupId() string {
	if p.project.GroupId != "" {
		return p.project.GroupId
	}
	return p.project.Parent.GroupId
}

func (p *parsedPom) version() string {
	if p.project.Version != "" {
		return p.project.Version
	}
	return p.project.Parent.Version
}

// resolve substitutes ${...} properties, following chained properties a bounded number of times.
func (p *parsedPom) resolve(value string) string {
	value = strings.TrimSpace(value)
	for i := 0; i < 10 && strings.Contains(value, "${"); i++ {
		replaced := mavenPropertyPattern.ReplaceAllStringFunc(value, func(match string) string {
			name := mavenPropertyPattern.FindStringSubmatch(match)[1]
			if resolved, ok := p.properties[name]; ok && resolved != match {
				return resolved
			}
			return match
		})
		if replaced == value {
			break
		}
		value = replaced
	}
	return value
}

func mavenFilename(dependency Dependency, packaging string) string {
	if packaging == "" {
		packaging = "jar"
	}
	if dependency.Version == "" {
		return fmt.Sprintf("%s.%s", dependency.ArtifactId, packaging)
	}
	return fmt.Sprintf("%s-%s.%s", dependency.ArtifactId, dependency.Version, packaging)
}

func (mr *mavenResolver) Excludes() []string {
	return []string{"**/target/**"}
}

func (mr *mavenResolver) SourceFileExtensions() []string {
	return []string{".java", ".kt", ".scala", ".groovy", ".jar"}
}

func (mr *mavenResolver) DependencyType() DependencyType {
	return Maven
}

func (mr *mavenResolver) BomPattern() string {
	return "**/" + pomXml
}

func (mr *mavenResolver) LanguageExcludes() []string {
	return []string{"**/target/**"}
}
