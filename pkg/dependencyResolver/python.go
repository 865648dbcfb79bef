package dependencyResolver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	pythonNameSeparators = regexp.MustCompile(`[-_.]+`)
	// name, optional extras, optional version specifier
	requirementPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*(.*)$`)
)

type pythonResolver struct{}

func NewPythonResolver() DependencyResolver {
	return &pythonResolver{}
}

func (pr *pythonResolver) ResolveDependencies(_ context.Context, projectFolder, topLevelFolder string, bomFiles []string) (*ResolutionResult, error) {
	parser := &requirementsParser{projectFolder: projectFolder, visited: make(map[string]bool), constraints: make(map[string]string)}
	var dependencies []Dependency
	for _, bomFile := range bomFiles {
		found, err := parser.parse(bomFile)
		if err != nil {
			return nil, err
		}
		dependencies = append(dependencies, found...)
	}
	parser.applyConstraints(dependencies)
	return NewResolutionResult(Python, topLevelFolder, dependencies, resultExcludes(pr, projectFolder, topLevelFolder)), nil
}

type requirementOption int

const (
	requirementOptionNone requirementOption = iota
	requirementOptionInclude
	requirementOptionConstraint
)

// requirementsParser follows -r includes once each. Constraint files (-c) never add packages;
// their pins only fill the version of packages declared without one.
type requirementsParser struct {
	projectFolder string
	visited       map[string]bool
	constraints   map[string]string
}

func (rp *requirementsParser) parse(path string) ([]Dependency, error) {
	if rp.visited[path] {
		return nil, nil
	}
	rp.visited[path] = true

	lines, err := readRequirementLines(path)
	if err != nil {
		return nil, err
	}

	systemPath := relativeSystemPath(rp.projectFolder, path)
	var dependencies []Dependency
	for _, line := range lines {
		option, target := requirementReference(line)
		switch option {
		case requirementOptionInclude:
			nested, err := rp.parse(filepath.Join(filepath.Dir(path), target))
			if err != nil {
				log.Warn().Err(err).Msgf("could not read included requirements %s", target)
				continue
			}
			dependencies = append(dependencies, nested...)
			continue
		case requirementOptionConstraint:
			rp.readConstraints(filepath.Join(filepath.Dir(path), target))
			continue
		}
		if strings.HasPrefix(line, "-") {
			continue
		}

		if dependency, ok := parseRequirementLine(line); ok {
			dependency.SystemPath = systemPath
			dependencies = append(dependencies, dependency)
		}
	}
	return dependencies, nil
}

func (rp *requirementsParser) readConstraints(path string) {
	if rp.visited[path] {
		return
	}
	rp.visited[path] = true

	lines, err := readRequirementLines(path)
	if err != nil {
		log.Warn().Err(err).Msgf("could not read constraints %s", path)
		return
	}
	for _, line := range lines {
		if option, target := requirementReference(line); option == requirementOptionConstraint {
			rp.readConstraints(filepath.Join(filepath.Dir(path), target))
			continue
		}
		if strings.HasPrefix(line, "-") {
			continue
		}
		if pin, ok := parseRequirementLine(line); ok && pin.Version != "" {
			if _, exists := rp.constraints[pin.ArtifactId]; !exists {
				rp.constraints[pin.ArtifactId] = pin.Version
			}
		}
	}
}

func (rp *requirementsParser) applyConstraints(dependencies []Dependency) {
	for i := range dependencies {
		if dependencies[i].Version != "" {
			continue
		}
		if version, ok := rp.constraints[dependencies[i].ArtifactId]; ok {
			dependencies[i].Version = version
		}
	}
}

func readRequirementLines(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		if line := stripRequirementComment(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return lines, nil
}

func stripRequirementComment(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return ""
	}
	if index := strings.Index(line, " #"); index >= 0 {
		line = line[:index]
	}
	return strings.TrimSpace(line)
}

func requirementReference(line string) (requirementOption, string) {
	options := []struct {
		flag   string
		option requirementOption
	}{
		{"-r", requirementOptionInclude},
		{"--requirement", requirementOptionInclude},
		{"-c", requirementOptionConstraint},
		{"--constraint", requirementOptionConstraint},
	}
	for _, candidate := range options {
		if strings.HasPrefix(line, candidate.flag+" ") || strings.HasPrefix(line, candidate.flag+"=") {
			return candidate.option, strings.TrimSpace(strings.TrimLeft(line[len(candidate.flag):], "= "))
		}
	}
	return requirementOptionNone, ""
}

// parseRequirementLine only treats == and === specifiers as a resolved version.
func parseRequirementLine(line string) (Dependency, bool) {
	if index := strings.Index(line, ";"); index >= 0 {
		line = strings.TrimSpace(line[:index])
	}
	if strings.Contains(line, "://") || strings.Contains(line, " @ ") {
		return Dependency{}, false
	}

	match := requirementPattern.FindStringSubmatch(line)
	if match == nil {
		return Dependency{}, false
	}

	version := ""
	specifier := strings.TrimSpace(match[3])
	if strings.HasPrefix(specifier, "===") {
		version = strings.TrimSpace(specifier[3:])
	} else if strings.HasPrefix(specifier, "==") && !strings.Contains(specifier, ",") {
		version = strings.TrimSpace(specifier[2:])
	}
	if strings.Contains(version, "*") {
		version = ""
	}

	return Dependency{
		ArtifactId: normalizePythonName(match[1]),
		Version:    version,
		Type:       Python,
		Direct:     true,
	}, true
}

func normalizePythonName(name string) string {
	return strings.ToLower(pythonNameSeparators.ReplaceAllString(name, "-"))
}

func (pr *pythonResolver) Excludes() []string {
	return []string{"**/venv/**", "**/.venv/**", "**/site-packages/**", "**/.tox/**"}
}

func (pr *pythonResolver) SourceFileExtensions() []string {
	return []string{".py"}
}

func (pr *pythonResolver) DependencyType() DependencyType {
	return Python
}

func (pr *pythonResolver) BomPattern() string {
	return "**/requirements*.txt"
}

func (pr *pythonResolver) LanguageExcludes() []string {
	return []string{"**/venv/**", "**/.venv/**", "**/__pycache__/**"}
}
