package dependencyResolver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
)

const (
	goMod = "go.mod"
	goSum = "go.sum"
)

type goResolver struct{}

func NewGoResolver() DependencyResolver {
	return &goResolver{}
}

func (gr *goResolver) ResolveDependencies(_ context.Context, projectFolder, topLevelFolder string, bomFiles []string) (*ResolutionResult, error) {
	var dependencies []Dependency
	for _, bomFile := range bomFiles {
		if filepath.Base(bomFile) != goMod {
			continue
		}
		found, err := parseGoModule(projectFolder, bomFile)
		if err != nil {
			return nil, err
		}
		dependencies = append(dependencies, found...)
	}
	return NewResolutionResult(Go, topLevelFolder, dependencies, resultExcludes(gr, projectFolder, topLevelFolder)), nil
}

func parseGoModule(projectFolder, path string) ([]Dependency, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	file, err := modfile.Parse(path, content, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	replacements := make(map[string]module.Version, len(file.Replace))
	for _, replace := range file.Replace {
		replacements[replace.Old.Path] = replace.New
		if replace.Old.Version != "" {
			replacements[replace.Old.Path+"@"+replace.Old.Version] = replace.New
		}
	}

	checksums := readGoSum(filepath.Join(filepath.Dir(path), goSum))
	systemPath := relativeSystemPath(projectFolder, path)

	var dependencies []Dependency
	for _, require := range file.Require {
		version := require.Mod
		if replacement, ok := lookupReplacement(replacements, require.Mod); ok {
			// local directory replacements are part of the project, not third-party code
			if replacement.Version == "" {
				continue
			}
			version = replacement
		}
		dependencies = append(dependencies, Dependency{
			ArtifactId: version.Path,
			Version:    version.Version,
			Checksum:   checksums[version.Path+"@"+version.Version],
			Type:       Go,
			Direct:     !require.Indirect,
			SystemPath: systemPath,
		})
	}
	return dependencies, nil
}

func lookupReplacement(replacements map[string]module.Version, mod module.Version) (module.Version, bool) {
	if replacement, ok := replacements[mod.Path+"@"+mod.Version]; ok {
		return replacement, true
	}
	replacement, ok := replacements[mod.Path]
	return replacement, ok
}

// readGoSum maps path@version to the module zip hash, ignoring go.mod-only hashes.
func readGoSum(path string) map[string]string {
	checksums := make(map[string]string)
	content, err := os.ReadFile(path)
	if err != nil {
		return checksums
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 || strings.HasSuffix(fields[1], "/"+goMod) {
			continue
		}
		checksums[fields[0]+"@"+fields[1]] = fields[2]
	}
	return checksums
}

func (gr *goResolver) Excludes() []string {
	return []string{"**/vendor/**", "**/testdata/**"}
}

func (gr *goResolver) SourceFileExtensions() []string {
	return []string{".go"}
}

func (gr *goResolver) DependencyType() DependencyType {
	return Go
}

func (gr *goResolver) BomPattern() string {
	return "**/" + goMod
}

func (gr *goResolver) LanguageExcludes() []string {
	return []string{"**/vendor/**"}
}
