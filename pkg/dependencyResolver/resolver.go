package dependencyResolver

import (
	"context"
	"path/filepath"
	"strings"
)

const (
	backSlash    = "\\"
	forwardSlash = "/"
)

// DependencyResolver is implemented once per supported ecosystem.
type DependencyResolver interface {
	// ResolveDependencies resolves the bom files found under topLevelFolder. It only reads the
	// filesystem, except for idempotent package manager invocations some ecosystems need to
	// produce a lock file.
	ResolveDependencies(ctx context.Context, projectFolder, topLevelFolder string, bomFiles []string) (*ResolutionResult, error)
	// Excludes are globs under which bom files are never handed to this resolver.
	Excludes() []string
	SourceFileExtensions() []string
	DependencyType() DependencyType
	BomPattern() string
	// LanguageExcludes are globs the file scanner skips once this ecosystem resolved a folder.
	LanguageExcludes() []string
}

// NormalizeLocalPath rewrites excludes so they are scoped to topFolderFound relative to the
// scan root. The result keeps the length and order of excludes.
func NormalizeLocalPath(parentFolder, topFolderFound string, excludes []string, folderToIgnore string) []string {
	normalizedRoot := filepath.Clean(parentFolder)

	// callers pass either the canonical root or the raw configured one; strip whichever
	// literally prefixes the folder
	var relative string
	if normalizedRoot == topFolderFound {
		relative = strings.TrimPrefix(topFolderFound, normalizedRoot)
	} else {
		relative = strings.TrimPrefix(topFolderFound, parentFolder)
	}
	relative = strings.ReplaceAll(relative, backSlash, forwardSlash)

	if len(relative) > 0 {
		relative = strings.TrimPrefix(relative, forwardSlash) + forwardSlash
	}

	prefix := relative
	if strings.TrimSpace(folderToIgnore) != "" {
		prefix = relative + folderToIgnore + forwardSlash
	}

	normalized := make([]string, 0, len(excludes))
	for _, exclude := range excludes {
		normalized = append(normalized, prefix+exclude)
	}
	return normalized
}

// resultExcludes scopes the resolver's language excludes and source files to the resolved folder.
func resultExcludes(resolver DependencyResolver, projectFolder, topLevelFolder string) []string {
	patterns := append([]string{}, resolver.LanguageExcludes()...)
	for _, extension := range resolver.SourceFileExtensions() {
		patterns = append(patterns, "**/*"+extension)
	}
	return NormalizeLocalPath(projectFolder, topLevelFolder, patterns, "")
}

// relativeSystemPath returns the bom file path relative to the scan root, forward-slash separated.
func relativeSystemPath(projectFolder, bomFile string) string {
	rel, err := filepath.Rel(projectFolder, bomFile)
	if err != nil {
		return filepath.ToSlash(bomFile)
	}
	return filepath.ToSlash(rel)
}
