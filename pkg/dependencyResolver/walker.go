package dependencyResolver

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
)

// globMatcher matches root-relative, forward-slash paths against doublestar globs.
type globMatcher struct {
	caseSensitive bool
}

func (gm globMatcher) matches(pattern, path string) bool {
	if !gm.caseSensitive {
		pattern = strings.ToLower(pattern)
		path = strings.ToLower(path)
	}
	matched, err := doublestar.Match(pattern, path)
	if err != nil {
		log.Debug().Err(err).Msgf("invalid glob %q", pattern)
		return false
	}
	return matched
}

func (gm globMatcher) matchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if gm.matches(pattern, path) {
			return true
		}
	}
	return false
}

// listFiles walks root once and returns every file as a root-relative forward-slash path.
// Directories matching an exclude are pruned; .git is always skipped.
func listFiles(root string, excludes []string, matcher globMatcher, followSymlinks bool) ([]string, error) {
	var files []string
	visited := make(map[string]bool)

	var walk func(dir, relativeDir string) error
	walk = func(dir, relativeDir string) error {
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Debug().Err(err).Msgf("skipping %s", path)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(filepath.Join(relativeDir, rel))
			if rel == "." {
				return nil
			}

			if d.IsDir() {
				if d.Name() == ".git" || matcher.matchesAny(excludes, rel) || matcher.matchesAny(excludes, rel+"/") {
					return filepath.SkipDir
				}
				return nil
			}

			if matcher.matchesAny(excludes, rel) {
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				return followSymlink(path, rel, followSymlinks, visited, walk, func() { files = append(files, rel) })
			}
			files = append(files, rel)
			return nil
		})
	}

	if abs, err := filepath.Abs(root); err == nil {
		visited[abs] = true
	}
	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return files, nil
}

// followSymlink keeps symlinked files and only descends into symlinked directories when asked to.
func followSymlink(path, rel string, followDirectories bool, visited map[string]bool, walk func(dir, relativeDir string) error, addFile func()) error {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		log.Debug().Err(err).Msgf("broken symlink %s", path)
		return nil
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		addFile()
		return nil
	}
	if !followDirectories || visited[target] {
		return nil
	}
	visited[target] = true
	return walk(target, rel)
}
