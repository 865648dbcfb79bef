package dependencyResolver

import (
	"cmp"
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// isUnder reports whether path equals folder or lives below it.
func isUnder(path, folder string) bool {
	if path == folder {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(folder, string(filepath.Separator))+string(filepath.Separator))
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(path), forwardSlash)
}
