package dependencyResolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/Checkmarx/containers-dependency-resolver/pkg/commandExecutor"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type RegistryOptions struct {
	// Order is the fixed resolution priority; earlier ecosystems win duplicate coordinates.
	Order             []DependencyType
	Disabled          []DependencyType
	Excludes          []string
	GlobCaseSensitive bool
	FollowSymlinks    bool
	Workers           int
	Npm               NpmOptions
	Maven             MavenOptions
	Docker            DockerOptions
}

// Registry owns one resolver per ecosystem and merges their results into a project inventory.
type Registry struct {
	resolvers map[DependencyType]DependencyResolver
	order     []DependencyType
	excludes  []string
	matcher   globMatcher
	symlinks  bool
	workers   int
}

func NewRegistry(options RegistryOptions, executor commandExecutor.Executor) *Registry {
	order := options.Order
	if len(order) == 0 {
		order = AllDependencyTypes()
	}

	resolvers := make(map[DependencyType]DependencyResolver, len(order))
	for _, dependencyType := range order {
		if slices.Contains(options.Disabled, dependencyType) {
			continue
		}
		resolvers[dependencyType] = newResolver(dependencyType, options, executor)
	}

	return newRegistry(resolvers, order, options)
}

func newRegistry(resolvers map[DependencyType]DependencyResolver, order []DependencyType, options RegistryOptions) *Registry {
	workers := options.Workers
	if workers < 1 {
		workers = 1
	}
	return &Registry{
		resolvers: resolvers,
		order:     order,
		excludes:  options.Excludes,
		matcher:   globMatcher{caseSensitive: options.GlobCaseSensitive},
		symlinks:  options.FollowSymlinks,
		workers:   workers,
	}
}

// newResolver is exhaustive over DependencyType.
func newResolver(dependencyType DependencyType, options RegistryOptions, executor commandExecutor.Executor) DependencyResolver {
	switch dependencyType {
	case Npm:
		return NewNpmResolver(options.Npm, executor)
	case Maven:
		return NewMavenResolver(options.Maven)
	case Nuget:
		return NewNugetResolver()
	case Python:
		return NewPythonResolver()
	case Go:
		return NewGoResolver()
	case Docker:
		return NewDockerResolver(options.Docker)
	default:
		panic(fmt.Sprintf("Failed to create resolver for dependency type: %s", dependencyType))
	}
}

func (r *Registry) Resolvers() []DependencyResolver {
	var resolvers []DependencyResolver
	for _, dependencyType := range r.order {
		if resolver, ok := r.resolvers[dependencyType]; ok {
			resolvers = append(resolvers, resolver)
		}
	}
	return resolvers
}

// Resolve runs every resolver over projectFolder in priority order. Only a bad project folder
// is an error; resolver failures are recorded as warnings. The folder is made absolute first so
// that result excludes are always relative to the same root as the walked files.
func (r *Registry) Resolve(ctx context.Context, projectFolder string) (*ProjectInventory, error) {
	if projectFolder == "" {
		return nil, fmt.Errorf("%w: project folder is empty", ErrConfiguration)
	}
	projectFolder, err := filepath.Abs(projectFolder)
	if err != nil {
		return nil, fmt.Errorf("%w: project folder: %v", ErrConfiguration, err)
	}
	info, err := os.Stat(projectFolder)
	if err != nil {
		return nil, fmt.Errorf("%w: project folder %s: %v", ErrConfiguration, projectFolder, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: project folder %s is not a directory", ErrConfiguration, projectFolder)
	}

	files, err := listFiles(projectFolder, r.excludes, r.matcher, r.symlinks)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %v", ErrConfiguration, projectFolder, err)
	}
	log.Debug().Msgf("found %d files under %s", len(files), projectFolder)

	inventory := &ProjectInventory{ProjectFolder: projectFolder}
	resolved := make(map[string]bool)
	var frontier []string

	for _, resolver := range r.Resolvers() {
		bomFiles := r.selectBomFiles(resolver, files, frontier)
		if len(bomFiles) == 0 {
			continue
		}

		groups := groupByTopLevelFolder(projectFolder, bomFiles)
		results, warnings := r.resolveGroups(ctx, resolver, projectFolder, groups)
		inventory.Warnings = append(inventory.Warnings, warnings...)

		// merge sequentially so the frontier only changes between resolvers
		for _, result := range results {
			if result == nil {
				continue
			}
			var kept []Dependency
			for _, dependency := range result.Dependencies {
				key := dependency.Coordinates()
				if resolved[key] {
					continue
				}
				resolved[key] = true
				kept = append(kept, dependency)
			}
			result.Dependencies = kept
			inventory.Results = append(inventory.Results, result)
			inventory.Dependencies = append(inventory.Dependencies, kept...)
			frontier = append(frontier, result.Excludes...)
			log.Info().Msgf("resolved %d %s dependencies in %s", len(kept), result.DependencyType, result.TopLevelFolder)
		}
	}

	inventory.Excludes = frontier
	return inventory, nil
}

func (r *Registry) selectBomFiles(resolver DependencyResolver, files, frontier []string) []string {
	var bomFiles []string
	for _, file := range files {
		if !r.matcher.matches(resolver.BomPattern(), file) {
			continue
		}
		if r.matcher.matchesAny(resolver.Excludes(), file) || r.matcher.matchesAny(frontier, file) {
			continue
		}
		bomFiles = append(bomFiles, file)
	}
	return bomFiles
}

// folderGroup is one top-level folder and every bom file of one ecosystem below it.
type folderGroup struct {
	folder   string
	bomFiles []string
}

// groupByTopLevelFolder attaches each bom file to its shallowest bom folder ancestor.
func groupByTopLevelFolder(projectFolder string, relativeBomFiles []string) []folderGroup {
	folders := make(map[string][]string)
	for _, rel := range relativeBomFiles {
		absolute := filepath.Join(projectFolder, filepath.FromSlash(rel))
		folder := filepath.Dir(absolute)
		folders[folder] = append(folders[folder], absolute)
	}

	candidates := sortedKeys(folders)
	sort.SliceStable(candidates, func(i, j int) bool {
		return depth(candidates[i]) < depth(candidates[j])
	})

	var groups []folderGroup
	for _, folder := range candidates {
		attached := false
		for i := range groups {
			if isUnder(folder, groups[i].folder) {
				groups[i].bomFiles = append(groups[i].bomFiles, folders[folder]...)
				attached = true
				break
			}
		}
		if !attached {
			groups = append(groups, folderGroup{folder: folder, bomFiles: append([]string{}, folders[folder]...)})
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].folder < groups[j].folder
	})
	for i := range groups {
		sort.Strings(groups[i].bomFiles)
	}
	return groups
}

// resolveGroups resolves independent folders concurrently. Each call returns its own result,
// so nothing shared is mutated while goroutines run.
func (r *Registry) resolveGroups(ctx context.Context, resolver DependencyResolver, projectFolder string, groups []folderGroup) ([]*ResolutionResult, []string) {
	results := make([]*ResolutionResult, len(groups))
	failures := make([]error, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, group := range groups {
		g.Go(func() error {
			result, err := resolver.ResolveDependencies(gctx, projectFolder, group.folder, group.bomFiles)
			if err != nil {
				failures[i] = &ResolutionError{Type: resolver.DependencyType(), Folder: group.folder, Err: err}
				return nil
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	var warnings []string
	for _, failure := range failures {
		if failure != nil {
			log.Warn().Err(failure).Msg("resolution failed, continuing")
			warnings = append(warnings, failure.Error())
		}
	}
	return results, warnings
}
