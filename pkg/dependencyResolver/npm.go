package dependencyResolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Checkmarx/containers-dependency-resolver/pkg/commandExecutor"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	packageJson        = "package.json"
	packageLockJson    = "package-lock.json"
	nodeModules        = "node_modules/"
	npmPreStepCommand  = "npm install --package-lock-only --ignore-scripts --no-audit --no-fund"
	npmDevScope        = "dev"
	npmDependenciesKey = "dependencies"
)

type NpmOptions struct {
	RunPreStep             bool
	IncludeDevDependencies bool
}

type npmResolver struct {
	options  NpmOptions
	executor commandExecutor.Executor
}

func NewNpmResolver(options NpmOptions, executor commandExecutor.Executor) DependencyResolver {
	return &npmResolver{options: options, executor: executor}
}

func (nr *npmResolver) ResolveDependencies(ctx context.Context, projectFolder, topLevelFolder string, bomFiles []string) (*ResolutionResult, error) {
	var dependencies []Dependency
	for _, bomFile := range bomFiles {
		if filepath.Base(bomFile) != packageJson {
			continue
		}
		found, err := nr.resolvePackage(ctx, projectFolder, bomFile)
		if err != nil {
			return nil, err
		}
		dependencies = append(dependencies, found...)
	}
	return NewResolutionResult(Npm, topLevelFolder, dependencies, resultExcludes(nr, projectFolder, topLevelFolder)), nil
}

func (nr *npmResolver) resolvePackage(ctx context.Context, projectFolder, bomFile string) ([]Dependency, error) {
	manifest, err := os.ReadFile(bomFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", bomFile, err)
	}
	if !gjson.ValidBytes(manifest) {
		return nil, fmt.Errorf("invalid json in %s", bomFile)
	}

	folder := filepath.Dir(bomFile)
	lockFile := filepath.Join(folder, packageLockJson)
	if _, err := os.Stat(lockFile); os.IsNotExist(err) && nr.options.RunPreStep && nr.executor != nil {
		nr.runPreStep(ctx, folder)
	}

	systemPath := relativeSystemPath(projectFolder, bomFile)
	declared := declaredNpmDependencies(manifest)

	lock, err := os.ReadFile(lockFile)
	if err != nil || !gjson.ValidBytes(lock) {
		log.Debug().Msgf("no usable %s next to %s, using declared dependencies", packageLockJson, systemPath)
		return nr.filterScope(declaredAsDependencies(declared, systemPath)), nil
	}

	lockSystemPath := relativeSystemPath(projectFolder, lockFile)
	var dependencies []Dependency
	if packages := gjson.GetBytes(lock, "packages"); packages.Exists() {
		dependencies = lockPackagesDependencies(packages, declared, lockSystemPath)
	} else {
		dependencies = lockTreeDependencies(gjson.GetBytes(lock, npmDependenciesKey), declared, lockSystemPath, true)
	}
	return nr.filterScope(dependencies), nil
}

// runPreStep produces a lock file. It is idempotent and a failure only degrades to declared versions.
func (nr *npmResolver) runPreStep(ctx context.Context, folder string) {
	log.Info().Msgf("running npm pre-step in %s", folder)
	result, err := nr.executor.Execute(ctx, folder, npmPreStepCommand)
	if err != nil {
		log.Warn().Err(err).Msgf("npm pre-step failed in %s", folder)
		return
	}
	if !result.Succeeded() {
		log.Warn().Msgf("npm pre-step failed in %s (exit code %d)", folder, result.ExitCode)
	}
}

func (nr *npmResolver) filterScope(dependencies []Dependency) []Dependency {
	if nr.options.IncludeDevDependencies {
		return dependencies
	}
	var filtered []Dependency
	for _, dependency := range dependencies {
		if dependency.Scope != npmDevScope {
			filtered = append(filtered, dependency)
		}
	}
	return filtered
}

// declaredNpmDependencies maps declared package names to their scope.
func declaredNpmDependencies(manifest []byte) map[string]declaredNpm {
	declared := make(map[string]declaredNpm)
	collect := func(key, scope string) {
		gjson.GetBytes(manifest, key).ForEach(func(name, version gjson.Result) bool {
			if _, exists := declared[name.String()]; !exists {
				declared[name.String()] = declaredNpm{version: version.String(), scope: scope}
			}
			return true
		})
	}
	collect(npmDependenciesKey, "")
	collect("optionalDependencies", "optional")
	collect("devDependencies", npmDevScope)
	return declared
}

type declaredNpm struct {
	version string
	scope   string
}

func declaredAsDependencies(declared map[string]declaredNpm, systemPath string) []Dependency {
	dependencies := make([]Dependency, 0, len(declared))
	for _, name := range sortedKeys(declared) {
		dependencies = append(dependencies, Dependency{
			ArtifactId: name,
			Version:    declared[name].version,
			Type:       Npm,
			Scope:      declared[name].scope,
			Direct:     true,
			SystemPath: systemPath,
		})
	}
	return dependencies
}

// lockPackagesDependencies reads lockfile v2/v3 "packages", keyed by install path.
func lockPackagesDependencies(packages gjson.Result, declared map[string]declaredNpm, systemPath string) []Dependency {
	var dependencies []Dependency
	packages.ForEach(func(key, value gjson.Result) bool {
		path := key.String()
		index := strings.LastIndex(path, nodeModules)
		if index < 0 || value.Get("link").Bool() {
			return true
		}
		name := path[index+len(nodeModules):]
		direct := strings.Count(path, nodeModules) == 1 && isDeclared(declared, name)

		scope := ""
		if value.Get("dev").Bool() {
			scope = npmDevScope
		} else if value.Get("optional").Bool() {
			scope = "optional"
		}

		dependencies = append(dependencies, Dependency{
			ArtifactId: name,
			Version:    value.Get("version").String(),
			Checksum:   value.Get("integrity").String(),
			Type:       Npm,
			Scope:      scope,
			Direct:     direct,
			SystemPath: systemPath,
			Filename:   value.Get("resolved").String(),
		})
		return true
	})
	return dependencies
}

// lockTreeDependencies reads the nested lockfile v1 "dependencies" tree.
func lockTreeDependencies(tree gjson.Result, declared map[string]declaredNpm, systemPath string, topLevel bool) []Dependency {
	var dependencies []Dependency
	tree.ForEach(func(name, value gjson.Result) bool {
		scope := ""
		if value.Get("dev").Bool() {
			scope = npmDevScope
		}
		dependencies = append(dependencies, Dependency{
			ArtifactId: name.String(),
			Version:    value.Get("version").String(),
			Checksum:   value.Get("integrity").String(),
			Type:       Npm,
			Scope:      scope,
			Direct:     topLevel && isDeclared(declared, name.String()),
			SystemPath: systemPath,
			Filename:   value.Get("resolved").String(),
		})
		if nested := value.Get(npmDependenciesKey); nested.Exists() {
			dependencies = append(dependencies, lockTreeDependencies(nested, declared, systemPath, false)...)
		}
		return true
	})
	return dependencies
}

func isDeclared(declared map[string]declaredNpm, name string) bool {
	_, ok := declared[name]
	return ok
}

func (nr *npmResolver) Excludes() []string {
	return []string{"**/node_modules/**", "**/bower_components/**"}
}

func (nr *npmResolver) SourceFileExtensions() []string {
	return []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"}
}

func (nr *npmResolver) DependencyType() DependencyType {
	return Npm
}

func (nr *npmResolver) BomPattern() string {
	return "**/" + packageJson
}

func (nr *npmResolver) LanguageExcludes() []string {
	return []string{"**/*.min.js", "**/node_modules/**"}
}
