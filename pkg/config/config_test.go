package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Checkmarx/containers-dependency-resolver/pkg/dependencyResolver"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/remoteDocker"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the standard config search away from the developer's files.
func isolate(t *testing.T) string {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	return home
}

func loadConfig(t *testing.T, configFile string) *Config {
	v, err := NewViper(configFile)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func writeConfig(t *testing.T, dir, content string) string {
	path := filepath.Join(dir, "dependency-resolver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	isolate(t)

	cfg := loadConfig(t, "")

	assert.Equal(t, ".", cfg.Scan.Directory)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.False(t, cfg.Scan.GlobCaseSensitive)
	assert.Equal(t, []string{"Maven", "Npm", "Nuget", "Python", "Go", "Docker"}, cfg.Resolvers.Order)
	assert.True(t, cfg.Resolvers.Npm.Enabled)
	assert.True(t, cfg.Resolvers.Npm.IncludeDevDependencies)
	assert.True(t, cfg.Resolvers.Docker.Enabled)
	assert.False(t, cfg.RemoteDocker.Enabled)
	assert.Equal(t, 3, cfg.RemoteDocker.Amazon.MaxAttempts)
	assert.Equal(t, remoteDocker.DefaultAwsLoginCommand, cfg.RemoteDocker.Amazon.LoginCommand)
	assert.Equal(t, "linux/amd64", cfg.Docker.Platform)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLFromHomeConfigDir(t *testing.T) {
	home := isolate(t)
	configDir := filepath.Join(home, ".config", "dependency-resolver")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	writeConfig(t, configDir, `
scan:
  directory: /srv/project
  excludes: ["**/testdata/**"]
  workers: 8
resolvers:
  order: [Npm, Maven]
  npm:
    runPreStep: true
  python:
    enabled: false
remoteDocker:
  enabled: true
  amazon:
    enabled: true
    registryIds: ["123456789012"]
    region: eu-west-1
  registries:
    - url: https://registry.example.com
      repositories: [team/api]
    - url: https://old.example.com
      disabled: true
docker:
  scanImages: true
  cycloneDx: true
`)

	cfg := loadConfig(t, "")

	assert.Equal(t, "/srv/project", cfg.Scan.Directory)
	assert.Equal(t, []string{"**/testdata/**"}, cfg.Scan.Excludes)
	assert.Equal(t, 8, cfg.Scan.Workers)
	assert.True(t, cfg.Resolvers.Npm.RunPreStep)
	assert.True(t, cfg.Resolvers.Npm.Enabled)
	assert.False(t, cfg.Resolvers.Python.Enabled)
	assert.True(t, cfg.Docker.ScanImages)

	registryOptions, err := cfg.RegistryOptions()
	require.NoError(t, err)
	assert.Equal(t, []dependencyResolver.DependencyType{dependencyResolver.Npm, dependencyResolver.Maven}, registryOptions.Order)
	assert.Equal(t, []dependencyResolver.DependencyType{dependencyResolver.Python}, registryOptions.Disabled)
	assert.True(t, registryOptions.Npm.RunPreStep)
	assert.Equal(t, 8, registryOptions.Workers)

	amazon := cfg.AmazonECROptions()
	assert.Equal(t, []string{"123456789012"}, amazon.RegistryIds)
	assert.Equal(t, "eu-west-1", amazon.Region)
	assert.Equal(t, 4, amazon.Workers)

	assert.Equal(t, []remoteDocker.GenericRegistryOptions{{
		URL:          "https://registry.example.com",
		Repositories: []string{"team/api"},
		Platform:     "linux/amd64",
		Workers:      4,
	}}, cfg.GenericRegistryOptions())

	extractor := cfg.ExtractorOptions()
	assert.True(t, extractor.CycloneDx)
	assert.Equal(t, "linux/amd64", extractor.Platform)
}

func TestExplicitConfigFile(t *testing.T) {
	isolate(t)

	cfg := loadConfig(t, writeConfig(t, t.TempDir(), "scan:\n  followSymlinks: true\n"))
	assert.True(t, cfg.Scan.FollowSymlinks)

	_, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, dependencyResolver.ErrConfiguration)

	_, err = NewViper(writeConfig(t, t.TempDir(), "scan: [unclosed"))
	assert.ErrorIs(t, err, dependencyResolver.ErrConfiguration)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	isolate(t)
	t.Setenv("DEPENDENCY_RESOLVER_SCAN_WORKERS", "2")
	t.Setenv("DEPENDENCY_RESOLVER_DOCKER_SCANIMAGES", "true")

	cfg := loadConfig(t, writeConfig(t, t.TempDir(), "scan:\n  workers: 6\n"))

	assert.Equal(t, 2, cfg.Scan.Workers)
	assert.True(t, cfg.Docker.ScanImages)
}

func TestBindFlags(t *testing.T) {
	isolate(t)
	v, err := NewViper("")
	require.NoError(t, err)

	flags := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	flags.String("dir", ".", "")
	flags.Bool("scan-images", false, "")
	require.NoError(t, BindFlags(v, flags, map[string]string{"dir": "scan.directory", "scan-images": "docker.scanImages"}))
	require.NoError(t, flags.Parse([]string{"--dir", "/work", "--scan-images"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/work", cfg.Scan.Directory)
	assert.True(t, cfg.Docker.ScanImages)

	assert.Error(t, BindFlags(v, flags, map[string]string{"missing": "scan.directory"}))
}

func TestValidate(t *testing.T) {
	projectDir := t.TempDir()
	regularFile := filepath.Join(projectDir, "file.txt")
	require.NoError(t, os.WriteFile(regularFile, []byte("x"), 0644))

	valid := func() *Config {
		return &Config{
			Scan:      ScanConfig{Directory: projectDir, Workers: 1},
			Resolvers: ResolversConfig{Order: []string{"Maven", "npm"}},
			RemoteDocker: RemoteDockerConfig{
				Workers: 1,
				Amazon:  AmazonConfig{Enabled: true, MaxAttempts: 3},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{name: "Valid", mutate: func(cfg *Config) {}},
		{name: "Empty directory", mutate: func(cfg *Config) { cfg.Scan.Directory = "" }, wantErr: true},
		{name: "Missing directory", mutate: func(cfg *Config) { cfg.Scan.Directory = filepath.Join(projectDir, "nope") }, wantErr: true},
		{name: "Directory is a file", mutate: func(cfg *Config) { cfg.Scan.Directory = regularFile }, wantErr: true},
		{name: "Zero workers", mutate: func(cfg *Config) { cfg.Scan.Workers = 0 }, wantErr: true},
		{name: "Malformed exclude", mutate: func(cfg *Config) { cfg.Scan.Excludes = []string{"src/[a-"} }, wantErr: true},
		{name: "Unknown resolver", mutate: func(cfg *Config) { cfg.Resolvers.Order = []string{"Cargo"} }, wantErr: true},
		{name: "Duplicate resolver", mutate: func(cfg *Config) { cfg.Resolvers.Order = []string{"Npm", "npm"} }, wantErr: true},
		{name: "Remote checks skipped when disabled", mutate: func(cfg *Config) { cfg.RemoteDocker.Workers = 0 }},
		{
			name: "Remote zero workers",
			mutate: func(cfg *Config) {
				cfg.RemoteDocker.Enabled = true
				cfg.RemoteDocker.Workers = 0
			},
			wantErr: true,
		},
		{
			name: "Amazon zero attempts",
			mutate: func(cfg *Config) {
				cfg.RemoteDocker.Enabled = true
				cfg.RemoteDocker.Amazon.MaxAttempts = 0
			},
			wantErr: true,
		},
		{
			name: "Registry without url",
			mutate: func(cfg *Config) {
				cfg.RemoteDocker.Enabled = true
				cfg.RemoteDocker.Registries = []RegistryConfig{{URL: " "}}
			},
			wantErr: true,
		},
		{
			name: "Disabled registry without url",
			mutate: func(cfg *Config) {
				cfg.RemoteDocker.Enabled = true
				cfg.RemoteDocker.Registries = []RegistryConfig{{Disabled: true}}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			err := cfg.Validate()
			if test.wantErr {
				assert.ErrorIs(t, err, dependencyResolver.ErrConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}
