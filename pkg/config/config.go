package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Checkmarx/containers-dependency-resolver/pkg/dependencyResolver"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/remoteDocker"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/syftPackagesExtractor"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "DEPENDENCY_RESOLVER"
	configName     = "dependency-resolver"
	defaultWorkers = 4
)

// Config is the complete configuration of a scan.
type Config struct {
	Scan         ScanConfig         `mapstructure:"scan"`
	Resolvers    ResolversConfig    `mapstructure:"resolvers"`
	RemoteDocker RemoteDockerConfig `mapstructure:"remoteDocker"`
	Docker       DockerConfig       `mapstructure:"docker"`
}

type ScanConfig struct {
	Directory         string   `mapstructure:"directory"`
	Excludes          []string `mapstructure:"excludes"`
	GlobCaseSensitive bool     `mapstructure:"globCaseSensitive"`
	FollowSymlinks    bool     `mapstructure:"followSymlinks"`
	Workers           int      `mapstructure:"workers"`
}

type ResolverToggle struct {
	Enabled bool `mapstructure:"enabled"`
}

type NpmConfig struct {
	ResolverToggle         `mapstructure:",squash"`
	RunPreStep             bool `mapstructure:"runPreStep"`
	IncludeDevDependencies bool `mapstructure:"includeDevDependencies"`
}

type MavenConfig struct {
	ResolverToggle  `mapstructure:",squash"`
	IgnoreTestScope bool `mapstructure:"ignoreTestScope"`
}

type DockerResolverConfig struct {
	ResolverToggle    `mapstructure:",squash"`
	IgnoreBuildStages bool `mapstructure:"ignoreBuildStages"`
}

type ResolversConfig struct {
	// Order is the resolution priority; earlier ecosystems win duplicate coordinates.
	Order  []string             `mapstructure:"order"`
	Npm    NpmConfig            `mapstructure:"npm"`
	Maven  MavenConfig          `mapstructure:"maven"`
	Nuget  ResolverToggle       `mapstructure:"nuget"`
	Python ResolverToggle       `mapstructure:"python"`
	Go     ResolverToggle       `mapstructure:"go"`
	Docker DockerResolverConfig `mapstructure:"docker"`
}

type RemoteDockerConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Workers    int              `mapstructure:"workers"`
	Amazon     AmazonConfig     `mapstructure:"amazon"`
	Registries []RegistryConfig `mapstructure:"registries"`
}

type AmazonConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	RegistryIds    []string `mapstructure:"registryIds"`
	ImageNames     []string `mapstructure:"imageNames"`
	Region         string   `mapstructure:"region"`
	MaxAttempts    int      `mapstructure:"maxAttempts"`
	VersionCommand string   `mapstructure:"versionCommand"`
	LoginCommand   string   `mapstructure:"loginCommand"`
}

// RegistryConfig describes a generic OCI distribution registry.
type RegistryConfig struct {
	URL          string   `mapstructure:"url"`
	Repositories []string `mapstructure:"repositories"`
	Disabled     bool     `mapstructure:"disabled"`
}

type DockerConfig struct {
	ScanImages bool   `mapstructure:"scanImages"`
	CycloneDx  bool   `mapstructure:"cycloneDx"`
	Platform   string `mapstructure:"platform"`
}

// NewViper returns a viper instance holding defaults, the config file and DEPENDENCY_RESOLVER_* env vars.
// Without an explicit file the standard locations are searched and a missing file is not an error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		log.Debug().Str("path", configFile).Msg("Using specified config file")
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: error reading config file: %v", dependencyResolver.ErrConfiguration, err)
		}
		log.Debug().Msg("No config file found, using defaults and command-line flags")
	} else {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.directory", ".")
	v.SetDefault("scan.excludes", []string{})
	v.SetDefault("scan.globCaseSensitive", false)
	v.SetDefault("scan.followSymlinks", false)
	v.SetDefault("scan.workers", defaultWorkers)

	order := make([]string, 0, len(dependencyResolver.AllDependencyTypes()))
	for _, dependencyType := range dependencyResolver.AllDependencyTypes() {
		order = append(order, string(dependencyType))
		v.SetDefault("resolvers."+strings.ToLower(string(dependencyType))+".enabled", true)
	}
	v.SetDefault("resolvers.order", order)
	v.SetDefault("resolvers.npm.runPreStep", false)
	v.SetDefault("resolvers.npm.includeDevDependencies", true)
	v.SetDefault("resolvers.maven.ignoreTestScope", false)
	v.SetDefault("resolvers.docker.ignoreBuildStages", false)

	v.SetDefault("remoteDocker.enabled", false)
	v.SetDefault("remoteDocker.workers", defaultWorkers)
	v.SetDefault("remoteDocker.amazon.enabled", false)
	v.SetDefault("remoteDocker.amazon.registryIds", []string{})
	v.SetDefault("remoteDocker.amazon.imageNames", []string{})
	v.SetDefault("remoteDocker.amazon.region", "")
	v.SetDefault("remoteDocker.amazon.maxAttempts", 3)
	v.SetDefault("remoteDocker.amazon.versionCommand", remoteDocker.DefaultAwsVersionCommand)
	v.SetDefault("remoteDocker.amazon.loginCommand", remoteDocker.DefaultAwsLoginCommand)

	v.SetDefault("docker.scanImages", false)
	v.SetDefault("docker.cycloneDx", false)
	v.SetDefault("docker.platform", syftPackagesExtractor.DefaultPlatform)
}

// BindFlags binds flags to viper keys so that flags override the config file and env.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, flagMappings map[string]string) error {
	for flagName, viperKey := range flagMappings {
		flag := flags.Lookup(flagName)
		if flag == nil {
			return fmt.Errorf("unknown flag %s for key %s", flagName, viperKey)
		}
		if err := v.BindPFlag(viperKey, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s to key %s: %w", flagName, viperKey, err)
		}
	}
	return nil
}

func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: error unmarshaling config: %v", dependencyResolver.ErrConfiguration, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting wrapped in dependencyResolver.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", dependencyResolver.ErrConfiguration, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Scan.Directory == "" {
		return errors.New("scan directory is empty")
	}
	info, err := os.Stat(c.Scan.Directory)
	if err != nil {
		return fmt.Errorf("scan directory %s: %w", c.Scan.Directory, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scan directory %s is not a directory", c.Scan.Directory)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan workers must be at least 1, got %d", c.Scan.Workers)
	}
	for _, exclude := range c.Scan.Excludes {
		if !doublestar.ValidatePattern(exclude) {
			return fmt.Errorf("malformed exclude pattern %q", exclude)
		}
	}
	if _, err := c.dependencyOrder(); err != nil {
		return err
	}

	if !c.RemoteDocker.Enabled {
		return nil
	}
	if c.RemoteDocker.Workers < 1 {
		return fmt.Errorf("remote docker workers must be at least 1, got %d", c.RemoteDocker.Workers)
	}
	if c.RemoteDocker.Amazon.Enabled && c.RemoteDocker.Amazon.MaxAttempts < 1 {
		return fmt.Errorf("amazon maxAttempts must be at least 1, got %d", c.RemoteDocker.Amazon.MaxAttempts)
	}
	for i, registry := range c.RemoteDocker.Registries {
		if !registry.Disabled && strings.TrimSpace(registry.URL) == "" {
			return fmt.Errorf("remote registry %d has an empty url", i)
		}
	}
	return nil
}

func (c *Config) dependencyOrder() ([]dependencyResolver.DependencyType, error) {
	seen := make(map[dependencyResolver.DependencyType]bool, len(c.Resolvers.Order))
	var order []dependencyResolver.DependencyType
	for _, name := range c.Resolvers.Order {
		dependencyType, err := dependencyResolver.ParseDependencyType(name)
		if err != nil {
			return nil, fmt.Errorf("resolvers.order: %w", err)
		}
		if seen[dependencyType] {
			return nil, fmt.Errorf("resolvers.order: %s listed twice", dependencyType)
		}
		seen[dependencyType] = true
		order = append(order, dependencyType)
	}
	return order, nil
}

func (c *Config) disabledResolvers() []dependencyResolver.DependencyType {
	enabled := map[dependencyResolver.DependencyType]bool{
		dependencyResolver.Npm:    c.Resolvers.Npm.Enabled,
		dependencyResolver.Maven:  c.Resolvers.Maven.Enabled,
		dependencyResolver.Nuget:  c.Resolvers.Nuget.Enabled,
		dependencyResolver.Python: c.Resolvers.Python.Enabled,
		dependencyResolver.Go:     c.Resolvers.Go.Enabled,
		dependencyResolver.Docker: c.Resolvers.Docker.Enabled,
	}

	var disabled []dependencyResolver.DependencyType
	for _, dependencyType := range dependencyResolver.AllDependencyTypes() {
		if !enabled[dependencyType] {
			disabled = append(disabled, dependencyType)
		}
	}
	return disabled
}

func (c *Config) RegistryOptions() (dependencyResolver.RegistryOptions, error) {
	order, err := c.dependencyOrder()
	if err != nil {
		return dependencyResolver.RegistryOptions{}, fmt.Errorf("%w: %v", dependencyResolver.ErrConfiguration, err)
	}
	return dependencyResolver.RegistryOptions{
		Order:             order,
		Disabled:          c.disabledResolvers(),
		Excludes:          c.Scan.Excludes,
		GlobCaseSensitive: c.Scan.GlobCaseSensitive,
		FollowSymlinks:    c.Scan.FollowSymlinks,
		Workers:           c.Scan.Workers,
		Npm: dependencyResolver.NpmOptions{
			RunPreStep:             c.Resolvers.Npm.RunPreStep,
			IncludeDevDependencies: c.Resolvers.Npm.IncludeDevDependencies,
		},
		Maven:  dependencyResolver.MavenOptions{IgnoreTestScope: c.Resolvers.Maven.IgnoreTestScope},
		Docker: dependencyResolver.DockerOptions{IgnoreBuildStages: c.Resolvers.Docker.IgnoreBuildStages},
	}, nil
}

func (c *Config) AmazonECROptions() remoteDocker.AmazonECROptions {
	amazon := c.RemoteDocker.Amazon
	return remoteDocker.AmazonECROptions{
		RegistryIds:    amazon.RegistryIds,
		ImageNames:     amazon.ImageNames,
		Region:         amazon.Region,
		MaxAttempts:    amazon.MaxAttempts,
		VersionCommand: amazon.VersionCommand,
		LoginCommand:   amazon.LoginCommand,
		Workers:        c.RemoteDocker.Workers,
	}
}

// GenericRegistryOptions returns the enabled generic registries.
func (c *Config) GenericRegistryOptions() []remoteDocker.GenericRegistryOptions {
	var options []remoteDocker.GenericRegistryOptions
	for _, registry := range c.RemoteDocker.Registries {
		if registry.Disabled {
			continue
		}
		options = append(options, remoteDocker.GenericRegistryOptions{
			URL:          registry.URL,
			Repositories: registry.Repositories,
			Platform:     c.Docker.Platform,
			Workers:      c.RemoteDocker.Workers,
		})
	}
	return options
}

func (c *Config) ExtractorOptions() syftPackagesExtractor.ExtractorOptions {
	return syftPackagesExtractor.ExtractorOptions{
		Platform:  c.Docker.Platform,
		CycloneDx: c.Docker.CycloneDx,
	}
}
