package main

import (
	"encoding/json"
	"fmt"

	"github.com/Checkmarx/containers-dependency-resolver/pkg/commandExecutor"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/config"
	"github.com/Checkmarx/containers-dependency-resolver/pkg/inventoryScanner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var scanFlagKeys = map[string]string{
	"dir":           "scan.directory",
	"exclude":       "scan.excludes",
	"workers":       "scan.workers",
	"remote-docker": "remoteDocker.enabled",
	"scan-images":   "docker.scanImages",
	"cyclonedx":     "docker.cycloneDx",
	"platform":      "docker.platform",
}

func newScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:     "scan",
		Short:   "Scan a project folder and print its inventory as JSON",
		Example: "dependency-resolver scan --dir ./my-project --scan-images",
		Args:    cobra.NoArgs,
		RunE:    runScan,
	}

	flags := scanCmd.Flags()
	flags.StringP("dir", "d", ".", "Project folder to scan")
	flags.StringSlice("exclude", nil, "Glob patterns of paths to skip, relative to the project folder")
	flags.Int("workers", 4, "Concurrent resolutions per package manager")
	flags.Bool("remote-docker", false, "List images of the configured remote registries")
	flags.Bool("scan-images", false, "Catalog the packages of every discovered image")
	flags.Bool("cyclonedx", false, "Attach a CycloneDX SBOM to every cataloged image")
	flags.String("platform", "linux/amd64", "Platform used when pulling images")
	return scanCmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(configFile)
	if err != nil {
		return err
	}
	if err := config.BindFlags(v, cmd.Flags(), scanFlagKeys); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	log.Debug().Msgf("scanning %s", cfg.Scan.Directory)

	inventory, err := inventoryScanner.NewInventoryScanner(cfg, commandExecutor.NewExecutor()).Scan(cmd.Context())
	if err != nil {
		return err
	}
	log.Info().Msgf("scan finished with %d dependencies and %d warnings", len(inventory.Dependencies), len(inventory.Warnings))

	output, err := json.MarshalIndent(inventory, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return err
}
