// Package main is the entry point for the pkghealth CLI, which rates the health of
// npm packages from the terminal using the same clients as the service.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"package-health/internal/config"
	"package-health/internal/fetch"
	"package-health/internal/github"
	"package-health/internal/npm"
	"package-health/internal/report"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the pkghealth CLI.
var rootCmd = &cobra.Command{
	Use:   "pkghealth",
	Short: "Rate the health of JavaScript packages",
	Long: `pkghealth gathers npm registry and GitHub signals for a package and rates
community adoption, release management, implementation footprint, documentation,
maintenance and responsiveness.

Packages are given by name (react, @types/node) or as npm package URLs
(pkg:npm/%40angular/core@17.0.0). Set GITHUB_TOKEN to raise the GitHub rate limit.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./pkghealth.yaml or ~/.config/pkghealth/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level on stderr (debug, info, warn, error)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pkghealth")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pkghealth"))
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// clients holds what the commands need, built from the loaded configuration.
type clients struct {
	getter   *fetch.Client
	registry *npm.Client
	reports  *report.Service
}

func (c *clients) Close() {
	c.getter.Close()
}

func newClients() (*clients, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	logLevel := new(slog.LevelVar)
	setLogLevel(level, logLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	getter := fetch.New(fetch.WithTimeout(cfg.RequestTimeout))
	registry := npm.NewClient(cfg.NpmRegistryURL, cfg.NpmDownloadsURL, getter, logger)
	ghClient, err := github.NewClient(cfg.GithubToken, cfg.GithubAPIURL, cfg.RequestTimeout, logger)
	if err != nil {
		getter.Close()
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	return &clients{
		getter:   getter,
		registry: registry,
		reports:  report.NewService(registry, ghClient, logger),
	}, nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "info":
		v.Set(slog.LevelInfo)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelWarn)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
