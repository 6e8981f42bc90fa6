package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/claude-collective/collective/pkg/config"
	"github.com/claude-collective/collective/pkg/logger"
)

var (
	configFile string
	v          *viper.Viper
	cfg        *config.Config
	shutdown   func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "collective",
	Short: "Merge skill catalogs, resolve selections and compile agent documents",
	Long: `Collective loads skill catalogs from local directories and remote archives,
merges them into a single matrix, validates skill selections against the
matrix rules and compiles agent documents from the selected skills.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if shutdown == nil {
			return nil
		}
		return shutdown(cmd.Context())
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

// setup reads configuration, applies flag overrides and configures logging
// and tracing for the command about to run
func setup(cmd *cobra.Command) error {
	var err error
	v, err = config.New(configFile)
	if err != nil {
		return err
	}

	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"sources":         "source",
		"cache_dir":       "cache-dir",
		"workers":         "workers",
		"log_level":       "log-level",
		"log_format":      "log-format",
		"tracing.enabled": "tracing-enabled",
		"tracing.sampler": "tracing-sampler",
		"tracing.ratio":   "tracing-ratio",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return errors.Wrapf(err, "failed to bind flag --%s", flag)
		}
	}

	cfg, err = config.Load(v)
	if err != nil {
		return err
	}
	if err := logger.ConfigureGlobal(cfg.LogLevel, cfg.LogFormat, nil); err != nil {
		return err
	}

	shutdown, err = initTracing(cmd.Context(), cfg)
	if err != nil {
		logger.G(cmd.Context()).WithError(err).Warn("failed to initialize tracing")
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./.collective/config.yaml, then ~/.collective/config.yaml)")
	flags.StringSlice("source", nil, "source location in precedence order, highest first (repeatable)")
	flags.String("cache-dir", "", "directory for fetched remote sources")
	flags.Int("workers", 4, "maximum concurrent source loads")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")

	rootCmd.AddCommand(withTracing(sourcesCmd))
	rootCmd.AddCommand(withTracing(resolveCmd))
	rootCmd.AddCommand(withTracing(compileCmd))
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
