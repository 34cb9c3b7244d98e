package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tributary-ai-services/sitengine/pkg/catalog"
	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/config"
	"github.com/Tributary-ai-services/sitengine/pkg/logging"
)

// globalOptions are shared by every subcommand
type globalOptions struct {
	catalogDir string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:                   "sitscan [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "sitscan classifies text for sensitive information types.",
		Long: `sitscan evaluates text against a catalog of regex and rule-pack detectors
and reports the sensitive information types found, with counts and confidence.
Without --catalog the built-in sample presets are used.`,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVarP(&opts.catalogDir, "catalog", "c", "", "directory of detector catalog YAML files")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		NewClassifyCmd(opts),
		NewValidateCmd(opts),
		NewPresetsCmd(),
	)
	return cmd
}

// logger writes console logs to stderr so stdout stays machine readable
func (o *globalOptions) logger() (*zap.Logger, error) {
	return logging.New(config.LoggingConfig{Level: o.logLevel, Format: "text", Output: "stderr"})
}

// loadCatalog returns the catalog from --catalog, or the sample presets
func (o *globalOptions) loadCatalog(logger *zap.Logger) (*catalog.Catalog, error) {
	if o.catalogDir == "" {
		return catalog.NewStatic(classify.DetectorSet{Detectors: classify.SamplePresets()}), nil
	}
	return catalog.New(o.catalogDir, logger)
}
