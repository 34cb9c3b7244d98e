package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
)

// NewValidateCmd creates the validate command
func NewValidateCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:                   "validate",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Report detectors whose patterns fail to compile",
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := global.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cat, err := global.loadCatalog(logger)
			if err != nil {
				return err
			}

			set := cat.Current()
			invalid := classify.NewEngine().FindInvalidDetectors(set)
			out := cmd.OutOrStdout()
			for _, d := range invalid {
				fmt.Fprintf(out, "%s (%s):\n", d.ID, d.Source)
				for _, p := range d.Problems {
					fmt.Fprintf(out, "  %s %q: %s\n", p.Path, p.Pattern, p.Reason)
				}
			}
			if len(invalid) > 0 {
				return fmt.Errorf("%d of %d detectors are invalid", len(invalid), set.Len())
			}

			fmt.Fprintf(out, "%d detectors, all valid\n", set.Len())
			return nil
		},
	}
}
