package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
)

// NewPresetsCmd creates the presets command
func NewPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "presets",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "List the built-in sample detectors",
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSENSITIVE TYPE\tCONFIDENCE\tNAME")
			for _, d := range classify.SamplePresets() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.SensitiveTypeID, d.Confidence.Resolve(), d.Name)
			}
			return tw.Flush()
		},
	}
}
