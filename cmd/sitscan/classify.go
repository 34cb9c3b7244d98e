package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/pipeline"
	"github.com/Tributary-ai-services/sitengine/pkg/stream"
)

// errSensitiveFound is returned by classify --fail-on-match when anything fired
var errSensitiveFound = errors.New("sensitive information found")

type classifyOptions struct {
	output         string
	includeSamples bool
	mask           bool
	parallelism    int
	failOnMatch    bool
	tenantID       string
}

const exampleClassifyUsage = `  # Classify a file against the sample presets
  sitscan classify notes.txt

  # Classify stdin against a catalog directory and print JSON
  cat dump.csv | sitscan classify --catalog configs/detectors -o json

  # Show masked samples
  sitscan classify --samples --mask customers.csv

  # Fail when anything is found, for use in CI
  sitscan classify --fail-on-match config.env`

// NewClassifyCmd creates the classify command
func NewClassifyCmd(global *globalOptions) *cobra.Command {
	opts := &classifyOptions{}

	cmd := &cobra.Command{
		Use:                   "classify [--output text|json] [--samples] [FILE]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Example:               exampleClassifyUsage,
		Short:                 "Classify a file or stdin",
		Args:                  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format (text, json)")
	cmd.Flags().BoolVar(&opts.includeSamples, "samples", false, "include matched samples in the output")
	cmd.Flags().BoolVar(&opts.mask, "mask", false, "mask sample values, keeping their shape")
	cmd.Flags().IntVarP(&opts.parallelism, "parallelism", "p", 1, "number of detectors evaluated concurrently")
	cmd.Flags().BoolVar(&opts.failOnMatch, "fail-on-match", false, "exit non-zero when any sensitive information is found")
	cmd.Flags().StringVar(&opts.tenantID, "tenant", "", "tenant id attached to emitted events")
	return cmd
}

func runClassify(cmd *cobra.Command, global *globalOptions, opts *classifyOptions, args []string) error {
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	text, source, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	logger, err := global.logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cat, err := global.loadCatalog(logger)
	if err != nil {
		return err
	}

	events := stream.NewLocalStreamer(nil)
	events.OnPublish(func(topic string, event stream.ClassificationEvent) {
		logger.Debug(fmt.Sprintf("event %s on %s: %s x%d (confidence %d)",
			event.ID, topic, event.SensitiveTypeID, event.Count, event.ConfidenceLevel))
	})

	cfg := pipeline.DefaultProcessorConfig()
	cfg.MaxTextSize = 0
	processor := pipeline.NewProcessor(
		classify.NewEngine(classify.WithParallelism(opts.parallelism), classify.WithLogger(logger)),
		pipeline.WithConfig(cfg),
		pipeline.WithCatalog(cat),
		pipeline.WithStreamer(events),
		pipeline.WithLogger(logger),
	)
	defer processor.Close()

	result, err := processor.Process(cmd.Context(), pipeline.ProcessRequest{
		Text:           text,
		SourceName:     source,
		TenantID:       opts.tenantID,
		IncludeSamples: opts.includeSamples,
	})
	if err != nil {
		return err
	}

	if opts.mask {
		classify.MaskMatches(result.Matches)
		for i := range result.Aggregated {
			a := &result.Aggregated[i]
			for j, s := range a.Samples {
				a.Samples[j] = classify.MaskSample(a.Key(), s)
			}
		}
	}

	out := cmd.OutOrStdout()
	if opts.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		writeTextResult(out, source, result, opts.includeSamples)
	}

	if opts.failOnMatch && len(result.Policy) > 0 {
		return errSensitiveFound
	}
	return nil
}

func readInput(cmd *cobra.Command, args []string) (text, source string, err error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), "stdin", nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), args[0], nil
}

func writeTextResult(w io.Writer, source string, result *pipeline.ProcessResult, samples bool) {
	for _, d := range result.InvalidDetectors {
		fmt.Fprintf(w, "warning: detector %s has invalid patterns and was skipped\n", d.ID)
	}
	if len(result.Policy) == 0 {
		fmt.Fprintf(w, "%s: no sensitive information found\n", source)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SENSITIVE TYPE\tNAME\tCOUNT\tCONFIDENCE")
	for _, a := range result.Aggregated {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", a.Key(), a.Name, a.Count, a.Confidence)
	}
	_ = tw.Flush()

	if samples {
		for _, a := range result.Aggregated {
			for _, s := range a.Samples {
				fmt.Fprintf(w, "  %s: %s\n", a.Key(), s)
			}
		}
	}
}
