package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	rio "github.com/matzehuels/metarender/pkg/io"
	"github.com/matzehuels/metarender/pkg/metadata"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output      string   // index.jsonl destination
	json        bool     // print records as JSON lines
	interactive bool     // browse outputs in a TUI
	variants    []string // key=value overrides forming a single variant
	noFinalize  bool     // stop after output expansion
	refresh     bool     // ignore cached results
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render <recipe>",
		Short: "Render a recipe into package index records",
		Long: `Render a recipe directory (or meta.yaml) for every variant of the
configuration and print one record per output, in build order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.json && opts.interactive {
				return fmt.Errorf("--json and --interactive are mutually exclusive")
			}
			return c.runRender(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write records to an index.jsonl file")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print records as JSON lines")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "browse rendered outputs")
	cmd.Flags().StringArrayVar(&opts.variants, "variant", nil, "variant binding key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.noFinalize, "no-finalize", false, "skip finalization of pinned dependencies")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "ignore cached results")

	return cmd
}

func (c *CLI) runRender(ctx context.Context, w io.Writer, path string, opts renderOpts) error {
	logger := loggerFromContext(ctx)

	records, cached, err := c.renderRecords(ctx, path, opts)
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := rio.ExportRecords(records, opts.output); err != nil {
			return fmt.Errorf("write %s: %w", opts.output, err)
		}
		logger.Debug("wrote records", "path", opts.output, "count", len(records))
	}

	switch {
	case opts.json:
		return rio.WriteRecords(records, w)
	case opts.interactive:
		_, err := tea.NewProgram(newOutputListModel(records), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	}

	writeRecordsTable(w, records)
	printStats(w, len(records), 0, cached)
	if opts.output != "" {
		printFile(w, opts.output)
	} else {
		printNextStep(w, "Show the build order", appName+" outputs "+path)
	}
	return nil
}

// renderRecords renders path with a spinner and reports whether the result
// came from the cache.
func (c *CLI) renderRecords(ctx context.Context, path string, opts renderOpts) ([]metadata.InfoRecord, bool, error) {
	logger := loggerFromContext(ctx)

	popts, err := c.pipelineOptions(ctx, path, opts.variants)
	if err != nil {
		return nil, false, err
	}
	popts.NoFinalize = opts.noFinalize
	popts.Refresh = opts.refresh
	popts.Logger = logger

	runner, err := c.newRunner(ctx)
	if err != nil {
		return nil, false, err
	}
	defer runner.Close()

	prog := newProgress(logger)
	spinner := newSpinner(ctx, "Rendering "+path+"...")
	runner.Hooks = newRenderProgress(spinner, path)
	spinner.Start()
	records, cached, err := runner.RenderRecords(ctx, popts)
	spinner.Stop()
	if err != nil {
		return nil, false, err
	}
	prog.done("rendered outputs", "recipe", path, "outputs", len(records), "cached", cached)
	return records, cached, nil
}

// recordJSON indents one record for the interactive detail view.
func recordJSON(r metadata.InfoRecord) string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}
