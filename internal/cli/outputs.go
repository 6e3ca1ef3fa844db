package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	rio "github.com/matzehuels/metarender/pkg/io"
	"github.com/matzehuels/metarender/pkg/metadata"
	"github.com/matzehuels/metarender/pkg/outputs"
	"github.com/matzehuels/metarender/pkg/pipeline"
	"github.com/matzehuels/metarender/pkg/render/nodelink"
)

// outputsOpts holds the command-line flags for the outputs command.
type outputsOpts struct {
	phase      string
	dot        bool
	svg        string
	json       bool
	detailed   bool
	variants   []string
	noFinalize bool
}

// outputsCommand creates the outputs command, which prints the order the
// outputs of a recipe are built or installed in.
func (c *CLI) outputsCommand() *cobra.Command {
	opts := outputsOpts{phase: metadata.PhaseBuild}

	cmd := &cobra.Command{
		Use:   "outputs <recipe>",
		Short: "Show the dependency order of a recipe's outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pipeline.ValidatePhase(opts.phase); err != nil {
				return err
			}
			return c.runOutputs(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.phase, "phase", opts.phase, "dependency phase: build, run")
	cmd.Flags().BoolVar(&opts.dot, "dot", false, "print the output graph as Graphviz DOT")
	cmd.Flags().StringVar(&opts.svg, "svg", "", "render the output graph to an SVG file")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the output graph as JSON")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show all node metadata in DOT and SVG labels")
	cmd.Flags().StringArrayVar(&opts.variants, "variant", nil, "variant binding key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.noFinalize, "no-finalize", false, "skip finalization of pinned dependencies")

	return cmd
}

func (c *CLI) runOutputs(ctx context.Context, w io.Writer, path string, opts outputsOpts) error {
	logger := loggerFromContext(ctx)

	popts, err := c.pipelineOptions(ctx, path, opts.variants)
	if err != nil {
		return err
	}
	popts.NoFinalize = opts.noFinalize
	popts.Logger = logger

	runner, err := c.newRunner(ctx)
	if err != nil {
		return err
	}
	defer runner.Close()

	results, err := runner.Render(ctx, popts)
	if err != nil {
		return err
	}

	g := outputs.Graph(results, opts.phase)
	dotOpts := nodelink.Options{Detailed: opts.detailed, Ranked: true}

	if opts.svg != "" {
		svg, err := nodelink.RenderSVG(ctx, nodelink.ToDOT(g, dotOpts))
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.svg, svg, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.svg, err)
		}
		printSuccess(w, "Rendered %s graph", opts.phase)
		printFile(w, opts.svg)
		return nil
	}

	switch {
	case opts.dot:
		_, err := io.WriteString(w, nodelink.ToDOT(g, dotOpts))
		return err
	case opts.json:
		return rio.WriteGraph(g, w)
	}

	ordered, err := outputs.Toposort(results, opts.phase)
	if err != nil {
		return err
	}
	for i, res := range ordered {
		fmt.Fprintf(w, "%3d  %s\n", i+1, res.Meta.Dist())
	}
	if cycle := g.FindCycle(); len(cycle) > 0 {
		printWarning(w, "%s dependency cycle: %v", opts.phase, cycle)
	}
	printStats(w, g.NodeCount(), g.EdgeCount(), false)
	return nil
}
