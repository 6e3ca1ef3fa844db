package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// hashCommand creates the hash command. It shows, per rendered output, the
// files folded into the content hash and the resulting hash.
func (c *CLI) hashCommand() *cobra.Command {
	var variants []string

	cmd := &cobra.Command{
		Use:   "hash <recipe>",
		Short: "Show the content hash inputs of each output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runHash(cmd.Context(), cmd.OutOrStdout(), args[0], variants)
		},
	}

	cmd.Flags().StringArrayVar(&variants, "variant", nil, "variant binding key=value (repeatable)")
	return cmd
}

func (c *CLI) runHash(ctx context.Context, w io.Writer, path string, variants []string) error {
	popts, err := c.pipelineOptions(ctx, path, variants)
	if err != nil {
		return err
	}
	popts.Logger = loggerFromContext(ctx)

	runner, err := c.newRunner(ctx)
	if err != nil {
		return err
	}
	defer runner.Close()

	results, err := runner.Render(ctx, popts)
	if err != nil {
		return err
	}

	for _, res := range results {
		set, err := res.Meta.HashInputs()
		if err != nil {
			return fmt.Errorf("%s: %w", res.Meta.Name(), err)
		}
		hash, err := res.Meta.Hash()
		if err != nil {
			return fmt.Errorf("%s: %w", res.Meta.Name(), err)
		}

		fmt.Fprintln(w, StyleTitle.Render(res.Meta.Dist()))
		fmt.Fprintf(w, "  variant  %s\n", res.Meta.Variant().String())
		fmt.Fprintf(w, "  hash     %s\n", StyleHighlight.Render(hash))
		if len(set.Files) == 0 {
			fmt.Fprintln(w, StyleDim.Render("  no files"))
		}
		for _, f := range set.Files {
			fmt.Fprintf(w, "  %s %s\n", StyleDim.Render(iconArrow), f)
		}
	}
	return nil
}
