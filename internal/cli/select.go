package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/metarender/pkg/namespace"
	"github.com/matzehuels/metarender/pkg/selector"
	"github.com/matzehuels/metarender/pkg/variant"
)

// selectCommand creates the select command, which runs only the line
// selector filter over a file.
func (c *CLI) selectCommand() *cobra.Command {
	var (
		variants []string
		vars     bool
	)

	cmd := &cobra.Command{
		Use:   "select <file>",
		Short: "Filter a file by its line selectors",
		Long: `Evaluate the [selector] of every line against the namespace of one
variant and print the lines that are kept, with their selectors removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := c.selectorNamespace(cmd.Context(), variants)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if vars {
				return writeNamespace(w, ns)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := selector.Filter(string(data), ns, loggerFromContext(cmd.Context()))
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, out)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&variants, "variant", nil, "variant binding key=value (repeatable)")
	cmd.Flags().BoolVar(&vars, "vars", false, "print the selector namespace instead of filtering")
	return cmd
}

// selectorNamespace builds the namespace of the first configured variant,
// or of the --variant bindings when given.
func (c *CLI) selectorNamespace(ctx context.Context, pairs []string) (*namespace.Namespace, error) {
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	v := cfg.Variants()[0]
	if len(pairs) > 0 {
		var ok bool
		if v, ok = variant.Parse(pairs); !ok {
			return nil, fmt.Errorf("invalid --variant %q: want key=value", pairs)
		}
	}
	return namespace.Build(cfg, v, c.Env)
}

func writeNamespace(w io.Writer, ns *namespace.Namespace) error {
	vals := ns.Vars()
	for _, name := range ns.Names() {
		if _, err := fmt.Fprintf(w, "%s = %s\n", name, vals[name]); err != nil {
			return err
		}
	}
	return nil
}
