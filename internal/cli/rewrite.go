package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// RewriteOptions holds flags for the rewrite command.
type RewriteOptions struct {
	*RootOptions
	Context string
}

// NewRewriteCommand creates the rewrite command.
func NewRewriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RewriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Rewrite the export artifact",
		Long: `Rewrite a context's export artifact from its confirmed results.

Use this after a failed export write, or after changing the output file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				c, err := a.resolveContext(ctx, opts.Context)
				if err != nil {
					return a.fail("failed to find context", err)
				}
				if err := a.engine.Rewrite(ctx, c.ID); err != nil {
					return a.fail("failed to rewrite artifact", err)
				}
				target, err := a.engine.OutputTarget(ctx, c.ID)
				if err != nil {
					return a.fail("failed to resolve output file", err)
				}
				if a.out.Format == "json" {
					return a.out.Success(map[string]string{"path": target})
				}
				if target == "" {
					fmt.Fprintln(a.out.Writer, "No output file configured.")
					return nil
				}
				fmt.Fprintf(a.out.Writer, "Wrote %s\n", target)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Context, "context", "", "context id or name (default: active context)")

	return cmd
}
