package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewConfirmCommand creates the confirm command.
func NewConfirmCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <result-id>",
		Short: "Confirm results through a place",
		Long: `Confirm a result and every earlier result in its context, then
rewrite the export artifact.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("result", args[0])
			if err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				confirmed, err := a.engine.Confirm(ctx, id)
				if err != nil {
					return a.fail("failed to confirm", err)
				}
				if a.out.Format == "json" {
					return a.out.Success(confirmed)
				}
				fmt.Fprintf(a.out.Writer, "Confirmed %d result(s)\n", len(confirmed))
				return nil
			})
		},
	}
}
