package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/finishline/internal/model"
)

// NewCorrectCommand creates the correct command.
func NewCorrectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "correct <use|insert|delete> <result-id> <scan-id>",
		Short: "Apply an operator correction",
		Long: `Apply an operator correction to the pairing of results and scans.

  use     copy the scan's bib onto the result
  insert  push a blank scan in front of the result; later scans move down
  delete  remove the result's scan; later scans move up

The scan must be the one currently held by the result, or the pending scan
under the cursor.`,
		Example:       `  finishline correct insert 14 22`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := model.ParseAction(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid action", err)
			}
			resultID, err := parseID("result", args[1])
			if err != nil {
				return err
			}
			scanID, err := parseID("scan", args[2])
			if err != nil {
				return err
			}

			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				r, err := a.engine.Correct(ctx, model.Correction{
					Action:   action,
					ResultID: resultID,
					ScanID:   scanID,
				})
				if err != nil {
					return a.fail("correction rejected", err)
				}
				return printResult(a, "Corrected", r)
			})
		},
	}
}
