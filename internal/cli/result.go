package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/finishline/internal/engine"
	"github.com/roach88/finishline/internal/model"
)

// ResultOptions holds flags for the result subcommands.
type ResultOptions struct {
	*RootOptions
	Context string
	Device  int
	Time    string
	Bib     string
}

// NewResultCommand creates the result command group.
func NewResultCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "result",
		Short: "Submit and edit timer results",
		Long: `Submit and edit timer results.

Results normally arrive from the timer; these commands enter them by hand
and fix individual rows. Times are seconds or [[hh:]mm:]ss[.dd] elapsed
since the race start.`,
	}

	cmd.AddCommand(newResultAddCommand(rootOpts))
	cmd.AddCommand(newResultUpdateCommand(rootOpts))
	cmd.AddCommand(newResultDeleteCommand(rootOpts))

	return cmd
}

func newResultAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Submit a result",
		Example: `  finishline result add --device 12 --time 17:42.31
  finishline result add --context "Spring 5K" --device 3 --time 1062.5 --bib 118`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				return runResultAdd(ctx, a, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Context, "context", "", "context id or name (default: active context)")
	cmd.Flags().IntVar(&opts.Device, "device", 0, "device position")
	cmd.Flags().StringVar(&opts.Time, "time", "", "elapsed time")
	cmd.Flags().StringVar(&opts.Bib, "bib", "", "bib number typed at the timer")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("time")

	return cmd
}

func runResultAdd(ctx context.Context, a *app, opts *ResultOptions) error {
	secs, err := parseTime(opts.Time)
	if err != nil {
		return err
	}
	c, err := a.resolveContext(ctx, opts.Context)
	if err != nil {
		return a.fail("failed to find context", err)
	}

	r, err := a.engine.SubmitResult(ctx, c.ID, engine.ResultInput{
		DevicePosition: opts.Device,
		Time:           secs,
		BibNumber:      opts.Bib,
	})
	if err != nil {
		return a.fail("failed to submit result", err)
	}
	return printResult(a, "Submitted", r)
}

func newResultUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <result-id>",
		Short: "Edit a result",
		Long: `Edit a result's bib, time, or device position.

Only the flags given are changed. Changing the time re-sorts the context and
may move the result to another place.`,
		Example:       `  finishline result update 14 --time 17:41.90 --bib 118`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				return runResultUpdate(ctx, a, cmd, opts, args[0])
			})
		},
	}

	cmd.Flags().IntVar(&opts.Device, "device", 0, "device position")
	cmd.Flags().StringVar(&opts.Time, "time", "", "elapsed time")
	cmd.Flags().StringVar(&opts.Bib, "bib", "", "bib number")

	return cmd
}

func runResultUpdate(ctx context.Context, a *app, cmd *cobra.Command, opts *ResultOptions, ref string) error {
	id, err := parseID("result", ref)
	if err != nil {
		return err
	}

	var u engine.ResultUpdate
	if cmd.Flags().Changed("bib") {
		u.BibNumber = &opts.Bib
	}
	if cmd.Flags().Changed("time") {
		secs, err := parseTime(opts.Time)
		if err != nil {
			return err
		}
		u.Time = &secs
	}
	if cmd.Flags().Changed("device") {
		u.DevicePosition = &opts.Device
	}
	if u.BibNumber == nil && u.Time == nil && u.DevicePosition == nil {
		return NewExitError(ExitCommandError, "nothing to update: pass --bib, --time, or --device")
	}

	r, err := a.engine.UpdateResult(ctx, id, u)
	if err != nil {
		return a.fail("failed to update result", err)
	}
	return printResult(a, "Updated", r)
}

func newResultDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <result-id>",
		Short:         "Delete an unconfirmed result",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				id, err := parseID("result", args[0])
				if err != nil {
					return err
				}
				if err := a.engine.DeleteResult(ctx, id); err != nil {
					return a.fail("failed to delete result", err)
				}
				if a.out.Format == "json" {
					return a.out.Success(map[string]int64{"deleted": id})
				}
				fmt.Fprintf(a.out.Writer, "Deleted result %d\n", id)
				return nil
			})
		},
	}
}

// printResult writes one result row.
func printResult(a *app, verb string, r model.Result) error {
	if a.out.Format == "json" {
		return a.out.Success(r)
	}
	bib := r.BibNumber
	if bib == "" {
		bib = "-"
	}
	fmt.Fprintf(a.out.Writer, "%s result %d: place %d, device %d, time %s, bib %s\n",
		verb, r.ID, r.Place, r.DevicePosition, model.FormatElapsed(r.Time), bib)
	return nil
}
