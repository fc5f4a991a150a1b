package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/finishline/internal/model"
)

// ContextCreateOptions holds flags for context create.
type ContextCreateOptions struct {
	*RootOptions
	Kind       string
	Date       string
	Start      string
	OutputFile string
	Activate   bool
}

// NewContextCommand creates the context command group.
func NewContextCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage race contexts",
		Long: `Manage race contexts.

A context scopes one race (or simulation): its results, its scans, and its
export artifact. Exactly one context is active at a time; results read from
the timer are submitted to the active context.`,
	}

	cmd.AddCommand(newContextCreateCommand(rootOpts))
	cmd.AddCommand(newContextListCommand(rootOpts))
	cmd.AddCommand(newContextActivateCommand(rootOpts))

	return cmd
}

func newContextCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContextCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a context",
		Long: `Create a race or simulation context.

--start is the race start as a time of day; it converts elapsed timer
times into times of day in the export artifact.

Example:
  finishline context create "Spring 5K" --date 2026-04-12 --start 09:00:00 --activate`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				return runContextCreate(ctx, a, opts, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", string(model.KindRace), "context kind (race|simulation)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "race date")
	cmd.Flags().StringVar(&opts.Start, "start", "", "race start time of day (hh:mm:ss)")
	cmd.Flags().StringVar(&opts.OutputFile, "output-file", "", "export file for this context")
	cmd.Flags().BoolVar(&opts.Activate, "activate", false, "make the new context active")

	return cmd
}

func runContextCreate(ctx context.Context, a *app, opts *ContextCreateOptions, name string) error {
	kind, err := model.ParseKind(opts.Kind)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}
	var start float64
	if opts.Start != "" {
		if start, err = parseTime(opts.Start); err != nil {
			return err
		}
	}

	c, err := a.engine.CreateContext(ctx, model.Context{
		Name:        name,
		Kind:        kind,
		Date:        opts.Date,
		StartOffset: start,
		OutputFile:  opts.OutputFile,
	})
	if err != nil {
		return a.fail("failed to create context", err)
	}
	if opts.Activate {
		if err := a.engine.Activate(ctx, c.ID); err != nil {
			return a.fail("failed to activate context", err)
		}
	}

	if a.out.Format == "json" {
		return a.out.Success(c)
	}
	fmt.Fprintf(a.out.Writer, "Created context %d %q\n", c.ID, c.Name)
	if opts.Activate {
		fmt.Fprintf(a.out.Writer, "Context %d is active\n", c.ID)
	}
	return nil
}

// contextRow is a context with its active flag for listings.
type contextRow struct {
	model.Context
	Active bool `json:"active"`
}

func newContextListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List contexts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, runContextList)
		},
	}
}

func runContextList(ctx context.Context, a *app) error {
	contexts, err := a.engine.Contexts(ctx)
	if err != nil {
		return a.fail("failed to list contexts", err)
	}
	active, ok, err := a.engine.ActiveContext(ctx)
	if err != nil {
		return a.fail("failed to read active context", err)
	}

	rows := make([]contextRow, len(contexts))
	for i, c := range contexts {
		rows[i] = contextRow{Context: c, Active: ok && c.ID == active.ID}
	}

	if a.out.Format == "json" {
		return a.out.Success(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out.Writer, "No contexts.")
		return nil
	}
	for _, r := range rows {
		marker := " "
		if r.Active {
			marker = "*"
		}
		fmt.Fprintf(a.out.Writer, "%s %3d  %-24s %-10s %-10s start %s\n",
			marker, r.ID, r.Name, r.Kind, r.Date, model.FormatTimeOfDay(r.StartOffset))
	}
	return nil
}

func newContextActivateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "activate <id|name>",
		Short:         "Make a context active",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				c, err := a.resolveContext(ctx, args[0])
				if err != nil {
					return a.fail("failed to find context", err)
				}
				if err := a.engine.Activate(ctx, c.ID); err != nil {
					return a.fail("failed to activate context", err)
				}
				if a.out.Format == "json" {
					return a.out.Success(c)
				}
				fmt.Fprintf(a.out.Writer, "Context %d %q is active\n", c.ID, c.Name)
				return nil
			})
		},
	}
}
