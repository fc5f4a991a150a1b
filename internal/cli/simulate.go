package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/finishline/internal/simulate"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Context string
	Speed   float64
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <events.csv|events.txt>",
		Short: "Replay recorded race events into a simulation context",
		Long: `Replay a simulation event file into a simulation context, in time
order, as time machine results and bib scans.

A CSV file has a header row naming time, etype (scan or timemachine), and
bibno columns. A .txt or .log file is a server log; its received time
machine and scanner messages are replayed, and scans logged before the
context's start time are skipped.

Time machine events are numbered 1..n in time order. With --speed the
replay waits between events, scaled from real time; by default it runs
as fast as the engine accepts events.`,
		Example: `  finishline simulate events.csv --context "Sim 3"
  finishline simulate tmtility.log --speed 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				return runSimulate(ctx, a, opts, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&opts.Context, "context", "", "context id or name (default: active context)")
	cmd.Flags().Float64Var(&opts.Speed, "speed", 0, "replay speed as a multiple of real time (0: no waiting)")

	return cmd
}

func runSimulate(ctx context.Context, a *app, opts *SimulateOptions, path string) error {
	if opts.Speed < 0 {
		return NewExitError(ExitCommandError, "--speed must not be negative")
	}
	loader, err := simulate.LoaderFor(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "unsupported file", err)
	}

	c, err := a.resolveContext(ctx, opts.Context)
	if err != nil {
		return a.fail("failed to find context", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event file", err)
	}
	defer f.Close()
	events, err := loader.Load(f, c.StartOffset)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse event file", err)
	}

	replayer := simulate.New(a.engine, simulate.WithSpeed(opts.Speed), simulate.WithLogger(a.logger))
	stats, err := replayer.Run(ctx, c, events)
	if err != nil {
		return a.fail("failed to replay simulation", err)
	}

	if a.out.Format == "json" {
		return a.out.Success(stats)
	}
	fmt.Fprintf(a.out.Writer, "%s: replayed %d result(s) and %d scan(s), %d rejected\n",
		c.Name, stats.Results, stats.Scans, stats.Rejected)
	return nil
}
