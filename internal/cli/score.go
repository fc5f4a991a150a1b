package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/score"
)

// ScoreOptions holds flags for the score command.
type ScoreOptions struct {
	*RootOptions
	Context string
}

// NewScoreCommand creates the score command.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "score <expected.csv|expected.xlsx>",
		Short: "Grade a context against expected results",
		Long: `Compare a context's results with an expected-results file and report
the percentage recorded correctly.

The file has a header row naming order, time, and bibno columns, and
optionally epsilon (allowed time difference in seconds).`,
		Example:       `  finishline score expected.csv --context "Sim 3"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				return runScore(ctx, a, opts, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&opts.Context, "context", "", "context id or name (default: active context)")

	return cmd
}

func runScore(ctx context.Context, a *app, opts *ScoreOptions, path string) error {
	parser, err := score.ParserFor(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "unsupported file", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read expected results", err)
	}
	expected, err := parser.Parse(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse expected results", err)
	}

	c, err := a.resolveContext(ctx, opts.Context)
	if err != nil {
		return a.fail("failed to find context", err)
	}
	report, err := score.ForContext(ctx, a.engine, c.ID, expected)
	if err != nil {
		return a.fail("failed to score context", err)
	}

	if a.out.Format == "json" {
		return a.out.Success(report)
	}

	w := a.out.Writer
	fmt.Fprintf(w, "%s: %.1f%% (%d correct of %d expected, %d recorded)\n",
		c.Name, report.Score, report.Correct, report.Expected, report.Recorded)
	for _, m := range report.Mismatches {
		fmt.Fprintf(w, "  time   bib %-6s expected %s, got %s\n",
			m.Bib, model.FormatElapsed(m.ExpectedTime), model.FormatElapsed(m.ActualTime))
	}
	for _, m := range report.Missing {
		fmt.Fprintf(w, "  missing bib %-6s (%d expected)\n", m.Bib, len(m.ExpectedTimes))
	}
	for _, e := range report.Extra {
		fmt.Fprintf(w, "  extra  bib %-6s (%d recorded)\n", e.Bib, len(e.ActualTimes))
	}
	return nil
}
