package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/roach88/finishline/internal/engine"
	"github.com/roach88/finishline/internal/model"
)

// BoardOptions holds flags for the board command.
type BoardOptions struct {
	*RootOptions
	Context string
	XLSX    string
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	confirmedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	normalStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	holeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	cursorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
)

// NewBoardCommand creates the board command.
func NewBoardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BoardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show results and their scans",
		Long: `Show a context's results in place order next to the scans they hold,
followed by the pending scans and the cursor.

A slot shows the linked scan's bib, "-" for a hole left by a correction,
or nothing while the result waits for a scan.`,
		Example: `  finishline board
  finishline board --context "Spring 5K" --xlsx board.xlsx`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				return runBoard(ctx, a, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Context, "context", "", "context id or name (default: active context)")
	cmd.Flags().StringVar(&opts.XLSX, "xlsx", "", "also write the board as an XLSX workbook")

	return cmd
}

func runBoard(ctx context.Context, a *app, opts *BoardOptions) error {
	c, err := a.resolveContext(ctx, opts.Context)
	if err != nil {
		return a.fail("failed to find context", err)
	}
	b, err := a.engine.Board(ctx, c.ID)
	if err != nil {
		return a.fail("failed to read board", err)
	}

	if opts.XLSX != "" {
		if err := writeWorkbookFile(ctx, a.engine, c.ID, opts.XLSX); err != nil {
			return WrapExitError(ExitCommandError, "failed to write workbook", err)
		}
		a.logger.Info("workbook written", "path", opts.XLSX, "context_id", c.ID)
	}

	if a.out.Format == "json" {
		return a.out.Success(b)
	}
	renderBoard(a.out.Writer, b)
	return nil
}

func writeWorkbookFile(ctx context.Context, e *engine.Engine, contextID int64, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := e.WriteWorkbook(ctx, contextID, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// boardColumns are the table headings in display order.
var boardColumns = []string{"PLACE", "RESULT", "DEVICE", "TIME", "BIB", "SLOT", "CONFIRMED"}

// renderBoard writes the board as a styled table.
func renderBoard(w io.Writer, b engine.Board) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%s)", b.Context.Name, b.Context.Kind)))
	if b.Context.ExportDirty {
		fmt.Fprintln(w, holeStyle.Render("export out of date: run `finishline rewrite`"))
	}
	fmt.Fprintln(w)

	bibs := b.ScanBibs()
	rows := make([][]string, 0, len(b.Results))
	styles := make([]lipgloss.Style, 0, len(b.Results))
	for _, r := range b.Results {
		slot, style := "", normalStyle
		switch {
		case r.HasScan():
			slot = bibs[r.ScanID]
		case r.IsHole():
			slot, style = "-", holeStyle
		}
		confirmed := ""
		if r.Confirmed {
			confirmed, style = "yes", confirmedStyle
		}
		bib := r.BibNumber
		if bib == "" {
			bib = "-"
		}
		rows = append(rows, []string{
			fmt.Sprint(r.Place),
			fmt.Sprint(r.ID),
			fmt.Sprint(r.DevicePosition),
			model.FormatElapsed(r.Time),
			bib,
			slot,
			confirmed,
		})
		styles = append(styles, style)
	}

	widths := make([]int, len(boardColumns))
	for i, h := range boardColumns {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	fmt.Fprintln(w, headerStyle.Render(formatRow(boardColumns, widths)))
	if len(rows) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no results"))
	}
	for i, row := range rows {
		fmt.Fprintln(w, styles[i].Render(formatRow(row, widths)))
	}

	fmt.Fprintln(w)
	pending := b.Pending()
	if len(pending) == 0 {
		fmt.Fprintln(w, dimStyle.Render("pending: none"))
		return
	}
	parts := make([]string, len(pending))
	for i, s := range pending {
		label := fmt.Sprintf("%s#%d", s.BibNumber, s.ID)
		if s.ID == b.Cursor {
			label = cursorStyle.Render("[" + label + "]")
		}
		parts[i] = label
	}
	fmt.Fprintf(w, "pending: %s\n", strings.Join(parts, " "))
}

func formatRow(cells []string, widths []int) string {
	var sb strings.Builder
	for i, cell := range cells {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(cell)
		if i < len(cells)-1 {
			sb.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
		}
	}
	return sb.String()
}
