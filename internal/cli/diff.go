package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/chartpatch/internal/diffstat"
	"github.com/danieljhkim/chartpatch/internal/filepatch"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/state"
)

var (
	diffNameOnly bool
	diffContext  int
)

var diffCmd = &cobra.Command{
	Use:   "diff <workspace-id> [path]",
	Short: "Preview pending changes",
	Long: `Show a unified diff of every changed file against the revision baseline,
with +N/-M badges. Pending diffs are shown as they would apply.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		rs, err := a.openSession(ctx, args[0])
		if err != nil {
			return err
		}
		defer rs.Close()

		filter := ""
		if len(args) == 2 {
			filter = args[1]
		}
		files, err := collectDiffs(rs.sess.Workspace(), rs.sess.Snapshot(), filter, diffContext)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(files)
		}
		if diffNameOnly {
			for _, f := range files {
				fmt.Println(f.Path)
			}
			return nil
		}
		formatDiffs(files)
		return nil
	},
}

func init() {
	diffCmd.Flags().BoolVar(&diffNameOnly, "name-only", false, "Show only file names")
	diffCmd.Flags().IntVarP(&diffContext, "unified", "U", diffstat.DefaultContext, "Lines of context")
}

// fileDiff is the preview of one changed file.
type fileDiff struct {
	FileID  string         `json:"fileId"`
	ChartID string         `json:"chartId,omitempty"`
	Path    string         `json:"path"`
	Pending bool           `json:"pending"`
	New     bool           `json:"new"`
	Stats   diffstat.Stats `json:"stats"`
	Unified string         `json:"unified"`
}

// collectDiffs renders previews of every file whose materialized text
// differs from its baseline, optionally limited to one path.
func collectDiffs(ws *state.Workspace, snap *state.Snapshot, path string, contextLines int) ([]fileDiff, error) {
	var out []fileDiff
	for _, st := range reconcile.Stats(ws, snap) {
		f := st.File
		if path != "" && f.Path != path && f.ID != path {
			continue
		}

		baseline := reconcile.Baseline(f, snap)
		u, err := diffstat.Unified(displayPath(ws, f), baseline, filepatch.Materialize(f), contextLines)
		if err != nil {
			return nil, err
		}
		out = append(out, fileDiff{
			FileID:  f.ID,
			ChartID: f.ChartID,
			Path:    displayPath(ws, f),
			Pending: st.Pending,
			New:     baseline == "",
			Stats:   st.Stats,
			Unified: u,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// displayPath prefixes chart files with their chart name.
func displayPath(ws *state.Workspace, f state.File) string {
	if f.ChartID == "" {
		return f.Path
	}
	if c, ok := ws.Chart(f.ChartID); ok && c.Name != "" {
		return c.Name + "/" + f.Path
	}
	return f.Path
}

// formatDiffs outputs a git-like unified patch plus a change summary.
func formatDiffs(files []fileDiff) {
	if len(files) == 0 {
		PrintEmptyState("No changes detected")
		return
	}

	var total diffstat.Stats
	for _, f := range files {
		fmt.Println()
		printDiffFileHeader(f)
		if f.Unified != "" {
			printUnifiedDiff(f.Unified)
		}
		total = total.Add(f.Stats)
	}

	fmt.Println()
	_, _ = dimColor.Print("  ")
	fmt.Printf("%d file%s changed", len(files), plural(len(files)))
	if total.Additions > 0 {
		_, _ = successColor.Printf(", %d insertion%s(+)", total.Additions, plural(total.Additions))
	}
	if total.Deletions > 0 {
		_, _ = errorColor.Printf(", %d deletion%s(-)", total.Deletions, plural(total.Deletions))
	}
	fmt.Println()
}

func printDiffFileHeader(f fileDiff) {
	mark, clr := "M", warningColor
	switch {
	case f.New:
		mark, clr = "A", successColor
	case !f.Pending:
		// accepted earlier in this revision
		clr = dimColor
	}

	_, _ = clr.Printf("  %s ", mark)
	_, _ = headerColor.Printf("%s", f.Path)
	PrintStats(f.Stats)
	fmt.Println()

	_, _ = dimColor.Println("  " + strings.Repeat("─", 50))
}

func printUnifiedDiff(diffText string) {
	lines := strings.Split(diffText, "\n")
	for i, line := range lines {
		if i == len(lines)-1 && line == "" {
			continue
		}

		switch {
		// Already shown in the file header
		case strings.HasPrefix(line, "+++ "),
			strings.HasPrefix(line, "--- "):
			continue
		case strings.HasPrefix(line, "@@"):
			_, _ = infoColor.Printf("  %s\n", line)
		case strings.HasPrefix(line, "+"):
			_, _ = successColor.Printf("  %s\n", line)
		case strings.HasPrefix(line, "-"):
			_, _ = errorColor.Printf("  %s\n", line)
		default:
			fmt.Printf("  %s\n", line)
		}
	}
}
