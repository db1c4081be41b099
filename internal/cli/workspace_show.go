package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/chartpatch/internal/filepatch"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// workspaceShowCmd shows one workspace with its review state.
var workspaceShowCmd = &cobra.Command{
	Use:   "show <workspace-id>",
	Short: "Show workspace files and pending changes",
	Args:  cobra.ExactArgs(1),
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

		status, err := rs.eng.Status(ctx)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(status)
		}

		ws := status.Workspace
		PrintSection("Workspace")
		PrintLabelValue("ID", ws.ID)
		PrintLabelValue("Name", ws.Name)
		PrintLabelValue("Revision", fmt.Sprintf("%d", ws.CurrentRevisionNumber))
		if ws.IncompleteRevisionNumber != nil {
			PrintLabelValueWithColor("Generating", fmt.Sprintf("revision %d", *ws.IncompleteRevisionNumber), warningColor)
		}
		if n := len(rs.cached.Unsynced); n > 0 {
			PrintLabelValueWithColor("Unsynced", PrintCount(n, "file", "files"), warningColor)
		}

		if len(ws.Files) > 0 {
			PrintSection("Files")
			printFiles(ws.Files)
		}
		for _, c := range ws.Charts {
			PrintSection(fmt.Sprintf("Chart %s (rev %d)", c.Name, c.RevisionNumber))
			if len(c.Files) == 0 {
				PrintEmptyState("No files")
				continue
			}
			printFiles(c.Files)
		}

		fmt.Println()
		if len(status.Pending) == 0 {
			PrintEmptyState("No pending changes")
			return nil
		}
		fmt.Printf("  %s pending", PrintCount(len(status.Pending), "file", "files"))
		PrintStats(status.Total)
		fmt.Println()
		return nil
	},
}

func printFiles(files []state.File) {
	for _, f := range files {
		mark := dimColor.Sprint("·")
		if filepatch.StateOf(f) == filepatch.PendingReview {
			mark = warningColor.Sprint("●")
		}
		fmt.Printf("  %s %s", mark, f.Path)
		_, _ = dimColor.Printf("  %s", f.ID)
		if f.HasPending() {
			PrintStats(filepatch.Stats(f))
		}
		fmt.Println()
	}
}
