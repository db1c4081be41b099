package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/chartpatch/internal/fsops"
)

var (
	pendingChartID  string
	pendingPatch    string
	pendingContent  string
	pendingRevision int
)

// pendingCmd is the parent command for pending content sources.
var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Record generated changes",
}

var pendingSetCmd = &cobra.Command{
	Use:   "set <workspace-id> <path>",
	Short: "Set the pending change of a file",
	Long: `Record a generated change for a file, as a unified diff (--patch) or as
full replacement text (--content). The file is created when it does not exist.

The change belongs to --revision, by default the workspace's incomplete
revision or the one after its current revision.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (pendingPatch == "") == (pendingContent == "") {
			return errors.New("exactly one of --patch or --content is required")
		}
		source := pendingPatch
		if source == "" {
			source = pendingContent
		}
		data, err := fsops.NewRealFS().ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", source, err)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		ws, err := a.store.GetWorkspace(ctx, args[0])
		if err != nil {
			return err
		}

		rev := ws.CurrentRevisionNumber + 1
		if ws.IncompleteRevisionNumber != nil {
			rev = *ws.IncompleteRevisionNumber
		}
		if cmd.Flags().Changed("revision") {
			rev = pendingRevision
		}

		f, err := a.store.SetPendingContent(ctx, ws.ID, pendingChartID, args[1], rev, string(data))
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(f)
		}
		PrintSuccess(fmt.Sprintf("%s pending at revision %d", f.Path, rev))
		PrintLabelValue("File ID", f.ID)
		return nil
	},
}

func init() {
	pendingSetCmd.Flags().StringVarP(&pendingChartID, "chart", "c", "", "Chart the file belongs to (default: loose file)")
	pendingSetCmd.Flags().StringVar(&pendingPatch, "patch", "", "File containing a unified diff")
	pendingSetCmd.Flags().StringVar(&pendingContent, "content", "", "File containing the full replacement text")
	pendingSetCmd.Flags().IntVarP(&pendingRevision, "revision", "r", 0, "Revision the change belongs to")

	pendingCmd.AddCommand(pendingSetCmd)
}
