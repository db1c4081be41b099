package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/chartpatch/internal/reconcile"
)

var (
	workspaceRmForce  bool
	workspaceRmDryRun bool
)

// workspaceRmCmd deletes a workspace.
var workspaceRmCmd = &cobra.Command{
	Use:   "rm <workspace-id>",
	Short: "Delete a workspace",
	Long: `Delete a workspace with its charts, files and local cache.

A workspace with pending changes is only deleted with --force.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspaceID := args[0]

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		ws, err := a.store.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		pending := len(reconcile.PendingFiles(ws, -1))

		result := map[string]any{
			"workspaceId": ws.ID,
			"files":       len(ws.AllFiles()),
			"pending":     pending,
			"deleted":     false,
		}

		if pending > 0 && !workspaceRmForce && !workspaceRmDryRun {
			return fmt.Errorf("workspace %s has %s; use --force to delete", ws.ID, PrintCount(pending, "pending file", "pending files"))
		}

		if workspaceRmDryRun {
			if jsonOutput {
				return outputJSON(result)
			}
			PrintSection("Dry Run: Delete Workspace")
			PrintInfo(fmt.Sprintf("Workspace ID: %s", ws.ID))
			PrintInfo(fmt.Sprintf("Files: %d", len(ws.AllFiles())))
			if pending > 0 {
				PrintInfo(fmt.Sprintf("Pending: %d", pending))
			}
			fmt.Println()
			PrintWarning("Run without --dry-run to delete")
			return nil
		}

		if err := a.store.DeleteWorkspace(ctx, ws.ID); err != nil {
			return err
		}
		if err := a.cache.Delete(ws.ID); err != nil {
			return err
		}
		result["deleted"] = true

		if jsonOutput {
			return outputJSON(result)
		}
		PrintSection("Delete Workspace")
		PrintSuccess(fmt.Sprintf("Deleted workspace: %s", ws.ID))
		return nil
	},
}

func init() {
	workspaceRmCmd.Flags().BoolVarP(&workspaceRmForce, "force", "f", false, "Delete even if files have pending changes")
	workspaceRmCmd.Flags().BoolVar(&workspaceRmDryRun, "dry-run", false, "Show what would be deleted without deleting")
}
