package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/chartpatch/internal/engine"
)

// workspaceSyncCmd pushes local fallbacks and refreshes the cache.
var workspaceSyncCmd = &cobra.Command{
	Use:   "sync <workspace-id>",
	Short: "Reconcile locally applied changes with persistence",
	Long: `Push files whose accept, reject or save was applied only locally because
persistence failed, then refresh the cached workspace.`,
	Args: cobra.ExactArgs(1),
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

		result, err := rs.eng.Sync(ctx, &engine.SyncRequest{
			WorkspaceID: args[0],
			Unsynced:    rs.cached.Unsynced,
		})
		if err != nil {
			return err
		}

		rs.cached.Unsynced = result.Remaining
		if result.Replaced {
			rs.cached.SyncedAt = a.clock.Now()
		}
		if err := rs.save(); err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}

		PrintSection("Sync")
		if len(result.Pushed) > 0 {
			PrintSuccess(fmt.Sprintf("Pushed %s", PrintCount(len(result.Pushed), "file", "files")))
		}
		if len(result.Remaining) > 0 {
			PrintWarning(fmt.Sprintf("%s still unsynced: %v", PrintCount(len(result.Remaining), "file", "files"), result.Err))
			return nil
		}
		PrintSuccess("Workspace up to date")
		return nil
	},
}
