package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// workspaceLsCmd lists all workspaces.
var workspaceLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all workspaces",
	Long:  `Display all workspaces with their revision state and pending file counts.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.store.ListWorkspaces(context.Background())
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(list)
		}

		PrintSection("Workspaces")
		if len(list) == 0 {
			PrintEmptyState("No workspaces found")
			return nil
		}

		rows := make([][]string, 0, len(list))
		for _, ws := range list {
			revision := fmt.Sprintf("%d", ws.CurrentRevisionNumber)
			if ws.IncompleteRevisionNumber != nil {
				revision += fmt.Sprintf(" (generating %d)", *ws.IncompleteRevisionNumber)
			}
			rows = append(rows, []string{
				ws.ID,
				ws.Name,
				revision,
				fmt.Sprintf("%d", ws.Files),
				fmt.Sprintf("%d", ws.Pending),
			})
		}
		PrintTable([]string{"Workspace ID", "Name", "Revision", "Files", "Pending"}, rows)
		return nil
	},
}
