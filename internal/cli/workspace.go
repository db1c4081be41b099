package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/chartpatch/internal/fsops"
	"github.com/danieljhkim/chartpatch/internal/state"
)

var (
	workspaceCreateCharts []string
	workspaceExportOutput string
)

// workspaceCmd is the parent command for workspace management.
var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
	Long:  `Create, import, inspect and synchronize chart workspaces.`,
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ws, err := a.store.CreateWorkspace(context.Background(), args[0], workspaceCreateCharts...)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(ws)
		}

		PrintSuccess(fmt.Sprintf("Created workspace %s (%s)", ws.Name, ws.ID))
		for _, c := range ws.Charts {
			PrintLabelValue("chart "+c.Name, c.ID)
		}
		return nil
	},
}

var workspaceImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import a workspace from a JSON document",
	Long: `Import a workspace from a JSON document, replacing any workspace with the
same id. Files without an id get one derived from their location.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := fsops.NewRealFS().ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		var ws state.Workspace
		if err := json.Unmarshal(data, &ws); err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		if ws.ID == "" {
			ws.ID = state.NewID()
		}
		if err := a.store.ImportWorkspace(ctx, &ws); err != nil {
			return err
		}
		if err := a.cache.Delete(ws.ID); err != nil {
			return err
		}

		if jsonOutput {
			stored, err := a.store.GetWorkspace(ctx, ws.ID)
			if err != nil {
				return err
			}
			return outputJSON(stored)
		}

		PrintSuccess(fmt.Sprintf("Imported workspace %s", ws.ID))
		return nil
	},
}

var workspaceExportCmd = &cobra.Command{
	Use:   "export <workspace-id>",
	Short: "Export a workspace as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ws, err := a.store.GetWorkspace(context.Background(), args[0])
		if err != nil {
			return err
		}

		if workspaceExportOutput == "" {
			return outputJSON(ws)
		}

		data, err := json.MarshalIndent(ws, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal workspace: %w", err)
		}
		if err := fsops.NewRealFS().AtomicWrite(workspaceExportOutput, append(data, '\n'), 0644); err != nil {
			return err
		}
		if !jsonOutput {
			PrintSuccess(fmt.Sprintf("Exported %s to %s", ws.ID, workspaceExportOutput))
		}
		return nil
	},
}

func init() {
	workspaceCreateCmd.Flags().StringSliceVar(&workspaceCreateCharts, "chart", nil, "Chart to create in the workspace (repeatable)")
	workspaceExportCmd.Flags().StringVarP(&workspaceExportOutput, "output", "o", "", "Write to file instead of stdout")

	workspaceCmd.AddCommand(workspaceCreateCmd)
	workspaceCmd.AddCommand(workspaceImportCmd)
	workspaceCmd.AddCommand(workspaceExportCmd)
	workspaceCmd.AddCommand(workspaceLsCmd)
	workspaceCmd.AddCommand(workspaceShowCmd)
	workspaceCmd.AddCommand(workspaceRmCmd)
	workspaceCmd.AddCommand(workspaceSyncCmd)
}
