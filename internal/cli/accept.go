package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/chartpatch/internal/engine"
)

var patchChartID string

var acceptCmd = &cobra.Command{
	Use:   "accept <workspace-id> <file-id-or-path>",
	Short: "Accept the pending change of a file",
	Long: `Accept the pending change of one file. A pending diff is applied to the
committed content; full text replaces it.

If persistence fails or times out, the change is applied locally and the file
is marked unsynced until the next 'chartpatch workspace sync'.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingle(args[0], args[1], "accept")
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <workspace-id> <file-id-or-path>",
	Short: "Reject the pending change of a file",
	Long: `Reject the pending change of one file, keeping its committed content.

If persistence fails or times out, the change is applied locally and the file
is marked unsynced until the next 'chartpatch workspace sync'.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingle(args[0], args[1], "reject")
	},
}

func init() {
	acceptCmd.Flags().StringVarP(&patchChartID, "chart", "c", "", "Chart the path belongs to (default: loose file)")
	rejectCmd.Flags().StringVarP(&patchChartID, "chart", "c", "", "Chart the path belongs to (default: loose file)")
}

func runSingle(workspaceID, fileArg, op string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	rs, err := a.openSession(ctx, workspaceID)
	if err != nil {
		return err
	}
	defer rs.Close()

	res, err := rs.single(ctx, fileArg, patchChartID, op)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(patchView(res))
	}
	printPatchResult(res, op)
	return nil
}

// single runs one accept or reject and saves the cache.
func (r *reviewSession) single(ctx context.Context, fileArg, chartID, op string) (*engine.PatchResult, error) {
	req := patchRequest(r.sess.Workspace(), fileArg, chartID)

	run := r.eng.AcceptPatch
	if op == "reject" {
		run = r.eng.RejectPatch
	}
	res, err := run(ctx, &req)
	if err != nil {
		return nil, err
	}

	var unsynced []string
	if res.Fallback {
		unsynced = append(unsynced, res.File.ID)
	}
	if err := r.save(unsynced...); err != nil {
		return nil, err
	}
	return res, nil
}

func printPatchResult(res *engine.PatchResult, op string) {
	switch {
	case res.Noop:
		PrintEmptyState(fmt.Sprintf("%s has no pending change", res.File.Path))
	case res.Fallback:
		PrintWarning(fmt.Sprintf("%sed %s locally; persistence failed: %v", op, res.File.Path, res.RemoteErr))
	default:
		PrintSuccess(fmt.Sprintf("%sed %s", op, res.File.Path))
	}
	if res.Applied != nil {
		_, _ = dimColor.Printf("  applied with %s\n", res.Applied.Strategy)
		for _, w := range res.Applied.Warnings {
			_, _ = warningColor.Printf("  %s\n", w)
		}
	}
}

func patchView(res *engine.PatchResult) map[string]any {
	v := map[string]any{
		"file":     res.File,
		"noop":     res.Noop,
		"fallback": res.Fallback,
	}
	if res.Applied != nil {
		v["strategy"] = res.Applied.Strategy
		v["warnings"] = res.Applied.Warnings
	}
	if res.RemoteErr != nil {
		v["remoteError"] = res.RemoteErr.Error()
	}
	return v
}
