package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/danieljhkim/chartpatch/internal/engine"
)

var (
	batchRevision  int
	batchIfPending bool
)

var acceptAllCmd = &cobra.Command{
	Use:   "accept-all <workspace-id>",
	Short: "Accept every pending change of a revision",
	Long: `Accept every pending file of a revision (default: the active revision),
across loose files and all charts.

A file whose persistence call fails is still accepted locally and marked
unsynced; the other files are not affected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args[0], "accept")
	},
}

var rejectAllCmd = &cobra.Command{
	Use:   "reject-all <workspace-id>",
	Short: "Reject every pending change of a revision",
	Long: `Reject every pending file of a revision (default: the active revision),
across loose files and all charts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args[0], "reject")
	},
}

func init() {
	for _, c := range []*cobra.Command{acceptAllCmd, rejectAllCmd} {
		c.Flags().IntVarP(&batchRevision, "revision", "r", 0, "Revision to process (default: active revision)")
		c.Flags().BoolVar(&batchIfPending, "if-pending", false, "Do nothing instead of failing when no file is pending")
	}
}

func runBatch(cmd *cobra.Command, workspaceID, op string) error {
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

	req := &engine.BatchRequest{WorkspaceID: workspaceID, Trigger: engine.TriggerUser}
	if batchIfPending {
		req.Trigger = engine.TriggerOpportunistic
	}
	if cmd.Flags().Changed("revision") {
		rev := batchRevision
		req.RevisionNumber = &rev
	}

	res, err := rs.batch(ctx, req, op)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(batchView(res))
	}
	printBatchResult(res, op)
	return nil
}

// batch runs accept-all or reject-all and saves the cache.
func (r *reviewSession) batch(ctx context.Context, req *engine.BatchRequest, op string) (*engine.BatchResult, error) {
	run := r.eng.AcceptAll
	if op == "reject" {
		run = r.eng.RejectAll
	}
	res, err := run(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := r.save(res.Fallback...); err != nil {
		return nil, err
	}
	return res, nil
}

func printBatchResult(res *engine.BatchResult, op string) {
	if len(res.Files) == 0 {
		PrintEmptyState(fmt.Sprintf("No pending files at revision %d", res.RevisionNumber))
		return
	}

	PrintSuccess(fmt.Sprintf("%sed %s at revision %d", op, PrintCount(len(res.Files), "file", "files"), res.RevisionNumber))
	if res.BulkFallback {
		PrintWarning("bulk persistence failed, files were processed one by one")
	}
	if len(res.Fallback) > 0 {
		PrintWarning(fmt.Sprintf("%s applied locally only", PrintCount(len(res.Fallback), "file", "files")))
		for _, err := range multierr.Errors(res.Err) {
			_, _ = dimColor.Printf("  %v\n", err)
		}
	}
	if !res.Refreshed {
		PrintWarning("revision state not refreshed; run 'chartpatch workspace sync'")
	}
}

func batchView(res *engine.BatchResult) map[string]any {
	v := map[string]any{
		"revisionNumber": res.RevisionNumber,
		"files":          res.Files,
		"fallback":       res.Fallback,
		"bulkFallback":   res.BulkFallback,
		"refreshed":      res.Refreshed,
	}
	var errs []string
	for _, err := range multierr.Errors(res.Err) {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		v["errors"] = errs
	}
	return v
}
