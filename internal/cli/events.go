package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/danieljhkim/chartpatch/internal/events"
	"github.com/danieljhkim/chartpatch/internal/fsops"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/session"
)

// eventsCmd groups event stream tools.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Work with workspace event streams",
}

var eventsReplayCmd = &cobra.Command{
	Use:   "replay <workspace-id> <events.jsonl>",
	Short: "Replay a backlog of workspace events",
	Long: `Replay a JSON-lines backlog of workspace events, as received after a
reconnect. Patch events are coalesced to the newest per file and stale ones
are ignored. Pending changes that result are recorded in persistence.

Lines that cannot be decoded are reported and skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := fsops.NewRealFS().ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}

		evs, decodeErr := events.DecodeLines(bytes.NewReader(data))

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

		for _, err := range multierr.Errors(decodeErr) {
			a.logger.Warn("skipping event", zap.Error(err))
		}

		result, err := rs.sess.Replay(ctx, evs)
		if err != nil {
			return err
		}

		persisted, err := rs.persistPending(ctx)
		if err != nil {
			return err
		}
		if err := rs.save(); err != nil {
			return err
		}

		skipped := make(map[session.SkipReason]int)
		for _, o := range result.Outcomes {
			if o.Skipped != "" {
				skipped[o.Skipped]++
			}
		}

		if jsonOutput {
			var errs []string
			for _, err := range multierr.Errors(decodeErr) {
				errs = append(errs, err.Error())
			}
			return outputJSON(map[string]any{
				"decoded":   len(evs),
				"coalesced": result.Coalesced,
				"applied":   result.Applied(),
				"skipped":   skipped,
				"persisted": persisted,
				"errors":    errs,
				"plans":     rs.sess.Plans(),
			})
		}

		PrintSection("Replay")
		PrintLabelValue("Decoded", fmt.Sprintf("%d", len(evs)))
		PrintLabelValue("Coalesced", fmt.Sprintf("%d", result.Coalesced))
		PrintLabelValue("Applied", fmt.Sprintf("%d", result.Applied()))
		for reason, n := range skipped {
			PrintLabelValue("Skipped ("+string(reason)+")", fmt.Sprintf("%d", n))
		}
		PrintLabelValue("Persisted", fmt.Sprintf("%d", persisted))
		if n := len(multierr.Errors(decodeErr)); n > 0 {
			PrintWarning(fmt.Sprintf("%s could not be decoded", PrintCount(n, "line", "lines")))
		}

		if plans := rs.sess.Plans(); len(plans) > 0 {
			PrintSection("Plans")
			rows := make([][]string, 0, len(plans))
			for _, p := range plans {
				rows = append(rows, []string{p.ID, p.Status, fmt.Sprintf("%d", len(p.ActionFiles)), p.Description})
			}
			PrintTable([]string{"Plan", "Status", "Files", "Description"}, rows)
		}
		return nil
	},
}

func init() {
	eventsCmd.AddCommand(eventsReplayCmd)
}

// persistPending records every pending change the session holds that
// persistence does not know yet.
func (r *reviewSession) persistPending(ctx context.Context) (int, error) {
	ws := r.sess.Workspace()
	stored, err := r.app.store.GetWorkspace(ctx, ws.ID)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, f := range ws.AllFiles() {
		if !f.HasPending() {
			continue
		}
		sf, _, ok := reconcile.Find(stored, reconcile.KeyOf(f))
		if ok && sf.HasPending() && sf.Pending() == f.Pending() && sf.RevisionNumber == f.RevisionNumber {
			continue
		}
		if _, err := r.app.store.SetPendingContent(ctx, ws.ID, f.ChartID, f.Path, f.RevisionNumber, f.Pending()); err != nil {
			return n, fmt.Errorf("failed to persist %s: %w", f.Path, err)
		}
		n++
	}
	return n, nil
}
