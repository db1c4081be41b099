package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/chartpatch/internal/engine"
	"github.com/danieljhkim/chartpatch/internal/fsops"
)

var (
	saveContent         string
	saveChartID         string
	saveRejectRemaining bool
)

var saveCmd = &cobra.Command{
	Use:   "save <workspace-id> <file-id-or-path>",
	Short: "Replace a file's content with a direct edit",
	Long: `Replace the committed content of a file with the contents of --content,
discarding its pending change.

With --reject-remaining, every other pending file of the active revision is
rejected afterwards; nothing happens when no other file is pending.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if saveContent == "" {
			return errors.New("--content is required")
		}
		data, err := fsops.NewRealFS().ReadFile(saveContent)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", saveContent, err)
		}

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

		req := &engine.SaveFileRequest{
			PatchRequest:    patchRequest(rs.sess.Workspace(), args[1], saveChartID),
			Content:         string(data),
			RejectRemaining: saveRejectRemaining,
		}
		res, err := rs.eng.SaveFile(ctx, req)
		if err != nil {
			return err
		}

		var unsynced []string
		if res.Fallback {
			unsynced = append(unsynced, res.File.ID)
		}
		if err := rs.save(unsynced...); err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(patchView(res))
		}
		printPatchResult(res, "sav")
		return nil
	},
}

func init() {
	saveCmd.Flags().StringVar(&saveContent, "content", "", "File containing the new content")
	saveCmd.Flags().StringVarP(&saveChartID, "chart", "c", "", "Chart the path belongs to (default: loose file)")
	saveCmd.Flags().BoolVar(&saveRejectRemaining, "reject-remaining", false, "Reject the other pending files afterwards")
}
