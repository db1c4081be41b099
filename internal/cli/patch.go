package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/chartpatch/internal/diffstat"
	"github.com/danieljhkim/chartpatch/internal/fsops"
	"github.com/danieljhkim/chartpatch/internal/patch"
)

var (
	patchOriginal string
	patchFile     string
	patchOutput   string
)

// patchCmd groups the standalone patch tools.
var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Apply patches and compute change stats",
}

var patchApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a unified diff to a file",
	Long: `Apply a unified diff to a file with the tolerant applier and print the
result. Malformed or misnumbered hunks degrade to best-effort placement; the
original is returned unchanged when nothing applies.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if patchFile == "" {
			return errors.New("--patch is required")
		}
		fs := fsops.NewRealFS()

		var original []byte
		if patchOriginal != "" {
			var err error
			original, err = fs.ReadFile(patchOriginal)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to read %s: %w", patchOriginal, err)
			}
		}
		diff, err := fs.ReadFile(patchFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", patchFile, err)
		}

		res := patch.ApplyDetailed(string(original), string(diff))

		if patchOutput != "" {
			if err := fs.AtomicWrite(patchOutput, []byte(res.Content), 0644); err != nil {
				return err
			}
		}

		if jsonOutput {
			return outputJSON(map[string]any{
				"content":  res.Content,
				"strategy": res.Strategy,
				"warnings": res.Warnings,
				"stats":    diffstat.Compute(string(original), res.Content),
			})
		}

		if patchOutput == "" {
			fmt.Print(res.Content)
		}
		_, _ = dimColor.Fprintf(os.Stderr, "strategy: %s\n", res.Strategy)
		for _, w := range res.Warnings {
			_, _ = warningColor.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		return nil
	},
}

var patchStatCmd = &cobra.Command{
	Use:   "stat <original> <modified>",
	Short: "Count added and deleted lines between two files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := fsops.NewRealFS()
		texts := make([]string, 2)
		for i, p := range args {
			data, err := fs.ReadFile(p)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to read %s: %w", p, err)
			}
			texts[i] = string(data)
		}

		stats := diffstat.Compute(texts[0], texts[1])
		if jsonOutput {
			return outputJSON(stats)
		}

		if stats.IsZero() {
			PrintEmptyState("No changes")
			return nil
		}
		fmt.Print(" ")
		PrintStats(stats)
		fmt.Println()
		return nil
	},
}

func init() {
	patchApplyCmd.Flags().StringVar(&patchOriginal, "original", "", "Original file (missing or empty means a new file)")
	patchApplyCmd.Flags().StringVar(&patchFile, "patch", "", "File containing the unified diff")
	patchApplyCmd.Flags().StringVarP(&patchOutput, "output", "o", "", "Write the result to a file instead of stdout")

	patchCmd.AddCommand(patchApplyCmd)
	patchCmd.AddCommand(patchStatCmd)
}
