package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/danieljhkim/chartpatch/internal/engine"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/state"
)

var reviewCmd = &cobra.Command{
	Use:   "review <workspace-id>",
	Short: "Review pending changes interactively",
	Long: `Start an interactive review of a workspace. Type 'help' for commands.

All decisions go through the same engine as the one-shot commands, so
persistence failures fall back to local transitions here too.`,
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

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          reviewPrompt(rs.sess.Workspace()),
			HistoryFile:     filepath.Join(a.cfg.Paths.Root, "review_history"),
			AutoComplete:    reviewCompleter,
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize readline: %w", err)
		}
		defer rl.Close()

		r := newReviewer(rs)
		PrintInfo(fmt.Sprintf("Reviewing %s. Type 'help' for commands.", rs.sess.Workspace().Name))
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				fmt.Println("Use 'quit' to leave the review.")
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}

			quit, err := r.exec(ctx, parseArgs(line))
			if err != nil {
				fmt.Println(formatError(err))
			}
			if quit {
				return nil
			}
			rl.SetPrompt(reviewPrompt(rs.sess.Workspace()))
		}
	},
}

var reviewCompleter = readline.NewPrefixCompleter(
	readline.PcItem("ls"),
	readline.PcItem("diff"),
	readline.PcItem("show"),
	readline.PcItem("accept"),
	readline.PcItem("reject"),
	readline.PcItem("accept-all"),
	readline.PcItem("reject-all"),
	readline.PcItem("sync"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

func reviewPrompt(ws *state.Workspace) string {
	n := len(reconcile.PendingFiles(ws, -1))
	if n == 0 {
		return fmt.Sprintf("%s> ", ws.Name)
	}
	return fmt.Sprintf("%s [%d pending]> ", ws.Name, n)
}

// reviewer executes review loop commands against a session.
type reviewer struct {
	rs *reviewSession
}

func newReviewer(rs *reviewSession) *reviewer {
	r := &reviewer{rs: rs}
	rs.sess.OnSelect(func(f state.File) {
		if !f.HasPending() {
			_, _ = dimColor.Printf("  %s is now clean\n", f.Path)
		}
	})
	return r
}

// exec runs one command. It reports whether the loop should end.
func (r *reviewer) exec(ctx context.Context, args []string) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}

	ws := r.rs.sess.Workspace()
	switch args[0] {
	case "quit", "exit", "q":
		return true, nil

	case "help", "?":
		printReviewHelp()

	case "ls":
		stats := make(map[string]reconcile.FileStat)
		for _, st := range r.rs.sess.Stats() {
			stats[st.File.ID] = st
		}
		for _, f := range ws.AllFiles() {
			if !f.HasPending() {
				continue
			}
			fmt.Printf("  %s", displayPath(ws, f))
			_, _ = dimColor.Printf("  %s", f.ID)
			PrintStats(stats[f.ID].Stats)
			fmt.Println()
		}

	case "diff":
		path := ""
		if len(args) > 1 {
			path = args[1]
		}
		files, err := collectDiffs(ws, r.rs.sess.Snapshot(), path, 0)
		if err != nil {
			return false, err
		}
		formatDiffs(files)

	case "show":
		if len(args) != 2 {
			return false, errors.New("usage: show <file>")
		}
		f, err := r.resolve(ws, args[1])
		if err != nil {
			return false, err
		}
		if _, err := r.rs.sess.Select(f.ID); err != nil {
			return false, err
		}
		buf, err := r.rs.sess.Open(f.ID)
		if err != nil {
			return false, err
		}
		files, err := collectDiffs(ws, r.rs.sess.Snapshot(), f.ID, 0)
		if err != nil {
			return false, err
		}
		PrintLabelValue("File", displayPath(ws, f))
		if buf.Dirty() {
			PrintLabelValueWithColor("State", "pending", warningColor)
		} else {
			PrintLabelValue("State", "clean")
		}
		formatDiffs(files)

	case "accept", "reject":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: %s <file>", args[0])
		}
		f, err := r.resolve(ws, args[1])
		if err != nil {
			return false, err
		}
		res, err := r.rs.single(ctx, f.ID, "", args[0])
		if err != nil {
			return false, err
		}
		r.rs.sess.CloseBuffer(f.ID)
		printPatchResult(res, args[0])

	case "accept-all", "reject-all":
		op := strings.TrimSuffix(args[0], "-all")
		res, err := r.rs.batch(ctx, &engine.BatchRequest{WorkspaceID: ws.ID, Trigger: engine.TriggerUser}, op)
		if err != nil {
			return false, err
		}
		printBatchResult(res, op)

	case "sync":
		res, err := r.rs.eng.Sync(ctx, &engine.SyncRequest{WorkspaceID: ws.ID, Unsynced: r.rs.cached.Unsynced})
		if err != nil {
			return false, err
		}
		r.rs.cached.Unsynced = res.Remaining
		if err := r.rs.save(); err != nil {
			return false, err
		}
		if len(res.Remaining) > 0 {
			PrintWarning(fmt.Sprintf("%s still unsynced", PrintCount(len(res.Remaining), "file", "files")))
		} else {
			PrintSuccess("Workspace up to date")
		}

	default:
		return false, fmt.Errorf("unknown command %q (type 'help')", args[0])
	}
	return false, nil
}

// resolve finds a file by id, by path, or by chart-name/path.
func (r *reviewer) resolve(ws *state.Workspace, arg string) (state.File, error) {
	for _, f := range ws.AllFiles() {
		if f.ID == arg || f.Path == arg || displayPath(ws, f) == arg {
			return f, nil
		}
	}
	return state.File{}, fmt.Errorf("%w: %s", engine.ErrFileNotFound, arg)
}

func printReviewHelp() {
	PrintSection("Commands")
	PrintTable([]string{"Command", "Description"}, [][]string{
		{"ls", "List pending files with change badges"},
		{"diff [file]", "Preview changes"},
		{"show <file>", "Select a file and preview it"},
		{"accept <file>", "Accept a file's pending change"},
		{"reject <file>", "Reject a file's pending change"},
		{"accept-all", "Accept every pending file of the active revision"},
		{"reject-all", "Reject every pending file of the active revision"},
		{"sync", "Push local fallbacks and refresh"},
		{"quit", "Leave the review"},
	})
}

// parseArgs splits a line on spaces, keeping double-quoted runs together.
func parseArgs(input string) []string {
	var (
		args     []string
		current  strings.Builder
		inQuotes bool
	)
	for _, ch := range strings.TrimSpace(input) {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}
