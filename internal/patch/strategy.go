package patch

import (
	"fmt"
	"sort"
	"strings"
)

// searchWindow is how far (in lines) hunk replay looks around the declared
// position before searching the whole text.
const searchWindow = 10

// Candidate is the complete output of a strategy that accepted the patch.
type Candidate struct {
	Content  string
	Warnings []string
}

// StrategyFunc computes a candidate from the original text and patch, or
// declines by returning false. Implementations must not mutate shared state.
type StrategyFunc func(original, patch string) (Candidate, bool)

// Strategy is a named entry in the fallback chain.
type Strategy struct {
	Name string
	Fn   StrategyFunc
}

// Strategy names reported in Result.Strategy.
const (
	StrategyContentMatch = "content-match"
	StrategyHunkReplay   = "hunk-replay"
	StrategyNewFile      = "new-file"
	StrategyKeptContent  = "kept-content"
	StrategyLineReplace  = "line-replace"
	StrategyIdentity     = "identity"
)

// Strategies returns the fallback chain in the order Apply tries it.
func Strategies() []Strategy {
	return []Strategy{
		{Name: StrategyContentMatch, Fn: ContentMatch},
		{Name: StrategyHunkReplay, Fn: HunkReplay},
		{Name: StrategyNewFile, Fn: NewFile},
		{Name: StrategyKeptContent, Fn: KeptContent},
		{Name: StrategyLineReplace, Fn: LineReplace},
	}
}

// entry is an original line plus the lines spliced around it.
type entry struct {
	text    string
	removed bool
	before  []string
	after   []string
}

// ContentMatch ignores declared line numbers. Every removed line is matched
// by trimmed text and dropped, preferring the first match after the hunk's
// preceding context line; every run of added lines is placed after the
// nearest preceding context line of its hunk. A run without such an anchor
// takes the place of the removal run right before it, or goes in front of the
// next context line, or is appended at the end.
//
// It declines when any removed line cannot be found.
func ContentMatch(original, patch string) (Candidate, bool) {
	p, err := Parse(patch)
	if err != nil {
		return Candidate{}, false
	}
	if p.isNewFile() && strings.TrimSpace(original) != "" {
		return Candidate{}, false
	}

	lines, trailing := splitLines(original)
	if len(lines) == 0 {
		trailing = true
	}
	entries := make([]entry, len(lines))
	for i, l := range lines {
		entries[i] = entry{text: l}
	}

	type lineRef struct{ hunk, line int }
	removedAt := make(map[lineRef]int)
	changed := false

	cursor := 0
	for hi, h := range p.Hunks {
		for li, l := range h.Lines {
			if l.Kind != Removal {
				continue
			}
			idx := -1
			if ci := prevContext(h, li); ci >= 0 {
				if at := findEntry(entries, h.Lines[ci].Text, cursor); at >= 0 {
					idx = findForward(entries, l.Text, at+1)
				}
			}
			if idx < 0 {
				idx = findEntry(entries, l.Text, cursor)
			}
			if idx < 0 {
				return Candidate{}, false
			}
			entries[idx].removed = true
			removedAt[lineRef{hi, li}] = idx
			cursor = idx
			changed = true
		}
	}

	var tail []string
	cursor = 0
	for hi, h := range p.Hunks {
		li := 0
		for li < len(h.Lines) {
			if h.Lines[li].Kind != Addition {
				li++
				continue
			}
			start := li
			for li < len(h.Lines) && h.Lines[li].Kind == Addition {
				li++
			}
			block := texts(h.Lines[start:li])
			changed = true

			if ci := prevContext(h, start); ci >= 0 {
				if idx := findEntry(entries, h.Lines[ci].Text, cursor); idx >= 0 {
					entries[idx].after = append(entries[idx].after, block...)
					cursor = idx
					continue
				}
			}

			if start > 0 && h.Lines[start-1].Kind == Removal {
				r := start - 1
				for r > 0 && h.Lines[r-1].Kind == Removal {
					r--
				}
				idx := removedAt[lineRef{hi, r}]
				entries[idx].after = append(entries[idx].after, block...)
				cursor = idx
				continue
			}

			if ci := nextContext(h, li); ci >= 0 {
				if idx := findEntry(entries, h.Lines[ci].Text, cursor); idx >= 0 {
					entries[idx].before = append(entries[idx].before, block...)
					cursor = idx
					continue
				}
			}

			tail = append(tail, block...)
		}
	}

	if !changed {
		return Candidate{}, false
	}

	var out []string
	for _, e := range entries {
		out = append(out, e.before...)
		if !e.removed {
			out = append(out, e.text)
		}
		out = append(out, e.after...)
	}
	out = append(out, tail...)

	return Candidate{Content: joinLines(out, trailing)}, true
}

// HunkReplay replays hunks positionally, in original-line order, searching
// around the declared position for the lines each hunk expects. When the
// whole old side of a hunk is found it is replaced in one splice; otherwise
// the hunk is replayed by shape (pure deletion, pure addition, replacement).
// Positional splices made without an exact match are reported as warnings.
func HunkReplay(original, patch string) (Candidate, bool) {
	p, err := Parse(patch)
	if err != nil {
		return Candidate{}, false
	}
	if strings.TrimSpace(original) == "" || p.isNewFile() {
		return Candidate{}, false
	}

	lines, trailing := splitLines(original)
	work := append([]string(nil), lines...)

	hunks := append([]Hunk(nil), p.Hunks...)
	sort.SliceStable(hunks, func(i, j int) bool {
		return hunks[i].OrigStart < hunks[j].OrigStart
	})

	var warnings []string
	changed := false
	offset := 0

	for n, h := range hunks {
		adds, removes := h.count(Addition), h.count(Removal)
		if adds == 0 && removes == 0 {
			continue
		}
		changed = true

		before := len(work)
		pos := clamp(h.OrigStart-1+offset, 0, len(work))
		old := h.OldSide()

		if at := locateBlock(work, old, pos); at >= 0 {
			work = splice(work, at, len(old), h.NewSide())
		} else {
			var w []string
			switch {
			case adds == 0:
				work, w = replayDeletion(work, h, pos)
			case removes == 0:
				work, w = replayAddition(work, h, pos)
			default:
				work, w = replayReplacement(work, h, pos)
			}
			for _, msg := range w {
				warnings = append(warnings, fmt.Sprintf("hunk %d (@@ -%d,%d): %s", n+1, h.OrigStart, h.OrigCount, msg))
			}
		}

		offset += len(work) - before
	}

	if !changed {
		return Candidate{}, false
	}
	return Candidate{Content: joinLines(work, trailing), Warnings: warnings}, true
}

// replayDeletion removes each removed line where it is found near pos, then
// anywhere; a line found nowhere is removed at its computed position.
func replayDeletion(work []string, h Hunk, pos int) ([]string, []string) {
	var warnings []string
	cur := pos
	for _, l := range h.Lines {
		switch l.Kind {
		case Context:
			if i := find(work, l.Text, cur); i >= 0 {
				cur = i + 1
			}
		case Removal:
			if i := find(work, l.Text, cur); i >= 0 {
				work = splice(work, i, 1, nil)
				cur = i
				continue
			}
			if cur < len(work) {
				warnings = append(warnings, fmt.Sprintf("line %q not found, removed line %d instead", l.Text, cur+1))
				work = splice(work, cur, 1, nil)
			}
		}
	}
	return work, warnings
}

// replayAddition inserts added lines next to the context lines surrounding
// them, falling back to the computed position when no context is found.
func replayAddition(work []string, h Hunk, pos int) ([]string, []string) {
	cur := pos
	anchored := false
	for i, l := range h.Lines {
		switch l.Kind {
		case Context:
			if at := find(work, l.Text, cur); at >= 0 {
				cur = at + 1
				anchored = true
			}
		case Addition:
			if !anchored {
				if ci := nextContext(h, i); ci >= 0 {
					if at := find(work, h.Lines[ci].Text, cur); at >= 0 {
						cur = at
						anchored = true
					}
				}
			}
			work = splice(work, cur, 0, []string{l.Text})
			cur++
		}
	}
	if !anchored {
		return work, []string{fmt.Sprintf("no context found, inserted at line %d", pos+1)}
	}
	return work, nil
}

// replayReplacement locates the first replaced line and splices from there.
// If it cannot be found the splice still happens at the computed position.
func replayReplacement(work []string, h Hunk, pos int) ([]string, []string) {
	var warnings []string
	cur := pos
	located := false
	for _, l := range h.Lines {
		switch l.Kind {
		case Context:
			if at := find(work, l.Text, cur); at >= 0 {
				cur = at + 1
			}
		case Removal:
			if cur < len(work) && sameLine(work[cur], l.Text) {
				work = splice(work, cur, 1, nil)
				located = true
				continue
			}
			if !located {
				if at := find(work, l.Text, cur); at >= 0 {
					work = splice(work, at, 1, nil)
					cur = at
					located = true
					continue
				}
				warnings = append(warnings, fmt.Sprintf("line %q not found, replacing at line %d", l.Text, cur+1))
				located = true
			}
			if cur < len(work) {
				work = splice(work, cur, 1, nil)
			}
		case Addition:
			work = splice(work, cur, 0, []string{l.Text})
			cur++
		}
	}
	return work, warnings
}

// NewFile synthesizes the result from added lines when the original is empty
// or the patch is a sole "-0,0 +1,N" hunk.
func NewFile(original, patch string) (Candidate, bool) {
	var adds []string
	if p, err := Parse(patch); err == nil {
		if strings.TrimSpace(original) != "" && !p.isNewFile() {
			return Candidate{}, false
		}
		for _, h := range p.Hunks {
			for _, l := range h.Lines {
				if l.Kind == Addition {
					adds = append(adds, l.Text)
				}
			}
		}
	} else {
		if strings.TrimSpace(original) != "" {
			return Candidate{}, false
		}
		for _, l := range Scan(patch) {
			if l.Kind == Addition {
				adds = append(adds, l.Text)
			}
		}
	}

	if len(adds) == 0 {
		return Candidate{}, false
	}
	return Candidate{Content: joinLines(adds, true)}, true
}

// KeptContent treats a headerless patch as a full-file rewrite: the context
// and added lines become the new text. It only accepts when the context and
// removed lines reproduce the original exactly, so a partial fragment cannot
// truncate the file.
func KeptContent(original, patch string) (Candidate, bool) {
	var old, kept []string
	changed := false
	for _, l := range Scan(patch) {
		switch l.Kind {
		case Context:
			old = append(old, l.Text)
			kept = append(kept, l.Text)
		case Removal:
			old = append(old, l.Text)
			changed = true
		case Addition:
			kept = append(kept, l.Text)
			changed = true
		default:
			return Candidate{}, false
		}
	}
	if !changed {
		return Candidate{}, false
	}

	lines, trailing := splitLines(original)
	want := trimTrailingBlank(lines)
	got := trimTrailingBlank(old)
	if len(want) != len(got) {
		return Candidate{}, false
	}
	for i := range want {
		if !sameLine(want[i], got[i]) {
			return Candidate{}, false
		}
	}

	return Candidate{Content: joinLines(kept, trailing || len(lines) == 0)}, true
}

// LineReplace pairs removed and added lines one to one and replaces the
// first verbatim occurrence of each removed line with its partner. It needs
// equal, non-zero counts and every removed line present in the text.
func LineReplace(original, patch string) (Candidate, bool) {
	var minus, plus []string
	for _, l := range Scan(patch) {
		switch l.Kind {
		case Removal:
			minus = append(minus, l.Text)
		case Addition:
			plus = append(plus, l.Text)
		}
	}
	if len(minus) == 0 || len(minus) != len(plus) {
		return Candidate{}, false
	}

	out := original
	for i := range minus {
		if strings.TrimSpace(minus[i]) == "" || !strings.Contains(out, minus[i]) {
			return Candidate{}, false
		}
		out = strings.Replace(out, minus[i], plus[i], 1)
	}
	if out == original {
		return Candidate{}, false
	}
	return Candidate{Content: out}, true
}

// findEntry returns the first live entry matching text at or after cursor,
// wrapping to the start. Returns -1 if none.
func findEntry(entries []entry, text string, cursor int) int {
	for i := cursor; i < len(entries); i++ {
		if !entries[i].removed && sameLine(entries[i].text, text) {
			return i
		}
	}
	for i := 0; i < cursor && i < len(entries); i++ {
		if !entries[i].removed && sameLine(entries[i].text, text) {
			return i
		}
	}
	return -1
}

// findForward is findEntry without wrapping around.
func findForward(entries []entry, text string, from int) int {
	for i := from; i < len(entries); i++ {
		if !entries[i].removed && sameLine(entries[i].text, text) {
			return i
		}
	}
	return -1
}

// prevContext returns the index of the nearest context line before i.
func prevContext(h Hunk, i int) int {
	for j := i - 1; j >= 0; j-- {
		if h.Lines[j].Kind == Context {
			return j
		}
	}
	return -1
}

// nextContext returns the index of the first context line at or after i.
func nextContext(h Hunk, i int) int {
	for j := i; j < len(h.Lines); j++ {
		if h.Lines[j].Kind == Context {
			return j
		}
	}
	return -1
}

// find searches for text nearest to pos within searchWindow, then in the
// whole slice. Returns -1 if absent.
func find(work []string, text string, pos int) int {
	for d := 0; d <= searchWindow; d++ {
		if i := pos + d; i < len(work) && sameLine(work[i], text) {
			return i
		}
		if i := pos - d; d > 0 && i >= 0 && i < len(work) && sameLine(work[i], text) {
			return i
		}
	}
	for i := range work {
		if sameLine(work[i], text) {
			return i
		}
	}
	return -1
}

// locateBlock finds block as a contiguous run nearest to pos. An empty block
// is never located.
func locateBlock(work, block []string, pos int) int {
	if len(block) == 0 {
		return -1
	}
	matches := func(at int) bool {
		if at < 0 || at+len(block) > len(work) {
			return false
		}
		for i := range block {
			if !sameLine(work[at+i], block[i]) {
				return false
			}
		}
		return true
	}
	for d := 0; d <= searchWindow; d++ {
		if matches(pos + d) {
			return pos + d
		}
		if d > 0 && matches(pos-d) {
			return pos - d
		}
	}
	for at := range work {
		if matches(at) {
			return at
		}
	}
	return -1
}

// splice returns a new slice with n lines at i replaced by repl.
func splice(work []string, i, n int, repl []string) []string {
	out := make([]string, 0, len(work)-n+len(repl))
	out = append(out, work[:i]...)
	out = append(out, repl...)
	out = append(out, work[i+n:]...)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
