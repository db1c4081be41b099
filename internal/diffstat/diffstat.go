// Package diffstat counts added and removed lines between two texts and
// renders unified previews of pending changes.
//
// Counts use a line-level longest-common-subsequence diff from
// github.com/pmezard/go-difflib. A chunk's line count is the number of
// "\n"-delimited segments, minus one when the chunk ends with "\n", so a
// trailing newline never adds a phantom empty line.
package diffstat

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// Stats is the line delta between two texts.
type Stats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

// IsZero reports whether nothing was added or removed.
func (s Stats) IsZero() bool {
	return s.Additions == 0 && s.Deletions == 0
}

// Add returns the element-wise sum of two Stats.
func (s Stats) Add(o Stats) Stats {
	return Stats{Additions: s.Additions + o.Additions, Deletions: s.Deletions + o.Deletions}
}

// Compute returns the added and removed line counts from original to modified.
//
// Equal inputs yield zero. A whitespace-only original counts every line of
// modified as added (new file); a whitespace-only modified counts every line
// of original as removed (deleted file).
func Compute(original, modified string) Stats {
	if original == modified {
		return Stats{}
	}
	if strings.TrimSpace(original) == "" {
		return Stats{Additions: CountLines(modified)}
	}
	if strings.TrimSpace(modified) == "" {
		return Stats{Deletions: CountLines(original)}
	}

	a := splitLinesKeepNL(original)
	b := splitLinesKeepNL(modified)

	// Autojunk is off: manifests repeat lines like "---" and "  - name:"
	// often enough to be dropped as popular, which skews the counts.
	m := difflib.NewMatcherWithJunk(a, b, false, nil)

	var stats Stats
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			stats.Deletions += CountLines(strings.Join(a[op.I1:op.I2], ""))
			stats.Additions += CountLines(strings.Join(b[op.J1:op.J2], ""))
		case 'd':
			stats.Deletions += CountLines(strings.Join(a[op.I1:op.I2], ""))
		case 'i':
			stats.Additions += CountLines(strings.Join(b[op.J1:op.J2], ""))
		}
	}
	return stats
}

// CountLines returns the number of semantic lines in a chunk.
func CountLines(chunk string) int {
	if chunk == "" {
		return 0
	}
	n := strings.Count(chunk, "\n") + 1
	if strings.HasSuffix(chunk, "\n") {
		n--
	}
	return n
}

// splitLinesKeepNL splits into lines keeping their "\n" terminators.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
