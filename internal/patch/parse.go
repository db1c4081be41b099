package patch

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoHunks indicates the patch text has no parseable hunk header.
var ErrNoHunks = errors.New("patch contains no hunks")

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// LineKind classifies a single patch body line.
type LineKind int

const (
	// Context is an unchanged line (" " prefix).
	Context LineKind = iota

	// Addition is an added line ("+" prefix).
	Addition

	// Removal is a removed line ("-" prefix).
	Removal

	// Other is an unprefixed line outside any hunk. Only Scan produces it.
	Other
)

// String returns a short name for the kind.
func (k LineKind) String() string {
	switch k {
	case Context:
		return "context"
	case Addition:
		return "addition"
	case Removal:
		return "removal"
	default:
		return "other"
	}
}

// Line is one body line of a patch with its prefix stripped.
type Line struct {
	Kind LineKind
	Text string
}

// Hunk is a contiguous block of a unified diff.
type Hunk struct {
	// OrigStart is the 1-based start line in the original text (0 for new files)
	OrigStart int

	// OrigCount is the declared number of original lines covered
	OrigCount int

	// NewStart is the 1-based start line in the resulting text
	NewStart int

	// NewCount is the declared number of resulting lines covered
	NewCount int

	// Lines is the hunk body in patch order
	Lines []Line
}

// OldSide returns the context and removed lines, i.e. what the hunk expects
// to find in the original.
func (h Hunk) OldSide() []string {
	var out []string
	for _, l := range h.Lines {
		if l.Kind == Context || l.Kind == Removal {
			out = append(out, l.Text)
		}
	}
	return out
}

// NewSide returns the context and added lines, i.e. what the hunk produces.
func (h Hunk) NewSide() []string {
	var out []string
	for _, l := range h.Lines {
		if l.Kind == Context || l.Kind == Addition {
			out = append(out, l.Text)
		}
	}
	return out
}

// count returns the number of lines of the given kind.
func (h Hunk) count(kind LineKind) int {
	n := 0
	for _, l := range h.Lines {
		if l.Kind == kind {
			n++
		}
	}
	return n
}

// Patch is the structured form of a single-file unified diff.
type Patch struct {
	OldName string
	NewName string
	Hunks   []Hunk
}

// isNewFile reports whether the patch is a sole "-0,0 +1,N" hunk.
func (p *Patch) isNewFile() bool {
	return len(p.Hunks) == 1 && p.Hunks[0].OrigStart == 0 && p.Hunks[0].OrigCount == 0
}

// Parse parses patch text into hunks. Lines before the first hunk header
// (diff --git, index, ---/+++ headers) are ignored. Inside a hunk an
// unprefixed line is read as context, since generated patches often drop the
// leading space of blank or unchanged lines.
func Parse(text string) (*Patch, error) {
	lines, _ := splitLines(normalize(text))

	p := &Patch{}
	var cur *Hunk
	blanks := 0

	flush := func() {
		if cur != nil {
			p.Hunks = append(p.Hunks, *cur)
			cur = nil
		}
		blanks = 0
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := hunkHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = &Hunk{
				OrigStart: atoi(m[1], 0),
				OrigCount: atoi(m[2], 1),
				NewStart:  atoi(m[3], 0),
				NewCount:  atoi(m[4], 1),
			}
			continue
		}

		if isFileHeader(lines, i) {
			flush()
			p.OldName = headerName(line)
			p.NewName = headerName(lines[i+1])
			i++
			continue
		}

		if cur == nil {
			continue
		}

		// Blank lines are held back so trailing blanks after the last hunk
		// are not read as context.
		if line == "" {
			blanks++
			continue
		}
		for ; blanks > 0; blanks-- {
			cur.Lines = append(cur.Lines, Line{Kind: Context})
		}

		if l, ok := classify(line); ok {
			cur.Lines = append(cur.Lines, l)
		} else if !strings.HasPrefix(line, `\`) {
			cur.Lines = append(cur.Lines, Line{Kind: Context, Text: line})
		}
	}
	flush()

	if len(p.Hunks) == 0 {
		return nil, ErrNoHunks
	}
	return p, nil
}

// Scan classifies every body line of a patch by prefix without requiring
// hunk headers. Header lines are skipped and unprefixed lines come back as
// Other.
func Scan(text string) []Line {
	lines, _ := splitLines(normalize(text))

	var out []Line
	blanks := 0
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		switch {
		case isFileHeader(lines, i):
			i++
			continue
		case strings.HasPrefix(line, "@@"),
			strings.HasPrefix(line, "diff --git "),
			strings.HasPrefix(line, "index "),
			strings.HasPrefix(line, `\`):
			continue
		case line == "":
			blanks++
			continue
		}

		for ; blanks > 0; blanks-- {
			if len(out) > 0 {
				out = append(out, Line{Kind: Context})
			}
		}

		if l, ok := classify(line); ok {
			out = append(out, l)
		} else {
			out = append(out, Line{Kind: Other, Text: line})
		}
	}
	return out
}

// IsUnifiedDiff reports whether text parses into at least one hunk that
// changes something.
func IsUnifiedDiff(text string) bool {
	p, err := Parse(text)
	if err != nil {
		return false
	}
	for _, h := range p.Hunks {
		if h.count(Addition) > 0 || h.count(Removal) > 0 {
			return true
		}
	}
	return false
}

// classify maps a prefixed line to a Line.
func classify(line string) (Line, bool) {
	switch line[0] {
	case '+':
		return Line{Kind: Addition, Text: line[1:]}, true
	case '-':
		return Line{Kind: Removal, Text: line[1:]}, true
	case ' ':
		return Line{Kind: Context, Text: line[1:]}, true
	}
	return Line{}, false
}

// isFileHeader reports whether lines[i] starts a "--- a" / "+++ b" pair.
func isFileHeader(lines []string, i int) bool {
	return strings.HasPrefix(lines[i], "--- ") &&
		i+1 < len(lines) &&
		strings.HasPrefix(lines[i+1], "+++ ")
}

func headerName(line string) string {
	name := strings.TrimSpace(line[4:])
	if tab := strings.IndexByte(name, '\t'); tab >= 0 {
		name = name[:tab]
	}
	return name
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
