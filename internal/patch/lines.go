package patch

import "strings"

// normalize converts CRLF line endings to LF.
func normalize(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// usesCRLF reports whether the first line of s ends in CRLF.
func usesCRLF(s string) bool {
	i := strings.IndexByte(s, '\n')
	return i > 0 && s[i-1] == '\r'
}

// splitLines splits text into lines without terminators and reports whether
// the text ended with a newline.
func splitLines(s string) ([]string, bool) {
	if s == "" {
		return nil, false
	}
	trailing := strings.HasSuffix(s, "\n")
	if trailing {
		s = s[:len(s)-1]
	}
	return strings.Split(s, "\n"), trailing
}

// joinLines is the inverse of splitLines.
func joinLines(lines []string, trailing bool) string {
	if len(lines) == 0 {
		return ""
	}
	out := strings.Join(lines, "\n")
	if trailing {
		out += "\n"
	}
	return out
}

// sameLine compares two lines ignoring surrounding whitespace.
func sameLine(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

// texts returns the text of each line.
func texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

// trimTrailingBlank drops trailing whitespace-only lines.
func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
