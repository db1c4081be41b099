package diffstat

import (
	"fmt"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of context lines in previews.
const DefaultContext = 3

// Unified renders a unified diff of original to modified for path, with
// "a/" and "b/" prefixes. New files diff against /dev/null. Returns "" when
// the texts are equal.
func Unified(path, original, modified string, context int) (string, error) {
	if original == modified {
		return "", nil
	}
	if context <= 0 {
		context = DefaultContext
	}

	from := "a/" + path
	if original == "" {
		from = "/dev/null"
	}

	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(original),
		B:        splitLinesKeepNL(modified),
		FromFile: from,
		ToFile:   "b/" + path,
		Context:  context,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("failed to render diff for %s: %w", path, err)
	}
	return s, nil
}
