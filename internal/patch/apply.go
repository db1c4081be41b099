package patch

import "strings"

// Result describes how a patch was applied.
type Result struct {
	// Content is the patched text (the original when nothing applied)
	Content string

	// Strategy is the name of the strategy that produced Content
	Strategy string

	// Warnings lists positional splices made without an exact match
	Warnings []string
}

// Apply returns original with patch applied. It never fails: when no
// strategy accepts the patch the original is returned unchanged.
func Apply(original, patch string) string {
	return ApplyDetailed(original, patch).Content
}

// ApplyDetailed is Apply with the winning strategy and its warnings.
func ApplyDetailed(original, patch string) Result {
	return applyWith(Strategies(), original, patch)
}

func applyWith(strategies []Strategy, original, patch string) Result {
	if strings.TrimSpace(patch) == "" {
		return Result{Content: original, Strategy: StrategyIdentity}
	}

	crlf := usesCRLF(original)
	base := original
	if crlf {
		base = normalize(original)
	}

	for _, s := range strategies {
		if c, ok := try(s.Fn, base, patch); ok {
			content := c.Content
			if crlf {
				content = strings.ReplaceAll(normalize(content), "\n", "\r\n")
			}
			return Result{Content: content, Strategy: s.Name, Warnings: c.Warnings}
		}
	}
	return Result{Content: original, Strategy: StrategyIdentity}
}

// try runs one strategy and turns a panic into a decline.
func try(fn StrategyFunc, original, patch string) (c Candidate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c, ok = Candidate{}, false
		}
	}()
	return fn(original, patch)
}
