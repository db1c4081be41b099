package patch

import (
	"reflect"
	"testing"
)

func TestStrategies_Order(t *testing.T) {
	var names []string
	for _, s := range Strategies() {
		names = append(names, s.Name)
	}

	want := []string{
		StrategyContentMatch,
		StrategyHunkReplay,
		StrategyNewFile,
		StrategyKeptContent,
		StrategyLineReplace,
	}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Strategies() = %v, want %v", names, want)
	}
}

func TestContentMatch_DeclinesOnMissingRemoval(t *testing.T) {
	if _, ok := ContentMatch("a\nb\n", "@@ -1,1 +1,1 @@\n-zzz\n+b\n"); ok {
		t.Error("expected ContentMatch to decline when a removed line is absent")
	}
}

func TestContentMatch_BlockWithoutAnchorReplacesRemovalRun(t *testing.T) {
	c, ok := ContentMatch("x\nold1\nold2\ny\n", "@@ -2,2 +2,1 @@\n-old1\n-old2\n+new\n")
	if !ok {
		t.Fatal("expected ContentMatch to accept")
	}
	if c.Content != "x\nnew\ny\n" {
		t.Errorf("Content = %q, want %q", c.Content, "x\nnew\ny\n")
	}
}

func TestContentMatch_BlockBeforeFollowingContext(t *testing.T) {
	c, ok := ContentMatch("a\nb\n", "@@ -1,1 +1,2 @@\n+first\n a\n")
	if !ok {
		t.Fatal("expected ContentMatch to accept")
	}
	if c.Content != "first\na\nb\n" {
		t.Errorf("Content = %q, want %q", c.Content, "first\na\nb\n")
	}
}

func TestContentMatch_UnanchoredBlockAppends(t *testing.T) {
	c, ok := ContentMatch("a\nb\n", "@@ -9,0 +9,1 @@\n+tail\n")
	if !ok {
		t.Fatal("expected ContentMatch to accept")
	}
	if c.Content != "a\nb\ntail\n" {
		t.Errorf("Content = %q, want %q", c.Content, "a\nb\ntail\n")
	}
}

func TestHunkReplay_FindsBlockNearDeclaredPosition(t *testing.T) {
	c, ok := HunkReplay("l1\nl2\nl3\nl4\nl5\n", "@@ -1,2 +1,2 @@\n l3\n-l4\n+L4\n")
	if !ok {
		t.Fatal("expected HunkReplay to accept")
	}
	if c.Content != "l1\nl2\nl3\nL4\nl5\n" {
		t.Errorf("Content = %q, want %q", c.Content, "l1\nl2\nl3\nL4\nl5\n")
	}
	if len(c.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", c.Warnings)
	}
}

func TestHunkReplay_PureAdditionUsesContextAfter(t *testing.T) {
	c, ok := HunkReplay("a\nb\nc\n", "@@ -1,1 +1,2 @@\n+inserted\n c\n")
	if !ok {
		t.Fatal("expected HunkReplay to accept")
	}
	// The old side "c" is located as a block and replaced by the new side.
	if c.Content != "a\nb\ninserted\nc\n" {
		t.Errorf("Content = %q, want %q", c.Content, "a\nb\ninserted\nc\n")
	}
}

func TestHunkReplay_DeclinesOnEmptyOriginal(t *testing.T) {
	if _, ok := HunkReplay("", "@@ -1,1 +1,1 @@\n-a\n+b\n"); ok {
		t.Error("expected HunkReplay to decline on empty original")
	}
}

func TestNewFile_HeaderlessAdditions(t *testing.T) {
	c, ok := NewFile("", "+one\n+two\n")
	if !ok {
		t.Fatal("expected NewFile to accept")
	}
	if c.Content != "one\ntwo\n" {
		t.Errorf("Content = %q, want %q", c.Content, "one\ntwo\n")
	}
}

func TestKeptContent_RejectsFragment(t *testing.T) {
	if _, ok := KeptContent("a\nb\nc\n", " b\n-c\n+d\n"); ok {
		t.Error("expected KeptContent to decline a fragment that does not cover the original")
	}
}

func TestLineReplace_MultiplePairs(t *testing.T) {
	c, ok := LineReplace("a: 1\nb: 2\n", "-a: 1\n-b: 2\n+a: 10\n+b: 20\n")
	if !ok {
		t.Fatal("expected LineReplace to accept")
	}
	if c.Content != "a: 10\nb: 20\n" {
		t.Errorf("Content = %q, want %q", c.Content, "a: 10\nb: 20\n")
	}
}

func TestLineReplace_UnequalCounts(t *testing.T) {
	if _, ok := LineReplace("a: 1\n", "-a: 1\n+a: 2\n+b: 3\n"); ok {
		t.Error("expected LineReplace to decline unequal pair counts")
	}
}

func TestContentMatch_RemovalFollowsItsContext(t *testing.T) {
	original := "a:\n  enabled: true\nb:\n  enabled: true\n"
	patch := "@@ -3,2 +3,2 @@\n b:\n-  enabled: true\n+  enabled: false\n"

	c, ok := ContentMatch(original, patch)
	if !ok {
		t.Fatal("expected ContentMatch to accept")
	}
	want := "a:\n  enabled: true\nb:\n  enabled: false\n"
	if c.Content != want {
		t.Errorf("Content = %q, want %q", c.Content, want)
	}
}
