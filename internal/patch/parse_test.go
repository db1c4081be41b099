package patch

import (
	"errors"
	"testing"
)

func TestParse_HeadersAndHunks(t *testing.T) {
	text := "diff --git a/templates/deployment.yaml b/templates/deployment.yaml\n" +
		"index 83db48f..bf269f4 100644\n" +
		"--- a/templates/deployment.yaml\n" +
		"+++ b/templates/deployment.yaml\n" +
		"@@ -1,2 +1,2 @@\n" +
		" kind: Deployment\n" +
		"-replicas: 1\n" +
		"+replicas: 3\n" +
		"\\ No newline at end of file\n" +
		"@@ -10 +10,2 @@\n" +
		" spec:\n" +
		"+  paused: false\n" +
		"\n\n"

	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if p.OldName != "a/templates/deployment.yaml" {
		t.Errorf("OldName = %q", p.OldName)
	}
	if p.NewName != "b/templates/deployment.yaml" {
		t.Errorf("NewName = %q", p.NewName)
	}
	if len(p.Hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(p.Hunks))
	}

	first := p.Hunks[0]
	if first.OrigStart != 1 || first.OrigCount != 2 || first.NewStart != 1 || first.NewCount != 2 {
		t.Errorf("unexpected first header: %+v", first)
	}
	if len(first.Lines) != 3 {
		t.Errorf("expected 3 lines in first hunk, got %d", len(first.Lines))
	}

	second := p.Hunks[1]
	if second.OrigCount != 1 {
		t.Errorf("OrigCount default = %d, want 1", second.OrigCount)
	}
	// Trailing blank lines after the last hunk are not context.
	if len(second.Lines) != 2 {
		t.Errorf("expected 2 lines in second hunk, got %d: %+v", len(second.Lines), second.Lines)
	}
}

func TestParse_BlankLineInsideHunkIsContext(t *testing.T) {
	p, err := Parse("@@ -1,3 +1,3 @@\n a\n\n-b\n+c\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	lines := p.Hunks[0].Lines
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if lines[1].Kind != Context || lines[1].Text != "" {
		t.Errorf("expected blank context line, got %+v", lines[1])
	}
}

func TestParse_NoHunks(t *testing.T) {
	_, err := Parse("--- a/x\n+++ b/x\n-just\n+lines\n")
	if !errors.Is(err, ErrNoHunks) {
		t.Errorf("expected ErrNoHunks, got %v", err)
	}
}

func TestParse_YAMLDocumentSeparatorIsNotHeader(t *testing.T) {
	p, err := Parse("@@ -1,2 +1,3 @@\n a: 1\n+---\n b: 2\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := p.Hunks[0].Lines[1]; got.Kind != Addition || got.Text != "---" {
		t.Errorf("expected addition of ---, got %+v", got)
	}
}

func TestScan_ClassifiesLines(t *testing.T) {
	lines := Scan("--- a/x\n+++ b/x\n-a\n+b\n c\nfoo\n")

	want := []Line{
		{Kind: Removal, Text: "a"},
		{Kind: Addition, Text: "b"},
		{Kind: Context, Text: "c"},
		{Kind: Other, Text: "foo"},
	}
	if len(lines) != len(want) {
		t.Fatalf("Scan() returned %d lines, want %d: %+v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, lines[i], want[i])
		}
	}
}

func TestIsUnifiedDiff(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "hunk with change", text: "@@ -1 +1 @@\n-a\n+b\n", want: true},
		{name: "context only", text: "@@ -1 +1 @@\n a\n", want: false},
		{name: "plain yaml", text: "apiVersion: v2\nname: demo\n", want: false},
		{name: "empty", text: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnifiedDiff(tt.text); got != tt.want {
				t.Errorf("IsUnifiedDiff() = %v, want %v", got, tt.want)
			}
		})
	}
}
