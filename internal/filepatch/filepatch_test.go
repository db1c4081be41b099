package filepatch

import (
	"testing"

	"github.com/danieljhkim/chartpatch/internal/diffstat"
	"github.com/danieljhkim/chartpatch/internal/patch"
	"github.com/danieljhkim/chartpatch/internal/state"
)

func strPtr(s string) *string { return &s }

func TestAccept_PromotesFullText(t *testing.T) {
	f := state.File{ID: "f1", Content: "A", ContentPending: strPtr("B")}

	tr := Accept(f)

	if tr.File.Content != "B" {
		t.Errorf("Content = %q, want %q", tr.File.Content, "B")
	}
	if tr.File.HasPending() {
		t.Error("expected pending content to be cleared")
	}
	if !tr.Changed {
		t.Error("expected Changed")
	}
	if tr.Applied != nil {
		t.Errorf("full text must be promoted without the applier, got %+v", tr.Applied)
	}
	if f.Content != "A" || !f.HasPending() {
		t.Error("Accept mutated its input")
	}
}

func TestAccept_AppliesDiff(t *testing.T) {
	f := state.File{
		Content:        "replicas: 1\nimage: nginx\n",
		ContentPending: strPtr("@@ -1,2 +1,2 @@\n-replicas: 1\n+replicas: 3\n image: nginx\n"),
	}

	tr := Accept(f)

	if tr.File.Content != "replicas: 3\nimage: nginx\n" {
		t.Errorf("Content = %q", tr.File.Content)
	}
	if tr.Applied == nil || tr.Applied.Strategy != patch.StrategyContentMatch {
		t.Errorf("Applied = %+v, want content-match", tr.Applied)
	}
}

func TestReject_PreservesContent(t *testing.T) {
	f := state.File{Content: "A", ContentPending: strPtr("B")}

	tr := Reject(f)

	if tr.File.Content != "A" {
		t.Errorf("Content = %q, want %q", tr.File.Content, "A")
	}
	if tr.File.HasPending() {
		t.Error("expected pending content to be cleared")
	}
}

func TestTransitions_IdempotentOnClean(t *testing.T) {
	f := state.File{Content: "A"}

	for name, tr := range map[string]Transition{
		"accept": Accept(f),
		"reject": Reject(f),
		"edit":   Edit(f, "A"),
		"clear":  SetPending(f, nil),
	} {
		if tr.Changed {
			t.Errorf("%s on clean file reported a change", name)
		}
		if tr.File.Content != "A" {
			t.Errorf("%s changed content to %q", name, tr.File.Content)
		}
	}
}

func TestAccept_Twice(t *testing.T) {
	f := state.File{Content: "A", ContentPending: strPtr("B")}

	once := Accept(f).File
	twice := Accept(once)

	if twice.Changed || twice.File.Content != "B" {
		t.Errorf("second Accept = %+v, want unchanged B", twice)
	}
}

func TestSetPending(t *testing.T) {
	f := state.File{Content: "A"}

	tr := SetPending(f, strPtr("B"))
	if !tr.Changed || tr.File.Pending() != "B" {
		t.Fatalf("SetPending = %+v", tr)
	}
	if StateOf(tr.File) != PendingReview {
		t.Errorf("StateOf = %v, want pending", StateOf(tr.File))
	}

	if again := SetPending(tr.File, strPtr("B")); again.Changed {
		t.Error("same pending content reported a change")
	}

	cleared := SetPending(tr.File, nil)
	if !cleared.Changed || StateOf(cleared.File) != Clean {
		t.Errorf("clearing pending = %+v", cleared)
	}
}

func TestEdit_DiscardsPending(t *testing.T) {
	f := state.File{Content: "A", ContentPending: strPtr("B")}

	tr := Edit(f, "C")

	if tr.File.Content != "C" || tr.File.HasPending() || !tr.Changed {
		t.Errorf("Edit = %+v", tr)
	}
}

func TestMaterialize(t *testing.T) {
	tests := []struct {
		name string
		file state.File
		want string
	}{
		{name: "clean", file: state.File{Content: "A\n"}, want: "A\n"},
		{name: "full text", file: state.File{Content: "A\n", ContentPending: strPtr("B\n")}, want: "B\n"},
		{name: "diff", file: state.File{Content: "A\n", ContentPending: strPtr("@@ -1 +1 @@\n-A\n+B\n")}, want: "B\n"},
		{
			name: "yaml with dashes is full text",
			file: state.File{Content: "x\n", ContentPending: strPtr("---\nitems:\n- a\n+ b\n")},
			want: "---\nitems:\n- a\n+ b\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Materialize(tt.file); got != tt.want {
				t.Errorf("Materialize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStats(t *testing.T) {
	f := state.File{Content: "a\nb\n", ContentPending: strPtr("a\nB\nc\n")}
	if got := Stats(f); got != (diffstat.Stats{Additions: 2, Deletions: 1}) {
		t.Errorf("Stats() = %+v", got)
	}
	if IsNoop(f) {
		t.Error("expected a real change")
	}

	noop := state.File{Content: "a\n", ContentPending: strPtr("a\n")}
	if !IsNoop(noop) {
		t.Error("expected identical pending content to be a no-op")
	}
	if StateOf(noop) != PendingReview {
		t.Error("a no-op patch is still pending until decided")
	}
}
