package hash

import "testing"

func strPtr(s string) *string { return &s }

func TestSHA256Hasher_HashState(t *testing.T) {
	h := NewSHA256Hasher()

	clean := h.HashState("a: 1\n", nil)
	if len(clean) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(clean))
	}

	t.Run("deterministic", func(t *testing.T) {
		if again := h.HashState("a: 1\n", nil); again != clean {
			t.Errorf("HashState inconsistent: %s vs %s", clean, again)
		}
	})

	t.Run("empty pending differs from absent", func(t *testing.T) {
		if h.HashState("a: 1\n", strPtr("")) == clean {
			t.Error("expected empty pending and absent pending to hash differently")
		}
	})

	t.Run("content and pending are not interchangeable", func(t *testing.T) {
		x := h.HashState("a", strPtr("b"))
		y := h.HashState("b", strPtr("a"))
		if x == y {
			t.Error("expected swapped content/pending to hash differently")
		}
	})
}

func TestHashString(t *testing.T) {
	// sha256("")
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := HashString(""); got != want {
		t.Errorf("HashString(\"\") = %s, want %s", got, want)
	}
}

func TestFakeHasher(t *testing.T) {
	h := NewFakeHasher()
	if h.HashState("x", nil) == h.HashState("x", strPtr("y")) {
		t.Error("expected fake hashes to distinguish pending states")
	}
}
