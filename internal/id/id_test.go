package id

import "testing"

func TestNewIsHexAndUnique(t *testing.T) {
	a := New()
	b := New()

	if len(a) != 32 {
		t.Fatalf("expected 32 hex characters, got %d (%q)", len(a), a)
	}
	if a == b {
		t.Fatal("expected successive ids to differ")
	}
	for _, r := range a {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("unexpected character %q in id %q", r, a)
		}
	}
}
