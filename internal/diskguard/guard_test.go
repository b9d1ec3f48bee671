package diskguard

import "testing"

func TestHasSpaceAgainstCurrentVolume(t *testing.T) {
	g := New()
	ok, err := g.HasSpace(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("HasSpace: %v", err)
	}
	if !ok {
		t.Fatalf("expected at least 1 byte free on test volume")
	}
}

func TestHasSpaceRejectsUnreasonableDemand(t *testing.T) {
	g := New()
	ok, err := g.HasSpace(t.TempDir(), 1<<62)
	if err != nil {
		t.Fatalf("HasSpace: %v", err)
	}
	if ok {
		t.Fatalf("expected insufficient space for an unreasonably large request")
	}
}
