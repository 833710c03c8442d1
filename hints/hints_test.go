package hints

import (
	"errors"
	"testing"
)

func TestBuild_Empty(t *testing.T) {
	_, err := Build(nil)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestBuild_DefaultRoots(t *testing.T) {
	p, err := Build(DefaultRoots)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Zone != "." {
		t.Fatalf("expected root zone, got %q", p.Zone)
	}
	if len(p.GluelessNS()) != 0 {
		t.Fatalf("expected every default root to carry glue, got glueless: %v", p.GluelessNS())
	}
	cands := p.Candidates(nil)
	if len(cands) != len(DefaultRoots) {
		t.Fatalf("expected %d candidates, got %d", len(DefaultRoots), len(cands))
	}
}
