package selector

import (
	"testing"
	"time"

	"github.com/nimbusdns/solvere/delegation"
)

func TestSelector_Pick_Empty(t *testing.T) {
	s := New()
	if _, ok := s.Pick(nil); ok {
		t.Fatal("expected Pick(nil) to report false")
	}
}

func TestSelector_Pick_PrefersFasterAddress(t *testing.T) {
	s := New()
	s.Record("192.0.2.1", 10*time.Millisecond)
	s.Record("192.0.2.2", 500*time.Millisecond)

	cands := []delegation.Candidate{
		{NS: "ns1.example.org.", Addr: "192.0.2.1"},
		{NS: "ns2.example.org.", Addr: "192.0.2.2"},
	}

	for i := 0; i < 20; i++ {
		got, ok := s.Pick(cands)
		if !ok || got.Addr != "192.0.2.1" {
			t.Fatalf("expected the faster address to always be chosen, got %+v", got)
		}
	}
}

func TestSelector_Pick_UnprobedCandidatesAreTiedAtDefault(t *testing.T) {
	s := New()
	cands := []delegation.Candidate{
		{NS: "ns1.example.org.", Addr: "192.0.2.1"},
		{NS: "ns2.example.org.", Addr: "192.0.2.2"},
		{NS: "ns3.example.org.", Addr: "192.0.2.3"},
	}

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		got, ok := s.Pick(cands)
		if !ok {
			t.Fatal("expected a pick")
		}
		seen[got.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected randomness across ties, only ever picked %v", seen)
	}
}

func TestSelector_Record_EWMAConverges(t *testing.T) {
	s := New()
	for i := 0; i < 50; i++ {
		s.Record("192.0.2.1", 50*time.Millisecond)
	}
	got := s.estimate("192.0.2.1")
	if got < 45*time.Millisecond || got > 55*time.Millisecond {
		t.Fatalf("expected EWMA to converge near 50ms, got %s", got)
	}
}
