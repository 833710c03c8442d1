package delegation

import (
	"testing"
	"time"
)

func future() time.Time { return time.Unix(1<<40, 0) }

func TestCache_ClosestEnclosing(t *testing.T) {
	c := New()
	c.Insert(NewPoint(".", []string{"a.root-servers.net."}, future()))
	c.Insert(NewPoint("org.", []string{"a0.org.afilias-nst.info."}, future()))
	c.Insert(NewPoint("example.org.", []string{"ns1.example.org."}, future()))

	now := time.Unix(0, 0)

	p, ok := c.ClosestEnclosing("www.example.org.", now)
	if !ok || p.Zone != "example.org." {
		t.Fatalf("expected example.org., got %+v (ok=%v)", p, ok)
	}

	p, ok = c.ClosestEnclosing("sub.other.org.", now)
	if !ok || p.Zone != "org." {
		t.Fatalf("expected org. for a name with no closer cut, got %+v (ok=%v)", p, ok)
	}

	p, ok = c.ClosestEnclosing("completely.different.net.", now)
	if !ok || p.Zone != "." {
		t.Fatalf("expected root fallback, got %+v (ok=%v)", p, ok)
	}
}

func TestCache_ClosestEnclosing_SkipsExpired(t *testing.T) {
	c := New()
	c.Insert(NewPoint(".", []string{"a.root-servers.net."}, future()))
	expired := NewPoint("example.org.", []string{"ns1.example.org."}, time.Unix(10, 0))
	c.Insert(expired)

	p, ok := c.ClosestEnclosing("www.example.org.", time.Unix(20, 0))
	if !ok || p.Zone != "." {
		t.Fatalf("expected expired cut to be skipped in favor of root, got %+v (ok=%v)", p, ok)
	}
}

func TestCache_Get(t *testing.T) {
	c := New()
	c.Insert(NewPoint("example.org.", nil, future()))

	if _, ok := c.Get("example.org."); !ok {
		t.Fatal("expected exact zone lookup to hit")
	}
	if _, ok := c.Get("www.example.org."); ok {
		t.Fatal("Get should not fall back to an ancestor zone")
	}
}

func TestPoint_GluelessNS(t *testing.T) {
	p := NewPoint("example.org.", []string{
		"ns1.example.org.",  // in-bailiwick, no glue: circular, excluded
		"ns2.example.org.",  // in-bailiwick, glue resolved: excluded (has an address)
		"ns.outside.net.",   // out-of-bailiwick, no glue: needs a glue sub-query
		"ns.unusable.net.",  // out-of-bailiwick, but a prior glue sub-query failed
	}, future())
	p.AddGlue("ns2.example.org.", []string{"192.0.2.2"})
	p.MarkUnusable("ns.unusable.net.")

	glueless := p.GluelessNS()
	if len(glueless) != 1 || glueless[0] != "ns.outside.net." {
		t.Fatalf("expected only the out-of-bailiwick, unresolved, unattempted NS, got %v", glueless)
	}
}

func TestPoint_Candidates(t *testing.T) {
	p := NewPoint("example.org.", []string{"ns1.example.org."}, future())
	p.AddGlue("ns1.example.org.", []string{"192.0.2.1", "192.0.2.2"})
	p.MarkProbed("192.0.2.1")

	cands := p.Candidates(nil)
	if len(cands) != 1 || cands[0].Addr != "192.0.2.2" {
		t.Fatalf("expected only the unprobed address, got %v", cands)
	}

	cands = p.Candidates(map[string]bool{"192.0.2.2": true})
	if len(cands) != 0 {
		t.Fatalf("expected caller-excluded address to be filtered, got %v", cands)
	}
}
