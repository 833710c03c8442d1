// Package delegation models the delegation-point abstraction: a snapshot of
// a zone cut (NS set plus whatever address glue is known) and the cache of
// such points keyed by zone name.
package delegation

import (
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Point is an in-memory record of a zone cut: the zone name, its NS set,
// whatever address glue has been resolved so far, and probing state
// (probed addresses, unusable and glue-attempted NS names). A Point is shared across every RunningQuery that touches its
// zone, so all mutation goes through its own lock.
type Point struct {
	Zone    string
	NS      []string // owner names of the NS records delegating to Zone
	Expires time.Time

	mu              sync.RWMutex
	resolvedTargets map[string][]string // NS name -> addresses
	probed          map[string]bool     // address -> probed across all queries at this DP
	unusable        map[string]bool     // NS name -> cannot be glue-resolved
	glueAttempted   map[string]bool     // NS name -> a glue sub-query has already run
}

// NewPoint returns an empty Point for zone with the given NS owner names.
func NewPoint(zone string, ns []string, expires time.Time) *Point {
	return &Point{
		Zone:            dns.Fqdn(zone),
		NS:              ns,
		Expires:         expires,
		resolvedTargets: make(map[string][]string),
		probed:          make(map[string]bool),
		unusable:        make(map[string]bool),
		glueAttempted:   make(map[string]bool),
	}
}

// AddGlue records resolved addresses for an NS owner name.
func (p *Point) AddGlue(ns string, addrs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolvedTargets[ns] = append(p.resolvedTargets[ns], addrs...)
}

// MarkProbed records that addr has been queried (successfully or not) for
// this delegation point.
func (p *Point) MarkProbed(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed[addr] = true
}

// MarkUnusable records that ns cannot be resolved to an address (its glue
// sub-query failed, or it is an in-zone dependency that cannot be resolved
// independently).
func (p *Point) MarkUnusable(ns string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unusable[ns] = true
}

// MarkGlueAttempted records that a glue sub-query has already been spawned
// for ns, so HostSelector does not spawn a second one.
func (p *Point) MarkGlueAttempted(ns string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.glueAttempted[ns] = true
}

// Candidates returns the set of (ns, addr) pairs known for this point that
// have not yet been probed, excluding anything in the caller's own
// already-probed set (invariant: a single RunningQuery never probes the
// same address twice even across delegation points).
func (p *Point) Candidates(excluded map[string]bool) []Candidate {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Candidate
	for ns, addrs := range p.resolvedTargets {
		for _, addr := range addrs {
			if p.probed[addr] || excluded[addr] {
				continue
			}
			out = append(out, Candidate{NS: ns, Addr: addr})
		}
	}
	return out
}

// Candidate is one probeable (nameserver, address) pair.
type Candidate struct {
	NS   string
	Addr string
}

// GluelessNS returns the owner names of NS records with no resolved
// address, that are not marked unusable, have not already had a glue
// sub-query spawned, and whose owner name is not itself a subdomain of
// Zone (such an NS would be an in-zone dependency: resolving its address
// requires already being able to resolve names in Zone, so it cannot be
// independently resolved and is excluded here per the resolver's glue
// rules).
func (p *Point) GluelessNS() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []string
	for _, ns := range p.NS {
		if len(p.resolvedTargets[ns]) > 0 {
			continue
		}
		if p.unusable[ns] || p.glueAttempted[ns] {
			continue
		}
		if dns.IsSubDomain(p.Zone, ns) && !strings.EqualFold(ns, p.Zone) {
			continue
		}
		out = append(out, ns)
	}
	return out
}

// Expired reports whether this delegation point's NS TTL has elapsed as of
// now.
func (p *Point) Expired(now time.Time) bool {
	return now.After(p.Expires)
}
