// Package hints builds the bootstrap root DelegationPoint from a
// statically configured list of root nameserver (name, address) pairs.
//
// Root-hints loading itself (where the list comes from — a file, an
// embedded constant, a flag) is out of scope for the resolver core: the
// core receives an initial root delegation point at construction. This
// package is the thin seam between a plain list of (name, address) pairs
// and the delegation.Point the query state machine actually consumes.
package hints

import (
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/nimbusdns/solvere/delegation"
)

// Hint is one (nameserver name, address) pair describing a root server,
// the shape of the root_hints configuration value.
type Hint struct {
	Name string
	Addr string
}

// ErrEmpty is returned by Build when given no hints; the Resolver treats
// this as a ConfigFailure at construction time.
var ErrEmpty = fmt.Errorf("hints: root_hints must not be empty")

// Build assembles the root DelegationPoint from hints. The returned point
// never expires on its own; root nameservers are refreshed by ordinary
// referral processing once priming queries succeed, exactly like any other
// delegation point, so no TTL bookkeeping is needed for the hints
// themselves.
func Build(hs []Hint) (*delegation.Point, error) {
	if len(hs) == 0 {
		return nil, ErrEmpty
	}

	names := make([]string, 0, len(hs))
	seen := make(map[string]bool, len(hs))
	for _, h := range hs {
		name := dns.Fqdn(h.Name)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	p := delegation.NewPoint(".", names, time.Unix(1<<62, 0))
	for _, h := range hs {
		p.AddGlue(dns.Fqdn(h.Name), []string{h.Addr})
	}
	return p, nil
}

// DefaultRoots is the IANA root server hint list, kept here as a plain Go
// literal rather than a file load since root-hints loading is out of this
// module's scope.
var DefaultRoots = []Hint{
	{Name: "a.root-servers.net.", Addr: "198.41.0.4"},
	{Name: "b.root-servers.net.", Addr: "170.247.170.2"},
	{Name: "c.root-servers.net.", Addr: "192.33.4.12"},
	{Name: "d.root-servers.net.", Addr: "199.7.91.13"},
	{Name: "e.root-servers.net.", Addr: "192.203.230.10"},
	{Name: "f.root-servers.net.", Addr: "192.5.5.241"},
	{Name: "g.root-servers.net.", Addr: "192.112.36.4"},
	{Name: "h.root-servers.net.", Addr: "198.97.190.53"},
	{Name: "i.root-servers.net.", Addr: "192.36.148.17"},
	{Name: "j.root-servers.net.", Addr: "192.58.128.30"},
	{Name: "k.root-servers.net.", Addr: "193.0.14.129"},
	{Name: "l.root-servers.net.", Addr: "199.7.83.42"},
	{Name: "m.root-servers.net.", Addr: "202.12.27.33"},
}
