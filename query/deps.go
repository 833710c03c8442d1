package query

import (
	"github.com/jmhodges/clock"

	"github.com/nimbusdns/solvere/cache"
	"github.com/nimbusdns/solvere/delegation"
	"github.com/nimbusdns/solvere/logutil"
	"github.com/nimbusdns/solvere/selector"
	"github.com/nimbusdns/solvere/transport"
)

// Hooks exposes the resolver's observable state as an opaque set of
// callbacks, so a front end can wire them into whatever exporter it uses
// without this package depending on one.
type Hooks struct {
	OnCacheHit          func(name string, qtype uint16)
	OnCacheMiss         func(name string, qtype uint16)
	OnQueryStart        func(name string, qtype uint16)
	OnQueryEnd          func(name string, qtype uint16, rcode int)
	OnOutstandingChange func(delta int)
}

func (h Hooks) cacheHit(name string, qtype uint16) {
	if h.OnCacheHit != nil {
		h.OnCacheHit(name, qtype)
	}
}

func (h Hooks) cacheMiss(name string, qtype uint16) {
	if h.OnCacheMiss != nil {
		h.OnCacheMiss(name, qtype)
	}
}

func (h Hooks) queryStart(name string, qtype uint16) {
	if h.OnQueryStart != nil {
		h.OnQueryStart(name, qtype)
	}
}

func (h Hooks) queryEnd(name string, qtype uint16, rcode int) {
	if h.OnQueryEnd != nil {
		h.OnQueryEnd(name, qtype, rcode)
	}
}

// Deps bundles the shared, Resolver-scoped collaborators a RunningQuery
// consults: the caches, the selector, the transport, the clock, the
// logger, and the construction-time limits. All fields are read-only from
// a RunningQuery's perspective; mutation of shared state goes through
// their own synchronized methods.
type Deps struct {
	Cache       *cache.Cache
	Delegations *delegation.Cache
	Selector    *selector.Selector
	Nub         transport.Nub
	Clock       clock.Clock
	Logger      logutil.Logger
	Hooks       Hooks

	MaxDepth         int
	MaxCNAMEChain    int
	StrictCNAMETrust bool

	RootHints *delegation.Point
}

func (d *Deps) logger() logutil.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return logutil.NewNoopLogger()
}
