// Package solvere is the recursive DNS resolver core: given a client
// query it walks the delegation hierarchy from a cached or root
// delegation point to an authoritative answer, assembling a final
// response and populating the lookup and delegation caches along the way.
//
// The wire-format and transport concerns live in the miekg/dns library;
// this package owns only the recursion state machine (package query), the
// caches (package cache, package delegation), the server-selection policy
// (package selector), and the glue between them.
package solvere

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"

	"github.com/nimbusdns/solvere/cache"
	"github.com/nimbusdns/solvere/config"
	"github.com/nimbusdns/solvere/delegation"
	"github.com/nimbusdns/solvere/hints"
	"github.com/nimbusdns/solvere/logutil"
	"github.com/nimbusdns/solvere/query"
	"github.com/nimbusdns/solvere/selector"
	"github.com/nimbusdns/solvere/transport"
)

// ErrConfigFailure is returned by New when construction-time inputs are
// invalid (currently: an empty root hints list). Per the error-handling
// design this is fatal only to construction — it is never surfaced at
// query time.
var ErrConfigFailure = errors.New("solvere: configuration failure")

// Resolver is the entry point: it accepts client queries, dispatches
// RunningQuery instances, and enforces the per-process concurrency cap.
type Resolver struct {
	cfg   config.Config
	deps  *query.Deps
	clk   clock.Clock
	log   logutil.Logger
	sem   chan struct{}
}

// New constructs a Resolver. cfg is typically produced by config.Load;
// rootHints seeds the initial root delegation point the core receives at
// construction. logger may be nil, in which case logs are discarded.
// hooks may be the zero value.
func New(cfg config.Config, rootHints []hints.Hint, logger logutil.Logger, h query.Hooks) (*Resolver, error) {
	rootDP, err := hints.Build(rootHints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFailure, err)
	}

	if logger == nil {
		logger = logutil.NewNoopLogger()
	}

	clk := clock.Default()
	delegations := delegation.New()
	delegations.Insert(rootDP)

	deps := &query.Deps{
		Cache:            cache.NewWithClock(cfg.CacheSize, clk),
		Delegations:      delegations,
		Selector:         selector.New(),
		Nub:              transport.NewWithTimeout(cfg.TransportTimeout),
		Clock:            clk,
		Logger:           logger,
		Hooks:            h,
		MaxDepth:         cfg.MaxDepth,
		MaxCNAMEChain:    cfg.MaxCNAMEChain,
		StrictCNAMETrust: cfg.StrictCNAMETrust,
		RootHints:        rootDP,
	}

	return &Resolver{
		cfg:  cfg,
		deps: deps,
		clk:  clk,
		log:  logger,
		sem:  make(chan struct{}, cfg.MaxConcurrentQueries),
	}, nil
}

// Resolve answers a single client query. q must carry exactly one
// Question; the response preserves q's original question and ID. Beyond
// the configured concurrency cap, Resolve returns SERVFAIL immediately
// without dispatching a RunningQuery.
func (r *Resolver) Resolve(ctx context.Context, q *dns.Msg) *dns.Msg {
	if len(q.Question) != 1 {
		return r.servfail(q)
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	default:
		r.log.Warn(map[string]any{"qname": q.Question[0].Name}, "concurrent query cap exceeded")
		return r.servfail(q)
	}

	if h := r.deps.Hooks.OnOutstandingChange; h != nil {
		h(1)
		defer h(-1)
	}

	deadline := r.clk.Now().Add(r.cfg.QueryDeadline)
	rq := query.New(r.deps, q.Question[0], deadline)

	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryDeadline)
	defer cancel()

	resp, err := rq.Run(qctx)
	if err != nil {
		r.log.Debug(map[string]any{"qname": q.Question[0].Name, "qtype": q.Question[0].Qtype, "err": err.Error()}, "query finished with error")
	}

	resp.Id = q.Id
	resp.Question = q.Question
	return resp
}

func (r *Resolver) servfail(q *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetRcode(q, dns.RcodeServerFailure)
	return m
}
