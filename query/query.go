// Package query implements RunningQuery: the per-query recursion state
// machine that walks the delegation hierarchy from a cached or root
// delegation point down to an authoritative answer.
package query

import (
	"context"
	"math/rand"
	"time"

	"github.com/miekg/dns"

	"github.com/nimbusdns/solvere/delegation"
)

// state is the tagged-variant state the machine steps through.
type state int

const (
	stateInitQuery state = iota
	stateQueryTarget
	stateQueryResponse
	statePrimeResponse
	stateTargetResponse
	stateFinished
)

type ancestor struct {
	Name string
	Type uint16
}

// RunningQuery is one instance of the recursion state machine. It owns at
// most one child RunningQuery at a time and blocks on that child's
// completion channel before resuming, per the "unique ownership of the
// child plus a completion notification" design rule: no shared mutable
// reference connects parent and child.
type RunningQuery struct {
	deps *Deps

	original dns.Question
	qname    string
	qtype    uint16

	state     state
	currentDP *delegation.Point
	presetDP  *delegation.Point

	cnameChain []dns.RR
	depth      int
	deadline   time.Time
	ancestors  []ancestor
	probed     map[string]bool

	lastResponse *dns.Msg
	currentAddr  string
	pendingNS    string

	childResult *dns.Msg
	childErr    error

	result *dns.Msg
	err    error
}

// New constructs the root RunningQuery for a client query: depth 0, no
// ancestors, no parent.
func New(deps *Deps, q dns.Question, deadline time.Time) *RunningQuery {
	return &RunningQuery{
		deps:     deps,
		original: q,
		qname:    dns.Fqdn(q.Name),
		qtype:    q.Qtype,
		state:    stateInitQuery,
		deadline: deadline,
		probed:   make(map[string]bool),
	}
}

func (rq *RunningQuery) spawnChild(q dns.Question, presetDP *delegation.Point) *RunningQuery {
	child := &RunningQuery{
		deps:      rq.deps,
		original:  q,
		qname:     dns.Fqdn(q.Name),
		qtype:     q.Qtype,
		state:     stateInitQuery,
		deadline:  rq.deadline,
		probed:    make(map[string]bool),
		presetDP:  presetDP,
		ancestors: append(append([]ancestor{}, rq.ancestors...), ancestor{rq.qname, rq.qtype}),
	}
	child.depth = rq.depth + 1
	return child
}

// runChild runs child to completion in its own goroutine and blocks until
// either it signals completion over its own channel, or ctx is cancelled.
func (rq *RunningQuery) runChild(ctx context.Context, child *RunningQuery) (*dns.Msg, error) {
	done := make(chan struct{})
	var res *dns.Msg
	var err error
	go func() {
		res, err = child.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
		return res, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drives the state machine to Finished and returns the assembled
// response (always non-nil: even failure paths produce a SERVFAIL
// message) alongside the error that explains a non-success outcome, if
// any.
func (rq *RunningQuery) Run(ctx context.Context) (*dns.Msg, error) {
	rq.deps.Hooks.queryStart(rq.original.Name, rq.original.Qtype)
	for rq.state != stateFinished {
		select {
		case <-ctx.Done():
			rq.fail(ErrCancelled)
		default:
			rq.step(ctx)
		}
	}
	rq.deps.Hooks.queryEnd(rq.original.Name, rq.original.Qtype, rq.result.Rcode)
	return rq.result, rq.err
}

func (rq *RunningQuery) step(ctx context.Context) {
	switch rq.state {
	case stateInitQuery:
		rq.stepInitQuery(ctx)
	case stateQueryTarget:
		rq.stepQueryTarget(ctx)
	case stateQueryResponse:
		rq.stepQueryResponse()
	case statePrimeResponse:
		rq.stepPrimeResponse()
	case stateTargetResponse:
		rq.stepTargetResponse()
	}
}

func (rq *RunningQuery) stepInitQuery(ctx context.Context) {
	if rq.presetDP != nil {
		rq.currentDP = rq.presetDP
		rq.state = stateQueryTarget
		return
	}

	if rq.depth > rq.deps.MaxDepth {
		rq.fail(ErrLoopOrDepth)
		return
	}
	for _, a := range rq.ancestors {
		if a.Name == rq.qname && a.Type == rq.qtype {
			rq.fail(ErrLoopOrDepth)
			return
		}
	}

	if entry, ok := rq.deps.Cache.Get(rq.qname, rq.qtype, dns.ClassINET); ok {
		rq.deps.Hooks.cacheHit(rq.qname, rq.qtype)
		rq.result = rq.adoptCached(entry.Msg)
		rq.state = stateFinished
		return
	}
	rq.deps.Hooks.cacheMiss(rq.qname, rq.qtype)

	if dp, ok := rq.deps.Delegations.ClosestEnclosing(rq.qname, rq.deps.Clock.Now()); ok {
		rq.currentDP = dp
		rq.state = stateQueryTarget
		return
	}

	child := rq.spawnChild(dns.Question{Name: ".", Qtype: dns.TypeNS, Qclass: dns.ClassINET}, rq.deps.RootHints)
	res, err := rq.runChild(ctx, child)
	rq.childResult, rq.childErr = res, err
	rq.state = statePrimeResponse
}

func (rq *RunningQuery) stepQueryTarget(ctx context.Context) {
	if rq.deps.Clock.Now().After(rq.deadline) {
		rq.fail(ErrCancelled)
		return
	}

	cands := rq.currentDP.Candidates(rq.probed)
	if cand, ok := rq.deps.Selector.Pick(cands); ok {
		rq.currentAddr = cand.Addr
		msg := rq.buildQuery()
		resp, rtt, err := rq.deps.Nub.Exchange(ctx, cand.Addr, msg)
		rq.probed[cand.Addr] = true
		rq.deps.Selector.Record(cand.Addr, rtt)
		if err != nil {
			rq.deps.logger().Debug(map[string]any{"addr": cand.Addr, "qname": rq.qname, "err": err.Error()}, "transient server failure")
			rq.state = stateQueryTarget
			return
		}
		rq.lastResponse = resp
		rq.state = stateQueryResponse
		return
	}

	if glueless := rq.currentDP.GluelessNS(); len(glueless) > 0 {
		ns := glueless[0]
		rq.currentDP.MarkGlueAttempted(ns)
		rq.pendingNS = ns
		child := rq.spawnChild(dns.Question{Name: ns, Qtype: dns.TypeA, Qclass: dns.ClassINET}, nil)
		res, err := rq.runChild(ctx, child)
		rq.childResult, rq.childErr = res, err
		rq.state = stateTargetResponse
		return
	}

	rq.fail(ErrDelegationExhausted)
}

func (rq *RunningQuery) stepQueryResponse() {
	q := dns.Question{Name: rq.qname, Qtype: rq.qtype, Qclass: dns.ClassINET}
	classified := Classify(rq.lastResponse, q, rq.currentDP.Zone)

	switch classified.Class {
	case ClassAnswer:
		if !rq.appendCNAMEs(classified.CNAMEs) {
			return
		}
		rq.deps.Cache.Put(rq.qname, rq.qtype, dns.ClassINET, rq.lastResponse)
		rq.result = rq.assembleFinal(classified.Answer, dns.RcodeSuccess)
		rq.state = stateFinished

	case ClassReferral:
		if !monotone(rq.currentDP.Zone, classified.ReferralZone) {
			rq.deps.logger().Warn(map[string]any{"from": rq.currentDP.Zone, "to": classified.ReferralZone}, "non-monotone referral, ignoring")
			rq.state = stateQueryTarget
			return
		}
		dp := delegation.NewPoint(classified.ReferralZone, classified.NS, rq.deps.Clock.Now().Add(referralTTL(rq.lastResponse)))
		for ns, addrs := range classified.Glue {
			dp.AddGlue(ns, addrs)
		}
		rq.deps.Delegations.Insert(dp)
		rq.currentDP = dp
		rq.state = stateQueryTarget

	case ClassCName:
		rq.deps.Cache.Put(rq.qname, dns.TypeCNAME, dns.ClassINET, rq.lastResponse)
		if rq.deps.StrictCNAMETrust && !rq.isDeepestDP() {
			rq.deps.logger().Debug(map[string]any{"qname": rq.qname, "zone": rq.currentDP.Zone}, "untrusted cname, not following")
			rq.state = stateQueryTarget
			return
		}
		if !rq.appendCNAMEs(classified.CNAMEs) {
			return
		}
		rq.qname = dns.Fqdn(classified.CNAMEs[len(classified.CNAMEs)-1].Target)
		rq.currentDP = nil
		rq.state = stateInitQuery

	case ClassNodata, ClassNxdomain:
		rcode := dns.RcodeSuccess
		if classified.Class == ClassNxdomain {
			rcode = dns.RcodeNameError
		}
		rq.deps.Cache.PutNegative(rq.qname, rq.qtype, dns.ClassINET, rq.lastResponse, classified.SOAMinimum)
		rq.result = rq.assembleFinal(nil, rcode)
		rq.state = stateFinished

	default: // Malformed
		rq.deps.logger().Debug(map[string]any{"addr": rq.currentAddr, "qname": rq.qname}, "malformed or unexpected response")
		rq.state = stateQueryTarget
	}
}

func (rq *RunningQuery) stepPrimeResponse() {
	if rq.childErr != nil || rq.childResult == nil || rq.childResult.Rcode != dns.RcodeSuccess {
		rq.fail(ErrDelegationExhausted)
		return
	}
	names, glue := extractNSAndGlue(rq.childResult, ".")
	dp := delegation.NewPoint(".", names, rq.deps.Clock.Now().Add(referralTTL(rq.childResult)))
	for ns, addrs := range glue {
		dp.AddGlue(ns, addrs)
	}
	rq.deps.Delegations.Insert(dp)
	rq.currentDP = dp
	rq.state = stateQueryTarget
}

func (rq *RunningQuery) stepTargetResponse() {
	addrs := extractAddrs(rq.childResult, rq.pendingNS)
	if rq.childErr == nil && rq.childResult != nil && rq.childResult.Rcode == dns.RcodeSuccess && len(addrs) > 0 {
		rq.currentDP.AddGlue(rq.pendingNS, addrs)
	} else {
		rq.currentDP.MarkUnusable(rq.pendingNS)
	}
	rq.state = stateQueryTarget
}

// appendCNAMEs folds cnames into rq.cnameChain in order, failing the query
// with ErrCNAMEChainTooLong the moment the assembled chain would exceed
// MaxCNAMEChain. It reports whether all of cnames were appended; false
// means rq has already transitioned to stateFinished with the overflow
// error and the caller must return immediately.
func (rq *RunningQuery) appendCNAMEs(cnames []*dns.CNAME) bool {
	for _, c := range cnames {
		if len(rq.cnameChain) >= rq.deps.MaxCNAMEChain {
			rq.fail(ErrCNAMEChainTooLong)
			return false
		}
		rq.cnameChain = append(rq.cnameChain, c)
	}
	return true
}

// isDeepestDP implements the CNAME trust rule: a CNAME is followed only
// when the delegation point it was received from is still the deepest
// known enclosing zone of the name just queried. A concurrent referral
// that deepened the DelegationCache in the meantime makes the CNAME
// untrusted (cached, not followed) without requiring any locking beyond
// what DelegationCache.ClosestEnclosing already does.
func (rq *RunningQuery) isDeepestDP() bool {
	dp, ok := rq.deps.Delegations.ClosestEnclosing(rq.qname, rq.deps.Clock.Now())
	if !ok {
		return true
	}
	return dp.Zone == rq.currentDP.Zone
}

func (rq *RunningQuery) buildQuery() *dns.Msg {
	m := new(dns.Msg)
	m.Id = uint16(rand.Intn(1 << 16))
	m.RecursionDesired = false
	m.Question = []dns.Question{{Name: rq.qname, Qtype: rq.qtype, Qclass: dns.ClassINET}}
	m.SetEdns0(4096, false)
	return m
}

func (rq *RunningQuery) assembleFinal(answer []dns.RR, rcode int) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(rq.original.Name, rq.original.Qtype)
	m.Id = 0 // overwritten by the Resolver from the client's original request
	m.Response = true
	m.RecursionAvailable = true
	m.Authoritative = false
	m.Rcode = rcode
	m.Answer = append(append([]dns.RR{}, rq.cnameChain...), answer...)
	// Carry the terminal server's additional section through (OPT
	// passthrough, and — for priming sub-queries — the address glue
	// PrimeResponse reads back out of the child's result).
	if rq.lastResponse != nil {
		m.Extra = rq.lastResponse.Extra
	}
	return m
}

func (rq *RunningQuery) adoptCached(msg *dns.Msg) *dns.Msg {
	m := msg.Copy()
	m.SetQuestion(rq.original.Name, rq.original.Qtype)
	m.Response = true
	m.RecursionAvailable = true
	return m
}

func (rq *RunningQuery) fail(err error) {
	rq.err = err
	m := new(dns.Msg)
	m.SetQuestion(rq.original.Name, rq.original.Qtype)
	m.Response = true
	m.RecursionAvailable = true
	m.Rcode = dns.RcodeServerFailure
	rq.result = m
	rq.state = stateFinished
}

// referralTTL is the expiration to use for a delegation point built from a
// referral or priming response: the minimum TTL across the NS records of
// its authority and answer sections (a priming response carries its NS set
// in the answer section), falling back to one hour if it carried none.
func referralTTL(msg *dns.Msg) time.Duration {
	var min uint32
	for _, rr := range append(append([]dns.RR{}, msg.Ns...), msg.Answer...) {
		if rr.Header().Rrtype != dns.TypeNS {
			continue
		}
		if min == 0 || rr.Header().Ttl < min {
			min = rr.Header().Ttl
		}
	}
	if min == 0 {
		return time.Hour
	}
	return time.Duration(min) * time.Second
}
