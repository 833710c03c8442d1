// Package selector implements the HostSelector: the per-query policy that
// picks which known (nameserver, address) candidate to probe next, biased
// by a running estimate of each address's round-trip time.
//
// Picking at random among equally-good candidates spreads load across a
// zone's nameservers; layering an EWMA RTT estimate on top means a query
// that has already seen one address time out prefers a different one
// next, and a resolver that has run for a while prefers historically fast
// servers over slow ones.
package selector

import (
	"math/rand"
	"sync"
	"time"

	"github.com/nimbusdns/solvere/delegation"
)

// DefaultRTT seeds every address's estimate before it has been probed, so
// unprobed and historically-fast addresses are tried before ones known to
// be slow.
const DefaultRTT = 400 * time.Millisecond

// EWMAAlpha weights how quickly a new sample moves the running estimate.
const EWMAAlpha = 0.3

// Selector tracks round-trip time estimates across all delegation points
// handled by a single Resolver (one Selector is shared resolver-wide, since
// "which address has been fast so far" is useful information across
// unrelated queries, not just within one).
//
// The RTT table is a sync.Map rather than a map behind a mutex: addresses
// are written once per probe and read far more often (every candidate in
// every Pick), which is exactly the read-mostly, stable-key-set shape
// sync.Map is built for, and it means Pick never blocks Record or vice
// versa. rnd is not safe for concurrent use by itself, so it keeps its own
// small mutex.
type Selector struct {
	rtts sync.Map // address (string) -> EWMA estimate (time.Duration)

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// New returns an empty Selector.
func New() *Selector {
	return &Selector{
		rnd: rand.New(rand.NewSource(1)),
	}
}

// Record folds a new round-trip sample into the running estimate for addr.
func (s *Selector) Record(addr string, rtt time.Duration) {
	if prev, ok := s.rtts.Load(addr); ok {
		rtt = time.Duration(EWMAAlpha*float64(rtt) + (1-EWMAAlpha)*float64(prev.(time.Duration)))
	}
	s.rtts.Store(addr, rtt)
}

func (s *Selector) estimate(addr string) time.Duration {
	if rtt, ok := s.rtts.Load(addr); ok {
		return rtt.(time.Duration)
	}
	return DefaultRTT
}

// Pick chooses one candidate out of cands, favoring lower RTT estimates.
// Ties (including the common case where every candidate is unprobed, and
// so shares DefaultRTT) are broken with an explicit, seedable random
// choice.
//
// Pick returns false if cands is empty.
func (s *Selector) Pick(cands []delegation.Candidate) (delegation.Candidate, bool) {
	if len(cands) == 0 {
		return delegation.Candidate{}, false
	}

	best := cands[0]
	bestRTT := s.estimate(best.Addr)
	tied := []delegation.Candidate{best}

	for _, c := range cands[1:] {
		rtt := s.estimate(c.Addr)
		switch {
		case rtt < bestRTT:
			best, bestRTT = c, rtt
			tied = tied[:0]
			tied = append(tied, c)
		case rtt == bestRTT:
			tied = append(tied, c)
		}
	}

	s.rndMu.Lock()
	choice := tied[s.rnd.Intn(len(tied))]
	s.rndMu.Unlock()
	return choice, true
}
