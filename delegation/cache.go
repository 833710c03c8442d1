package delegation

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
)

// shardCount is the number of independent lock domains the trie is split
// across. Sharding by top-level label means a lookup under .org never
// blocks a concurrent lookup or insert under .com.
const shardCount = 32

// Cache is the DelegationCache: a label-indexed trie of known delegation
// points, giving an O(labels) closest-enclosing-zone lookup. Indexing by
// label lets ClosestEnclosing walk down from the root without a linear
// scan over every known zone.
//
// There is no single lock guarding the whole trie. The root zone's own
// Point (".") is vanishingly rarely written and is held behind an
// atomic.Pointer so reading it never blocks; every other zone lives in one
// of shardCount independent subtrees, each with its own RWMutex, selected
// by hashing the name's top-level label. Two goroutines touching TLDs that
// hash to different shards never contend, and readers within a shard never
// block each other.
type Cache struct {
	rootPoint atomic.Pointer[Point]
	shards    [shardCount]*shard
}

type shard struct {
	mu       sync.RWMutex
	children map[string]*node
}

type node struct {
	point    *Point
	children map[string]*node
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// New returns an empty DelegationCache.
func New() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &shard{children: make(map[string]*node)}
	}
	return c
}

// labels splits a name into its labels, root-to-leaf reversed so the first
// element is the TLD (or nil for the root zone itself).
func labels(name string) []string {
	if name == "." || name == "" {
		return nil
	}
	parts := dns.SplitDomainName(dns.Fqdn(name))
	// dns.SplitDomainName returns leaf-to-root order; reverse it.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}

func (c *Cache) shardFor(tld string) *shard {
	h := fnv.New32a()
	h.Write([]byte(tld))
	return c.shards[h.Sum32()%shardCount]
}

// Insert adds or replaces the delegation point for p.Zone.
func (c *Cache) Insert(p *Point) {
	ls := labels(p.Zone)
	if len(ls) == 0 {
		c.rootPoint.Store(p)
		return
	}

	s := c.shardFor(ls[0])
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.children[ls[0]]
	if !ok {
		n = newNode()
		s.children[ls[0]] = n
	}
	for _, label := range ls[1:] {
		child, ok := n.children[label]
		if !ok {
			child = newNode()
			n.children[label] = child
		}
		n = child
	}
	n.point = p
}

// ClosestEnclosing returns the delegation point for the longest known zone
// that is an ancestor of (or equal to) qname, walking from the root down
// the label path and remembering the deepest Point seen along the way.
// Expired points are skipped, not returned, so a stale NS set cannot be
// handed back as authoritative.
func (c *Cache) ClosestEnclosing(qname string, now time.Time) (*Point, bool) {
	var best *Point
	if rp := c.rootPoint.Load(); rp != nil && !rp.Expired(now) {
		best = rp
	}

	ls := labels(qname)
	if len(ls) == 0 {
		if best == nil {
			return nil, false
		}
		return best, true
	}

	s := c.shardFor(ls[0])
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.children[ls[0]]
	if !ok {
		if best == nil {
			return nil, false
		}
		return best, true
	}
	if n.point != nil && !n.point.Expired(now) {
		best = n.point
	}
	for _, label := range ls[1:] {
		child, ok := n.children[label]
		if !ok {
			break
		}
		n = child
		if n.point != nil && !n.point.Expired(now) {
			best = n.point
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Get returns the delegation point stored for exactly zone, if any.
func (c *Cache) Get(zone string) (*Point, bool) {
	ls := labels(zone)
	if len(ls) == 0 {
		if rp := c.rootPoint.Load(); rp != nil {
			return rp, true
		}
		return nil, false
	}

	s := c.shardFor(ls[0])
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.children[ls[0]]
	if !ok {
		return nil, false
	}
	for _, label := range ls[1:] {
		child, ok := n.children[label]
		if !ok {
			return nil, false
		}
		n = child
	}
	if n.point == nil {
		return nil, false
	}
	return n.point, true
}
