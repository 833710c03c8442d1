// Package cache implements the resolver's MessageCache: a bounded LRU of
// positive and negative DNS responses keyed by (name, type, class).
package cache

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

// CapTTL is the maximum TTL a positive entry may be cached for, regardless
// of what the upstream response advertised.
const CapTTL = 86400 * time.Second

// NegTTL is the TTL used for negative (NODATA/NXDOMAIN) entries when no SOA
// minimum is present to override it.
const NegTTL = 300 * time.Second

// DefaultCapacity is the default number of entries the cache holds.
const DefaultCapacity = 40960

// Key identifies a cached response by the question it answers.
type Key struct {
	Name  string
	Type  uint16
	Class uint16
}

func newKey(name string, qtype, qclass uint16) Key {
	return Key{Name: strings.ToLower(dns.Fqdn(name)), Type: qtype, Class: qclass}
}

// Entry is a cached response.
type Entry struct {
	Msg        *dns.Msg
	Expiration time.Time
	Negative   bool
}

func (e *Entry) expired(clk clock.Clock) bool {
	return clk.Now().After(e.Expiration)
}

// Cache is a concurrency-safe, TTL-aware, bounded LRU MessageCache.
//
// The bounded-size eviction and all concurrency control is delegated to
// hashicorp/golang-lru, which guards every call with one internal lock
// (Get takes it exclusively, since it updates recency order, so concurrent
// readers are serialized); this type layers the TTL/expiration and
// negative-caching semantics the DNS resolution algorithm requires on top,
// since golang-lru has no notion of entry expiry. No outer lock is added,
// since every method here is already just one or two calls into the LRU.
type Cache struct {
	lru *lru.Cache[Key, *Entry]
	clk clock.Clock
}

// New returns a Cache bounded to capacity entries. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Cache {
	return NewWithClock(capacity, clock.Default())
}

// NewWithClock is New with an injectable clock, used by tests to control TTL
// expiry deterministically.
func NewWithClock(capacity int, clk clock.Clock) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New[Key, *Entry](capacity)
	if err != nil {
		// Only returned by golang-lru for a non-positive size, which is
		// excluded above.
		panic(err)
	}
	return &Cache{lru: l, clk: clk}
}

// Get returns the cached response for (name, qtype, qclass) if present and
// unexpired. Expired entries are pruned on access.
func (c *Cache) Get(name string, qtype, qclass uint16) (*Entry, bool) {
	key := newKey(name, qtype, qclass)

	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if entry.expired(c.clk) {
		c.lru.Remove(key)
		return nil, false
	}
	return entry, true
}

// Put stores a positive response, computing its expiration as
// now + min(CapTTL, minimum TTL across the answer/authority/additional
// sections).  A zero minimum TTL (e.g. an empty response) is not cached.
func (c *Cache) Put(name string, qtype, qclass uint16, msg *dns.Msg) {
	ttl := minTTL(allRecords(msg))
	if ttl <= 0 {
		return
	}
	c.put(name, qtype, qclass, msg, ttl, false)
}

// PutNegative stores a NODATA/NXDOMAIN response. soaMinimum, if non-nil, is
// the minimum field of an SOA record found in the response's authority
// section; per the resolver's negative-caching rule the TTL used is
// min(soaMinimum, NegTTL) when present, else NegTTL.
func (c *Cache) PutNegative(name string, qtype, qclass uint16, msg *dns.Msg, soaMinimum *uint32) {
	ttl := NegTTL
	if soaMinimum != nil {
		soaTTL := time.Duration(*soaMinimum) * time.Second
		if soaTTL < ttl {
			ttl = soaTTL
		}
	}
	c.put(name, qtype, qclass, msg, ttl, true)
}

func (c *Cache) put(name string, qtype, qclass uint16, msg *dns.Msg, ttl time.Duration, negative bool) {
	if ttl > CapTTL {
		ttl = CapTTL
	}
	key := newKey(name, qtype, qclass)
	entry := &Entry{
		Msg:        msg,
		Expiration: c.clk.Now().Add(ttl),
		Negative:   negative,
	}

	c.lru.Add(key, entry)
}

// Prune removes every expired entry. Eviction is otherwise strictly LRU and
// lazy (on Get); Prune exists for callers that want to reclaim memory from
// entries that are expired but cold (never looked up again).
func (c *Cache) Prune() {
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if ok && entry.expired(c.clk) {
			c.lru.Remove(key)
		}
	}
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	return c.lru.Len()
}

func allRecords(msg *dns.Msg) []dns.RR {
	out := make([]dns.RR, 0, len(msg.Answer)+len(msg.Ns)+len(msg.Extra))
	out = append(out, msg.Answer...)
	out = append(out, msg.Ns...)
	for _, rr := range msg.Extra {
		if rr.Header().Rrtype != dns.TypeOPT {
			out = append(out, rr)
		}
	}
	return out
}

// minTTL returns the smallest TTL across a, or 0 if a is empty.
func minTTL(a []dns.RR) time.Duration {
	if len(a) == 0 {
		return 0
	}
	min := a[0].Header().Ttl
	for _, rr := range a[1:] {
		if rr.Header().Ttl < min {
			min = rr.Header().Ttl
		}
	}
	return time.Duration(min) * time.Second
}
