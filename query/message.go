package query

import (
	"strings"

	"github.com/miekg/dns"
)

// Class is the classification of a Message per the resolver's data model:
// Answer, Referral, CName, Nodata, Nxdomain, or Malformed.
type Class int

const (
	ClassAnswer Class = iota
	ClassReferral
	ClassCName
	ClassNodata
	ClassNxdomain
	ClassMalformed
)

func (c Class) String() string {
	switch c {
	case ClassAnswer:
		return "Answer"
	case ClassReferral:
		return "Referral"
	case ClassCName:
		return "CName"
	case ClassNodata:
		return "Nodata"
	case ClassNxdomain:
		return "Nxdomain"
	default:
		return "Malformed"
	}
}

// Classified is the result of classifying a response message against the
// question that produced it and the zone of the delegation point it was
// fetched from.
type Classified struct {
	Class Class

	Answer []dns.RR // the RRset matching QNAME/QTYPE, for ClassAnswer

	// CNAMEs holds every CNAME record in the chain this message carries,
	// in chain order (qname's CNAME first, its target's CNAME next, and so
	// on). A message can bundle more than one hop before the terminal
	// answer or a dangling alias; callers must fold in all of them, not
	// just the last.
	CNAMEs []*dns.CNAME

	ReferralZone string
	NS           []string
	Glue         map[string][]string // ns owner name (lowercase fqdn) -> addresses

	SOAMinimum *uint32
}

// Classify implements the Message classification rules of the data model.
// The rcode is checked first: NXDOMAIN gives Nxdomain and any other
// non-success rcode gives Malformed. Otherwise the precedence is Answer,
// CName, Referral, then Nodata. currentZone is the zone of the delegation point the response was
// fetched from, used to tell a genuine referral apart from an NS RRset
// merely echoed back at the queried zone's own apex.
func Classify(resp *dns.Msg, q dns.Question, currentZone string) Classified {
	if resp == nil {
		return Classified{Class: ClassMalformed}
	}
	if resp.Rcode == dns.RcodeNameError {
		return Classified{Class: ClassNxdomain, SOAMinimum: soaMinimum(resp.Ns)}
	}
	if resp.Rcode != dns.RcodeSuccess {
		return Classified{Class: ClassMalformed}
	}

	qname := dns.Fqdn(q.Name)

	var answer []dns.RR
	var cnames []*dns.CNAME
	seen := qname
	for _, rr := range resp.Answer {
		if !strings.EqualFold(rr.Header().Name, seen) {
			continue
		}
		if rr.Header().Rrtype == q.Qtype {
			answer = append(answer, rr)
			continue
		}
		if c, ok := rr.(*dns.CNAME); ok && q.Qtype != dns.TypeCNAME {
			cnames = append(cnames, c)
			seen = dns.Fqdn(c.Target)
		}
	}
	if len(answer) > 0 {
		return Classified{Class: ClassAnswer, Answer: answer, CNAMEs: cnames}
	}
	if len(cnames) > 0 {
		return Classified{Class: ClassCName, CNAMEs: cnames}
	}

	currentZone = dns.Fqdn(currentZone)
	nsByZone := make(map[string][]string)
	var zoneOrder []string
	for _, rr := range resp.Ns {
		ns, ok := rr.(*dns.NS)
		if !ok {
			continue
		}
		zone := dns.Fqdn(ns.Header().Name)
		if _, seen := nsByZone[zone]; !seen {
			zoneOrder = append(zoneOrder, zone)
		}
		nsByZone[zone] = append(nsByZone[zone], dns.Fqdn(ns.Ns))
	}
	for _, zone := range zoneOrder {
		if strings.EqualFold(zone, currentZone) {
			continue // NS at the queried zone's own apex: not a referral
		}
		if !dns.IsSubDomain(currentZone, zone) {
			continue
		}
		if !strings.EqualFold(zone, qname) && !dns.IsSubDomain(zone, qname) {
			continue
		}
		names := nsByZone[zone]
		return Classified{
			Class:        ClassReferral,
			ReferralZone: zone,
			NS:           names,
			Glue:         extractGlue(resp.Extra, names),
		}
	}

	return Classified{Class: ClassNodata, SOAMinimum: soaMinimum(resp.Ns)}
}

func extractGlue(extra []dns.RR, names []string) map[string][]string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = true
	}
	out := make(map[string][]string)
	for _, rr := range extra {
		name := strings.ToLower(dns.Fqdn(rr.Header().Name))
		if !want[name] {
			continue
		}
		switch a := rr.(type) {
		case *dns.A:
			out[name] = append(out[name], a.A.String())
		case *dns.AAAA:
			out[name] = append(out[name], a.AAAA.String())
		}
	}
	return out
}

func soaMinimum(ns []dns.RR) *uint32 {
	for _, rr := range ns {
		if soa, ok := rr.(*dns.SOA); ok {
			m := soa.Minimum
			return &m
		}
	}
	return nil
}

// monotone reports whether newZone is a strictly longer, proper suffix
// relationship of oldZone, the invariant a referral must satisfy before
// being accepted into the DelegationCache.
func monotone(oldZone, newZone string) bool {
	oldZone, newZone = dns.Fqdn(oldZone), dns.Fqdn(newZone)
	if !dns.IsSubDomain(oldZone, newZone) {
		return false
	}
	return len(dns.SplitDomainName(newZone)) > len(dns.SplitDomainName(oldZone))
}

func extractAddrs(msg *dns.Msg, name string) []string {
	name = dns.Fqdn(name)
	var out []string
	for _, rr := range msg.Answer {
		if !strings.EqualFold(rr.Header().Name, name) {
			continue
		}
		switch a := rr.(type) {
		case *dns.A:
			out = append(out, a.A.String())
		case *dns.AAAA:
			out = append(out, a.AAAA.String())
		}
	}
	return out
}

func extractNSAndGlue(msg *dns.Msg, zone string) ([]string, map[string][]string) {
	zone = dns.Fqdn(zone)
	var names []string
	for _, rr := range msg.Answer {
		ns, ok := rr.(*dns.NS)
		if !ok || !strings.EqualFold(ns.Header().Name, zone) {
			continue
		}
		names = append(names, dns.Fqdn(ns.Ns))
	}
	return names, extractGlue(msg.Extra, names)
}
