// Package attrtxt renders a response map into RFC 1464 attribute TXT records: one
// "key=value" string per attribute, each emitted as its own TXT RR, with long values
// split into multiple DNS character-strings within that RR.
package attrtxt

import (
	"fmt"
	"sort"

	"github.com/miekg/dns"
)

// Encode turns attrs into TXT RRs under qname at ttl. A synthetic "$count=N" attribute
// is always appended, N being len(attrs), so the client can detect a truncated answer.
// Any attribute whose rendered "k=v" form exceeds maxSegment bytes is split across
// multiple character-strings of up to maxSegment bytes within a single TXT RR.
func Encode(attrs map[string]string, qname string, ttl uint32, maxSegment int) []dns.RR {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic output; spec treats the list as unordered

	rrs := make([]dns.RR, 0, len(keys)+1)
	for _, k := range keys {
		rrs = append(rrs, newTXT(qname, ttl, k+"="+attrs[k], maxSegment))
	}
	rrs = append(rrs, newTXT(qname, ttl, fmt.Sprintf("$count=%d", len(attrs)), maxSegment))
	return rrs
}

func newTXT(qname string, ttl uint32, attr string, maxSegment int) *dns.TXT {
	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   qname,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		Txt: segment(attr, maxSegment),
	}
}

// segment splits s into character-strings of at most max bytes, as RFC 1464/the DNS
// wire format requires for a single TXT RR whose value exceeds the 255-byte limit.
func segment(s string, max int) []string {
	if len(s) <= max {
		return []string{s}
	}
	segments := make([]string, 0, (len(s)+max-1)/max)
	for len(s) > max {
		segments = append(segments, s[:max])
		s = s[max:]
	}
	return append(segments, s)
}
