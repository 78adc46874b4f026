// Package fixedzone loads the pre-parsed, fixed resource records the Resolver
// Front-End serves verbatim without any transmission-layer processing. Zone-file
// parsing is explicitly an external collaborator's job, so this is a thin wrapper
// around github.com/miekg/dns's own zone parser, not a hand-rolled parser.
package fixedzone

import (
	"fmt"
	"io"

	"github.com/miekg/dns"
)

// Load parses r as an RFC 1035 zone file rooted at origin, returning every resource
// record it contains. fname is used only to annotate parse errors.
func Load(r io.Reader, origin, fname string) ([]dns.RR, error) {
	zp := dns.NewZoneParser(r, origin, fname)
	zp.SetIncludeAllowed(false)

	var rrs []dns.RR
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		rrs = append(rrs, rr)
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("fixedzone: parsing %s: %w", fname, err)
	}
	return rrs, nil
}

// ByName indexes records by their owner name for the Resolver Front-End's fixed-
// record lookup: if a query name matches a fixed record, its resource records are
// copied verbatim into the answer section.
func ByName(rrs []dns.RR) map[string][]dns.RR {
	byName := make(map[string][]dns.RR, len(rrs))
	for _, rr := range rrs {
		name := rr.Header().Name
		byName[name] = append(byName[name], rr)
	}
	return byName
}
