// Package resolver is the top-level dns.Handler that dispatches each query to a
// fixed record or the Transmission API, and the Transmission API handler that sits
// behind it.
package resolver

import (
	"fmt"
	"sync"

	"github.com/miekg/dns"

	"github.com/warrendns/warrendns/internal/attrtxt"
	"github.com/warrendns/warrendns/internal/concurrencytracker"
	"github.com/warrendns/warrendns/internal/query"
	"github.com/warrendns/warrendns/internal/sessionproto"
	"github.com/warrendns/warrendns/internal/transmission"
)

// Resolver implements dns.Handler, the interface the external DNS server framing
// collaborator invokes once per inbound request.
type Resolver struct {
	zone       string
	ttl        uint32
	maxSegment int

	fixed map[string][]dns.RR

	// mu guards the cache/transmission-store critical section, never network I/O.
	mu    sync.Mutex
	store *transmission.Store
	cache *transmission.Cache

	session *sessionproto.Handler

	requests   concurrencytracker.Counter
	logQueryIn func(qnameTail string)
}

// Config collects a Resolver's collaborators.
type Config struct {
	Zone       string
	TTL        uint32
	MaxSegment int
	Fixed      map[string][]dns.RR
	Store      *transmission.Store
	Cache      *transmission.Cache
	Session    *sessionproto.Handler
	// LogQueryIn, if set, is called with the last few characters of each inbound
	// qname (gated behind a cfg.logQueryIn flag at the cmd layer so full tunneled
	// payload labels aren't logged at default verbosity).
	LogQueryIn func(qnameTail string)
}

// New returns a Resolver built from cfg.
func New(cfg Config) *Resolver {
	logQueryIn := cfg.LogQueryIn
	if logQueryIn == nil {
		logQueryIn = func(string) {}
	}
	return &Resolver{
		zone:       cfg.Zone,
		ttl:        cfg.TTL,
		maxSegment: cfg.MaxSegment,
		fixed:      cfg.Fixed,
		store:      cfg.Store,
		cache:      cfg.Cache,
		session:    cfg.Session,
		logQueryIn: logQueryIn,
	}
}

// ServeDNS implements dns.Handler.
func (r *Resolver) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	defer w.Close()
	r.requests.Add()
	defer r.requests.Done()

	reply := new(dns.Msg)
	reply.SetReply(req)

	if len(req.Question) == 0 {
		w.WriteMsg(reply)
		return
	}
	qname := req.Question[0].Name
	r.logQueryIn(tail(qname, 5))

	// An unknown suffix never reaches the transmission parser.
	if !dns.IsSubDomain(r.zone, qname) {
		reply.Rcode = dns.RcodeNameError
		w.WriteMsg(reply)
		return
	}

	// Fixed records are served verbatim.
	if rrs, ok := r.fixed[qname]; ok {
		reply.Authoritative = true
		reply.Answer = append(reply.Answer, rrs...)
		w.WriteMsg(reply)
		return
	}

	attrs := r.handleTransmissionAPI(qname)
	reply.Answer = attrtxt.Encode(attrs, qname, r.ttl, r.maxSegment)
	w.WriteMsg(reply)
}

// handleTransmissionAPI is the Transmission API handler, executed entirely under
// r.mu so that duplicate concurrent queries for the same qname never produce two
// distinct side effects, e.g. two begin ids.
func (r *Resolver) handleTransmissionAPI(qname string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache.Lookup(qname); ok {
		return cached
	}

	var attrs map[string]string
	switch v := query.Parse(qname, r.zone).(type) {
	case query.Failure:
		attrs = map[string]string{"success": "False", "error": "API misuse"}

	case query.Other:
		attrs = map[string]string{"success": "False", "error": "not an endpoint"}

	case query.Begin:
		id := r.store.Begin()
		attrs = map[string]string{"success": "True", "transmission_id": id}

	case query.Continue:
		if err := r.store.Add(v.ID, v.Index, v.Data); err != nil {
			attrs = map[string]string{"success": "False", "error": err.Error()}
		} else {
			attrs = map[string]string{"success": "True"}
		}

	case query.End:
		assembled, err := r.store.End(v.ID, v.Length)
		if err != nil {
			attrs = map[string]string{"success": "False", "error": err.Error()}
		} else {
			attrs = map[string]string{"success": "True", "contents": r.session.Handle(assembled)}
		}
	}

	r.cache.Insert(qname, attrs)
	return attrs
}

func tail(name string, n int) string {
	if len(name) <= n {
		return name
	}
	return name[len(name)-n:]
}

// Name implements reporter.Reporter.
func (r *Resolver) Name() string { return "resolver" }

// Report implements reporter.Reporter.
func (r *Resolver) Report(resetCounters bool) string {
	return fmt.Sprintf("resolver RequestsPeak=%d CacheLen=%d", r.requests.Peak(resetCounters), r.cache.Len())
}
