package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/warrendns/warrendns/internal/concurrencytracker"
	"github.com/warrendns/warrendns/internal/dnsutil"
)

type serFailureIndex int

const ( // ser = Server ERror index into failure counter array
	serWriteFailed serFailureIndex = iota // iota resets to zero in each const() spec set
	serArraySize
)

type evIndex int

const ( // ev = EVent index into eventCounters
	evNXDomain evIndex = iota // query suffix did not match ZONE
	evFixed                   // answered from a fixed record of a non-TXT type (a fixed TXT answer is not told apart here)
	evListSize
)

type events [evListSize]bool

type stats struct {
	successCount    int               // Queries that ran to completion without error
	totalLatency    time.Duration     // Duration of all successful queries
	eventCounters   [evListSize]int   // Events that occur during the course of a query
	failureCounters [serArraySize]int // Errors that stop a query from progressing
}

// server owns one DNS listen address across both transports. Query decode, answer
// encode and the UDP/TCP listener loop are all supplied by github.com/miekg/dns; this
// struct only wires that collaborator's own Server type to our dns.Handler and
// tracks request stats for periodic reporting.
type server struct {
	stdout        io.Writer
	handler       dns.Handler
	listenAddress string

	udp *dns.Server
	tcp *dns.Server

	ccTrk concurrencytracker.Counter // Track peak concurrent server requests

	mu sync.RWMutex // Protects everything below here
	stats
}

// start starts a UDP and a TCP dns.Server on t.listenAddress and writes to errorChan
// if either one ever exits. It uses dns.Server's NotifyStartedFunc to block until
// each socket is either open or has failed to open, so a bind error reaches
// errorChan without start itself hanging.
func (t *server) start(errorChan chan error, wg *sync.WaitGroup) {
	wrapped := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		t.serve(w, r)
	})

	var notifyWG sync.WaitGroup
	notifyWG.Add(2)
	udpStarted := sync.OnceFunc(notifyWG.Done)
	tcpStarted := sync.OnceFunc(notifyWG.Done)

	t.udp = &dns.Server{Addr: t.listenAddress, Net: "udp", Handler: wrapped,
		NotifyStartedFunc: udpStarted}
	t.tcp = &dns.Server{Addr: t.listenAddress, Net: "tcp", Handler: wrapped,
		NotifyStartedFunc: tcpStarted}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := t.udp.ListenAndServe(); err != nil {
			udpStarted() // a failed bind never notifies
			errorChan <- err
		}
	}()
	go func() {
		defer wg.Done()
		if err := t.tcp.ListenAndServe(); err != nil {
			tcpStarted() // a failed bind never notifies
			errorChan <- err
		}
	}()

	notifyWG.Wait()
}

// serve is called once per query, in a new goroutine per the miekg/dns listener
// contract, and simply times/counts the call to the real handler.
func (t *server) serve(writer dns.ResponseWriter, query *dns.Msg) {
	t.ccTrk.Add()
	defer t.ccTrk.Done()

	var evs events
	startTime := time.Now()

	counting := &countingResponseWriter{ResponseWriter: writer}
	t.handler.ServeDNS(counting, query)
	duration := time.Now().Sub(startTime)

	if counting.writeErr != nil {
		t.addFailureStats(serWriteFailed, evs)
		if cfg.logAll {
			fmt.Fprintln(t.stdout, "SE:"+dnsutil.CompactMsgString(query), counting.writeErr.Error())
		}
		return
	}

	if counting.reply != nil {
		evs[evNXDomain] = counting.reply.Rcode == dns.RcodeNameError
		evs[evFixed] = counting.reply.Rcode == dns.RcodeSuccess && counting.reply.Authoritative &&
			len(counting.reply.Answer) > 0 && counting.reply.Answer[0].Header().Rrtype != dns.TypeTXT
	}
	t.addSuccessStats(duration, evs)
}

// countingResponseWriter wraps a dns.ResponseWriter purely to capture the outbound
// message and any write error for stats, without the core resolver needing to know
// it's being observed.
type countingResponseWriter struct {
	dns.ResponseWriter
	reply    *dns.Msg
	writeErr error
}

func (c *countingResponseWriter) WriteMsg(m *dns.Msg) error {
	c.reply = m
	c.writeErr = c.ResponseWriter.WriteMsg(m)
	return c.writeErr
}

// stop performs an orderly shutdown of both listen sockets.
func (t *server) stop() {
	if t.udp != nil {
		t.udp.Shutdown()
	}
	if t.tcp != nil {
		t.tcp.Shutdown()
	}
}

func (t *server) listenName() string {
	return "(DNS on " + t.listenAddress + ")"
}
