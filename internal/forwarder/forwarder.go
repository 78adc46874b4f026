package forwarder

import (
	"encoding/base64"
	"fmt"
	"net"
	"time"

	"github.com/warrendns/warrendns/internal/concurrencytracker"
	"github.com/warrendns/warrendns/internal/portpool"
	"github.com/warrendns/warrendns/internal/sessionstore"
)

// Result classifies the outcome of Forward, matching the three cases the Session
// Message Handler's "f" verb distinguishes.
type Result int

const (
	// OK means the packet was valid and a worker was started; the reply, if any,
	// will surface later via the session's pending queue.
	OK Result = iota
	// Invalid means raw did not parse as an IPv4/TCP or IPv4/UDP packet.
	Invalid
	// Exhausted means no source port was available to spoof with.
	Exhausted
)

// Forwarder is the process-wide packet forwarder. One Forwarder serves two
// demuxed Transports, one per transport protocol, since a raw IPv4 socket is
// opened per protocol number and shared by every concurrently forwarded packet
// of that protocol.
type Forwarder struct {
	publicIP   net.IP
	ports      *portpool.Pool
	tcp        *demux
	udp        *demux
	window     time.Duration
	maxPending int
	workers    concurrencytracker.Counter
	logf       func(format string, args ...interface{})
}

// New returns a Forwarder. logf may be nil, in which case operational log lines are
// discarded.
func New(publicIP net.IP, ports *portpool.Pool, tcp, udp Transport, window time.Duration, maxPending int, logf func(string, ...interface{})) *Forwarder {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Forwarder{
		publicIP:   publicIP,
		ports:      ports,
		tcp:        newDemux(tcp, logf),
		udp:        newDemux(udp, logf),
		window:     window,
		maxPending: maxPending,
		logf:       logf,
	}
}

// Forward parses raw, spoofs its source address/port, and hands it off to a
// background worker. It never blocks on network I/O.
func (f *Forwarder) Forward(session *sessionstore.Session, raw []byte) Result {
	pkt, err := ParseIPv4(raw)
	if err != nil {
		return Invalid
	}

	originalSrcIP := pkt.SrcIP
	originalSrcPort := pkt.SrcPort

	port, err := f.ports.Acquire()
	if err != nil {
		return Exhausted
	}

	if err := pkt.RewriteSource(f.publicIP, uint16(port)); err != nil {
		f.releasePort(session, port)
		return Invalid
	}

	session.AddOwnedPort(port)
	d := f.demuxFor(pkt.Protocol)
	// register before spawning the worker: the waiter must exist before the
	// rewritten packet is ever sent, so the read loop can never observe a reply
	// for this port while nobody is listening for it.
	replies := d.register(port)
	f.workers.Add()
	go f.runWorker(session, pkt, port, originalSrcIP, originalSrcPort, d, replies)
	return OK
}

func (f *Forwarder) demuxFor(kind TransportKind) *demux {
	if kind == UDP {
		return f.udp
	}
	return f.tcp
}

func (f *Forwarder) releasePort(session *sessionstore.Session, port int) {
	session.RemoveOwnedPort(port)
	if err := f.ports.Release(port); err != nil {
		f.logf("forwarder: release port %d: %v", port, err)
	}
}

// runWorker is the background worker task: send, capture replies for the bounded
// window, restore addressing on each reply, and release the port unconditionally on
// window close (state machine: allocating -> awaiting-reply -> draining -> released).
// replies is this port's demux-registered channel: the demux's read loop is the only
// thing that ever calls the shared Transport's Recv, already filtered to packets
// addressed to port, so the only timing concern left here is the capture window
// itself.
func (f *Forwarder) runWorker(session *sessionstore.Session, pkt *Packet, port int, originalSrcIP net.IP, originalSrcPort uint16, d *demux, replies <-chan []byte) {
	defer f.workers.Done()
	defer f.releasePort(session, port)
	defer d.unregister(port)
	defer func() {
		if r := recover(); r != nil {
			f.logf("forwarder: session %s port %d worker panic: %v", session.ID, port, r)
		}
	}()

	if err := d.send(pkt.Raw); err != nil {
		f.logf("forwarder: session %s port %d send failed: %v", session.ID, port, err)
		return
	}

	timer := time.NewTimer(f.window)
	defer timer.Stop()

	for {
		select {
		case reply := <-replies:
			replyPkt, err := ParseIPv4(reply)
			if err != nil {
				continue // not a well-formed reply, keep listening within the window
			}

			if err := replyPkt.RewriteDestination(originalSrcIP, originalSrcPort); err != nil {
				continue
			}

			// RawStdEncoding: no "=" padding, since a session reply's base64 packets
			// are embedded in a string that must satisfy the domain-safe charset,
			// which has no place for "=".
			encoded := base64.RawStdEncoding.EncodeToString(replyPkt.Raw)
			if dropped := session.Enqueue(encoded, f.maxPending); dropped {
				f.logf("forwarder: session %s pending queue at capacity (%d), dropped oldest packet", session.ID, f.maxPending)
			}

		case <-timer.C:
			return // capture window closed, nothing further will be waited for
		}
	}
}

// Name implements reporter.Reporter.
func (f *Forwarder) Name() string { return "forwarder" }

// Report implements reporter.Reporter.
func (f *Forwarder) Report(resetCounters bool) string {
	return fmt.Sprintf("forwarder WorkersPeak=%d Window=%s", f.workers.Peak(resetCounters), f.window)
}
