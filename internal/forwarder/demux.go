package forwarder

import (
	"sync"
	"time"
)

// demux serializes every Recv call against one protocol's shared raw socket behind
// a single reader goroutine, and dispatches each captured reply to whichever worker
// registered interest in its destination port. Without this, concurrent workers
// sharing one Transport would race setting its read deadline and could silently
// steal a reply that actually belongs to a different worker's port.
type demux struct {
	transport Transport
	logf      func(format string, args ...interface{})

	mu      sync.Mutex
	waiters map[int]chan []byte
	started bool
}

func newDemux(transport Transport, logf func(string, ...interface{})) *demux {
	return &demux{transport: transport, logf: logf, waiters: make(map[int]chan []byte)}
}

// register records that port is now awaiting replies and returns the channel they
// arrive on. It must be called, and its map entry installed, before the
// corresponding packet is ever sent - this is what guarantees the read loop (started
// here, once, on first use) can never observe a reply for port before a waiter
// exists for it.
func (d *demux) register(port int) <-chan []byte {
	d.mu.Lock()
	ch := make(chan []byte, 8)
	d.waiters[port] = ch
	startLoop := !d.started
	d.started = true
	d.mu.Unlock()

	if startLoop {
		go d.readLoop()
	}
	return ch
}

// unregister drops port's waiter. Any reply for port arriving afterwards is simply
// dropped rather than delivered, same as an unmatched port was before.
func (d *demux) unregister(port int) {
	d.mu.Lock()
	delete(d.waiters, port)
	d.mu.Unlock()
}

func (d *demux) send(pkt []byte) error {
	return d.transport.Send(pkt)
}

// readLoop is the only caller of transport.Recv for this protocol's socket. It
// blocks with no deadline (a worker's own capture window is enforced on the
// sending side, via a timer racing this channel) and exits once Recv reports a
// real error, e.g. the underlying socket having been closed at shutdown.
func (d *demux) readLoop() {
	for {
		raw, err := d.transport.Recv(time.Time{})
		if err != nil {
			d.logf("forwarder: demux read loop exiting: %v", err)
			return
		}
		if raw == nil {
			continue
		}

		pkt, err := ParseIPv4(raw)
		if err != nil {
			continue // not a well-formed reply, keep reading
		}

		d.mu.Lock()
		ch, ok := d.waiters[int(pkt.DstPort)]
		d.mu.Unlock()
		if !ok {
			continue // no worker currently waiting on this port
		}

		select {
		case ch <- raw:
		default:
			d.logf("forwarder: demux port %d reply channel full, dropping a reply", pkt.DstPort)
		}
	}
}
