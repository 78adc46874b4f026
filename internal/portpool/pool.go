// Package portpool is a concurrency-safe pool of spoofable source ports used by the
// Packet Forwarder to give each in-flight forwarded packet a distinct externally-
// visible source port.
package portpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warrendns/warrendns/internal/concurrencytracker"
)

// ErrExhausted is returned by Acquire when no port is currently free.
var ErrExhausted = errors.New("no free port")

// ErrNotOutstanding is returned by Release when called with a port this Pool did not
// hand out, or one already released.
var ErrNotOutstanding = errors.New("port is not currently acquired from this pool")

// Pool is a process-wide singleton covering a contiguous port range. The free list is
// a buffered channel; a small mutex-guarded set tracks which ports are currently
// outstanding so a double Release is caught rather than silently corrupting the pool.
type Pool struct {
	free chan int

	mu          sync.Mutex
	outstanding map[int]bool

	lo, hi  int
	counter concurrencytracker.Counter
}

// New returns a Pool preloaded with every port in [lo, hi).
func New(lo, hi int) *Pool {
	p := &Pool{
		free:        make(chan int, hi-lo),
		outstanding: make(map[int]bool, hi-lo),
		lo:          lo,
		hi:          hi,
	}
	for port := lo; port < hi; port++ {
		p.free <- port
	}
	return p
}

// Acquire removes and returns a free port, or ErrExhausted if the pool is empty.
func (p *Pool) Acquire() (int, error) {
	select {
	case port := <-p.free:
		p.mu.Lock()
		p.outstanding[port] = true
		p.mu.Unlock()
		p.counter.Add()
		return port, nil
	default:
		return 0, ErrExhausted
	}
}

// Release returns port to the pool. Every port in the pool's range is, at every
// quiescent point, in exactly one of the free channel or the outstanding set;
// Release enforces this by refusing to return a port that isn't currently marked
// outstanding.
func (p *Pool) Release(port int) error {
	p.mu.Lock()
	if !p.outstanding[port] {
		p.mu.Unlock()
		return ErrNotOutstanding
	}
	delete(p.outstanding, port)
	p.mu.Unlock()

	p.counter.Done()
	p.free <- port
	return nil
}

// Name implements reporter.Reporter.
func (p *Pool) Name() string { return "portPool" }

// Report implements reporter.Reporter.
func (p *Pool) Report(resetCounters bool) string {
	peak := p.counter.Peak(resetCounters)
	return fmt.Sprintf("portPool Free=%d Peak=%d Range=%d-%d", len(p.free), peak, p.lo, p.hi)
}
