// Package transmission implements the Transmission Store and the Response Cache:
// the two pieces of per-request state the Resolver Front-End owns.
package transmission

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/warrendns/warrendns/internal/concurrencytracker"
	"github.com/warrendns/warrendns/internal/constants"
)

// ErrUnknownID is returned by Add and End when the transmission id is not live.
var ErrUnknownID = errors.New("unknown transmission id")

// ErrIncomplete is returned by End when not every fragment index in [0, length) was
// ever added.
var ErrIncomplete = errors.New("incomplete transmission")

type entry struct {
	fragments map[int]string
}

// Store is the process-wide singleton of in-flight transmissions. Begin/Add/End are
// all safe for concurrent use, matching the one-request-per-DNS-query concurrency
// model of the resolver that owns it.
type Store struct {
	mu      sync.Mutex
	byID    map[string]*entry
	order   []string // insertion order, oldest first, for eviction
	maxLive int
	counter concurrencytracker.Counter
}

// NewStore returns a Store that evicts the oldest live transmission once maxLive are
// concurrently outstanding. maxLive <= 0 disables the bound.
func NewStore(maxLive int) *Store {
	return &Store{
		byID:    make(map[string]*entry),
		maxLive: maxLive,
	}
}

// Begin allocates a fresh, collision-resistant id and registers an empty
// transmission under it.
func (s *Store) Begin() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictOldestLocked()

	id := s.freshIDLocked()
	s.byID[id] = &entry{fragments: make(map[int]string)}
	s.order = append(s.order, id)
	s.counter.Add()
	return id
}

func (s *Store) freshIDLocked() string {
	for {
		id := newID()
		if _, exists := s.byID[id]; !exists {
			return id
		}
	}
}

func (s *Store) evictOldestLocked() {
	for s.maxLive > 0 && len(s.byID) >= s.maxLive {
		if len(s.order) == 0 {
			return
		}
		oldest := s.order[0]
		s.order = s.order[1:]
		if _, live := s.byID[oldest]; live { // skip ids already removed by End
			delete(s.byID, oldest)
			s.counter.Done()
		}
	}
}

// newID generates an 8-hex-char id the same way the original does:
// uuid.uuid4().hex[-8:].
func newID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	n := constants.Get().TransmissionIDHexLen
	return hex[len(hex)-n:]
}

// Add appends one fragment to a live transmission. Idempotent on (id, index): a
// repeated index is silently ignored, since DNS recursors retry continue queries.
func (s *Store) Add(id string, index int, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrUnknownID
	}
	if _, exists := t.fragments[index]; !exists {
		t.fragments[index] = data
	}
	return nil
}

// End finalizes and removes a transmission regardless of outcome. It returns the
// concatenated payload only if every index in [0, length) was present.
func (s *Store) End(id string, length int) (string, error) {
	s.mu.Lock()
	t, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
		s.counter.Done()
	}
	s.mu.Unlock()

	if !ok {
		return "", ErrUnknownID
	}

	for i := 0; i < length; i++ {
		if _, exists := t.fragments[i]; !exists {
			return "", ErrIncomplete
		}
	}

	var b strings.Builder
	for i := 0; i < length; i++ {
		b.WriteString(t.fragments[i])
	}
	return b.String(), nil
}

// Name implements reporter.Reporter.
func (s *Store) Name() string { return "transmissionStore" }

// Report implements reporter.Reporter.
func (s *Store) Report(resetCounters bool) string {
	peak := s.counter.Peak(resetCounters)
	s.mu.Lock()
	live := len(s.byID)
	s.mu.Unlock()
	return fmt.Sprintf("transmissionStore Live=%d Peak=%d", live, peak)
}
