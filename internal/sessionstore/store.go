// Package sessionstore is the registry of live tunnel Sessions, created by the
// session layer's "b" command and destroyed by "e".
package sessionstore

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/warrendns/warrendns/internal/concurrencytracker"
	"github.com/warrendns/warrendns/internal/constants"
)

// Store is the process-wide singleton mapping session id -> *Session.
type Store struct {
	mu      sync.Mutex
	byID    map[string]*Session
	counter concurrencytracker.Counter
}

// New returns an empty Store.
func New() *Store {
	return &Store{byID: make(map[string]*Session)}
}

// Begin allocates a fresh session id and registers a new Session under it.
func (st *Store) Begin() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	var id string
	for {
		id = newID()
		if _, exists := st.byID[id]; !exists {
			break
		}
	}
	s := newSession(id)
	st.byID[id] = s
	st.counter.Add()
	return s
}

// Get returns the live Session for id, or (nil, false) if it's unknown.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byID[id]
	return s, ok
}

// End removes and returns the Session for id, or (nil, false) if it was already
// unknown. Outstanding forwarder workers for this session are left to finish on
// their own; their eventual captures are simply discarded since the Session is gone.
func (st *Store) End(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byID[id]
	if ok {
		delete(st.byID, id)
		st.counter.Done()
	}
	return s, ok
}

func newID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	n := constants.Get().TransmissionIDHexLen
	return hex[len(hex)-n:]
}

// Name implements reporter.Reporter.
func (st *Store) Name() string { return "sessionStore" }

// Report implements reporter.Reporter.
func (st *Store) Report(resetCounters bool) string {
	peak := st.counter.Peak(resetCounters)
	st.mu.Lock()
	live := len(st.byID)
	st.mu.Unlock()
	return fmt.Sprintf("sessionStore Live=%d Peak=%d", live, peak)
}
