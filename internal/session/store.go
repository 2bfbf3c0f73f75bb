// Package session holds filled documents between the fill request and a
// later email request.
package session

import (
	"container/list"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
	"github.com/a3tai/pdf-form-filler/internal/logging"
)

// idBytes is the amount of randomness in a session id
const idBytes = 32

// DefaultTTL is how long an artifact stays retrievable
const DefaultTTL = 30 * time.Minute

// Clock abstracts time for expiry decisions
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Artifact is a filled document awaiting delivery
type Artifact struct {
	Bytes          []byte    `json:"-"`
	Filename       string    `json:"filename"`
	SourceFilename string    `json:"source_filename,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Config configures a Store
type Config struct {
	TTL time.Duration
	// MaxEntries bounds the store; the oldest entry is evicted when full.
	// Zero means unbounded.
	MaxEntries int
	Clock      Clock
	Logger     *logging.Logger
}

// Stats describes store activity
type Stats struct {
	Entries   int   `json:"entries"`
	Created   int64 `json:"created"`
	Expired   int64 `json:"expired"`
	Evicted   int64 `json:"evicted"`
	Delivered int64 `json:"delivered"`
}

type entry struct {
	id        string
	artifact  Artifact
	expiresAt time.Time
	leased    bool
	elem      *list.Element
}

// Store is an in-memory, TTL-bounded map from session id to artifact.
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // oldest first

	ttl        time.Duration
	maxEntries int
	clock      Clock
	logger     *logging.Logger
	stats      Stats
}

// NewStore creates a session store
func NewStore(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	return &Store{
		entries:    make(map[string]*entry),
		order:      list.New(),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// NewID returns a fresh unguessable session id
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Put stores an artifact under a new id
func (s *Store) Put(a Artifact) (string, error) {
	id, err := NewID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}

	if s.maxEntries > 0 {
		for len(s.entries) >= s.maxEntries {
			if !s.evictOldestLocked() {
				break
			}
		}
	}

	e := &entry{id: id, artifact: a, expiresAt: now.Add(s.ttl)}
	e.elem = s.order.PushBack(e)
	s.entries[id] = e
	s.stats.Created++

	return id, nil
}

// Get returns the artifact for id. Unknown, expired and leased ids all
// report SessionNotFound.
func (s *Store) Get(id string) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.liveLocked(id)
	if err != nil {
		return Artifact{}, err
	}
	if e.leased {
		return Artifact{}, notFound()
	}
	return e.artifact, nil
}

// Acquire leases the session to one caller; until Release or Delete every
// other Get or Acquire of the id reports SessionNotFound.
func (s *Store) Acquire(id string) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.liveLocked(id)
	if err != nil {
		return Artifact{}, err
	}
	if e.leased {
		return Artifact{}, notFound()
	}
	e.leased = true
	return e.artifact, nil
}

// Release ends a lease without consuming the session
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok {
		e.leased = false
	}
}

// Delete removes a session; deleting a missing id is a no-op
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok {
		s.removeLocked(e)
		s.stats.Delivered++
	}
}

// Len returns the number of stored sessions, expired ones included until swept
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns a snapshot of store counters
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.Entries = len(s.entries)
	return st
}

// Sweep removes every expired session and returns how many it removed
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for elem := s.order.Front(); elem != nil; {
		next := elem.Next()
		e := elem.Value.(*entry)
		if !now.Before(e.expiresAt) {
			s.removeLocked(e)
			s.stats.Expired++
			removed++
		}
		elem = next
	}
	return removed
}

// Start sweeps expired sessions every interval until ctx is done
func (s *Store) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debugf("swept %d expired sessions", n)
			}
		}
	}
}

func (s *Store) liveLocked(id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, notFound()
	}
	if !s.clock.Now().Before(e.expiresAt) {
		s.removeLocked(e)
		s.stats.Expired++
		return nil, notFound()
	}
	return e, nil
}

func (s *Store) evictOldestLocked() bool {
	front := s.order.Front()
	if front == nil {
		return false
	}
	e := front.Value.(*entry)
	s.removeLocked(e)
	s.stats.Evicted++
	s.logger.Debugf("session store full, evicted oldest session")
	return true
}

func (s *Store) removeLocked(e *entry) {
	s.order.Remove(e.elem)
	delete(s.entries, e.id)
}

func notFound() error {
	return ferrors.New(ferrors.KindSessionNotFound, "session not found or expired")
}
