package otp

import (
	"sync"
	"time"
)

// record is the active-code state for one identity. It is purged on
// successful verification, on expiry detection, and on verify exhaustion.
type record struct {
	code           string
	expiresAt      time.Time
	verifyAttempts int
}

// entry holds everything the engine tracks for one identity. The block
// timestamps live outside record on purpose: they must survive record purges.
// Each entry has its own mutex so check-then-update sequences for an identity
// are atomic, while different identities never contend.
type entry struct {
	mu sync.Mutex

	record             *record
	resendAttempts     int
	verifyBlockedUntil time.Time
	resendBlockedUntil time.Time
}

// store is the in-memory OTP state table. State does not survive a process
// restart; that is a documented property of this service, not an oversight.
type store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newStore() *store {
	return &store{entries: make(map[string]*entry)}
}

// acquire returns the entry for id with its lock held. The caller must
// release it with entry.mu.Unlock when done.
func (s *store) acquire(id string) *entry {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	return e
}
