package otp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreAcquireSerializesPerIdentity(t *testing.T) {
	s := newStore()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ent := s.acquire("12345")
			ent.resendAttempts++
			ent.mu.Unlock()
		}()
	}
	wg.Wait()

	ent := s.acquire("12345")
	defer ent.mu.Unlock()
	assert.Equal(t, 100, ent.resendAttempts)
}

func TestStoreAcquireIsolatesIdentities(t *testing.T) {
	s := newStore()

	a := s.acquire("1")
	a.resendAttempts = 3
	a.mu.Unlock()

	b := s.acquire("2")
	defer b.mu.Unlock()
	assert.Equal(t, 0, b.resendAttempts)

	again := s.acquire("1")
	defer again.mu.Unlock()
	assert.Same(t, a, again)
	assert.Equal(t, 3, again.resendAttempts)
}
