package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTurnLimit is returned by TurnLimiter.Increment once the configured number
// of turns has been used up.
var ErrTurnLimit = errors.New("turn limit reached")

// TurnLimiter enforces a maximum number of turns (chat rounds, model calls)
// per conversation.
type TurnLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewTurnLimiter creates a new limiter with a max number of turns.
// If max == 0, unlimited turns are allowed.
func NewTurnLimiter(max int) *TurnLimiter {
	return &TurnLimiter{max: max}
}

// Increment increases the turn counter and returns an error wrapping
// ErrTurnLimit if the limit is exceeded.
func (tl *TurnLimiter) Increment() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.max > 0 && tl.count >= tl.max {
		return fmt.Errorf("%w: %d", ErrTurnLimit, tl.max)
	}

	tl.count++

	return nil
}

// Count returns the current number of turns taken.
func (tl *TurnLimiter) Count() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.count
}

// Remaining returns how many turns are left before hitting the limit.
func (tl *TurnLimiter) Remaining() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.max == 0 {
		return -1 // unlimited
	}

	return tl.max - tl.count
}

// Reset sets the counter back to zero.
func (tl *TurnLimiter) Reset() {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.count = 0
}
