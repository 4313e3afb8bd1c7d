package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configure a Breaker. Zero values take the defaults noted.
type Settings struct {
	// Failures is how many consecutive failures open the breaker (5).
	Failures uint32
	// Cooldown is how long the breaker stays open before probing (30s).
	Cooldown time.Duration
	// Probes is how many consecutive successes in half-open close it (1).
	Probes uint32
	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to State)
	// Now replaces time.Now.
	Now func() time.Time
}

// Breaker stops calling a failing dependency for a cooldown period.
// One probe call at a time is let through after the cooldown.
type Breaker struct {
	name     string
	settings Settings

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	openUntil time.Time
	probing   bool
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	if settings.Failures == 0 {
		settings.Failures = 5
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Probes == 0 {
		settings.Probes = 1
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Breaker{name: name, settings: settings}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

// Do runs fn unless the breaker is open. fn's error counts as a failure.
func (b *Breaker) Do(fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn()
	b.release(err == nil)
	return err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentLocked() {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) release(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentLocked()
	if state == StateHalfOpen {
		b.probing = false
	}
	if !ok {
		b.successes = 0
		b.failures++
		if state == StateHalfOpen || b.failures >= b.settings.Failures {
			b.transitionLocked(StateOpen)
		}
		return
	}

	b.failures = 0
	if state == StateHalfOpen {
		b.successes++
		if b.successes >= b.settings.Probes {
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) currentLocked() State {
	if b.state == StateOpen && !b.settings.Now().Before(b.openUntil) {
		b.transitionLocked(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	b.probing = false
	if to == StateOpen {
		b.openUntil = b.settings.Now().Add(b.settings.Cooldown)
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
