package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }
func fail() error                        { return errBoom }
func succeed() error                     { return nil }

func newBreaker(c *clock, transitions *[]string) *Breaker {
	return New("test", Settings{
		Failures: 3,
		Cooldown: time.Minute,
		Now:      c.Now,
		OnStateChange: func(_ string, from, to State) {
			*transitions = append(*transitions, from.String()+"->"+to.String())
		},
	})
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name  string
		calls []func() error
		want  State
	}{
		{"stays closed on successes", []func() error{succeed, succeed, succeed}, StateClosed},
		{"stays closed below threshold", []func() error{fail, fail, succeed, fail}, StateClosed},
		{"opens after consecutive failures", []func() error{fail, fail, fail}, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var transitions []string
			b := newBreaker(&clock{now: time.Unix(0, 0)}, &transitions)
			for _, call := range tt.calls {
				_ = b.Do(call)
			}
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	var transitions []string
	c := &clock{now: time.Unix(0, 0)}
	b := newBreaker(c, &transitions)
	for range 3 {
		require.ErrorIs(t, b.Do(fail), errBoom)
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	var transitions []string
	c := &clock{now: time.Unix(0, 0)}
	b := newBreaker(c, &transitions)
	for range 3 {
		_ = b.Do(fail)
	}

	c.Advance(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())
	require.ErrorIs(t, b.Do(fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	c.Advance(time.Minute)
	require.NoError(t, b.Do(succeed))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->open",
		"open->half-open",
		"half-open->closed",
	}, transitions)
}

func TestBreakerSingleProbe(t *testing.T) {
	var transitions []string
	c := &clock{now: time.Unix(0, 0)}
	b := newBreaker(c, &transitions)
	for range 3 {
		_ = b.Do(fail)
	}
	c.Advance(time.Minute)

	err := b.Do(func() error {
		assert.ErrorIs(t, b.Do(succeed), ErrOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}
