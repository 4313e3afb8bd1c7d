// Package id provides ULID generation for broadcasts, subscriptions and
// API requests.
//
// Session ids and verification ids are small integers owned by their
// stores; everything that crosses a process boundary (broadcasts pushed to
// websocket clients and webhooks, request ids in logs) gets a prefixed
// ULID from here so it sorts by creation time.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// BroadcastID identifies a single published broadcast
type BroadcastID string

// SubscriptionID identifies a receiver registered on the bus
type SubscriptionID string

// RequestID identifies an API request
type RequestID string

// DeliveryID identifies one webhook delivery attempt chain
type DeliveryID string

const (
	BroadcastPrefix    = "bc"
	SubscriptionPrefix = "sub"
	RequestPrefix      = "req"
	DeliveryPrefix     = "dlv"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs that are strictly increasing within a
// millisecond, so ids minted in publish order also sort in publish order.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
// (deterministic readers in tests).
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: ulid.Monotonic(entropy, 0)}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

func NewBroadcastID() BroadcastID {
	return BroadcastID(Default().GenerateWithPrefix(BroadcastPrefix))
}

func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(Default().GenerateWithPrefix(SubscriptionPrefix))
}

func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func NewDeliveryID() DeliveryID {
	return DeliveryID(Default().GenerateWithPrefix(DeliveryPrefix))
}

func (id BroadcastID) String() string    { return string(id) }
func (id SubscriptionID) String() string { return string(id) }
func (id RequestID) String() string      { return string(id) }
func (id DeliveryID) String() string     { return string(id) }

// ============================================================================
// Parsing
// ============================================================================

// IsValid checks if an ID string is a ULID, bare or behind a lowercase
// prefix ("req_01J...").
func IsValid(id string) bool {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		if !isPrefix(id[:i]) {
			return false
		}
		id = id[i+1:]
	}
	_, err := ulid.Parse(id)
	return err == nil
}

func isPrefix(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
