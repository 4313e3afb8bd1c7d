package id

import (
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()
	assert.NotEqual(t, gen.Generate(), gen.Generate())
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{BroadcastPrefix, SubscriptionPrefix, RequestPrefix} {
		id := gen.GenerateWithPrefix(prefix)
		require.True(t, strings.HasPrefix(id, prefix+"_"), id)

		parts := strings.Split(id, "_")
		require.Len(t, parts, 2)
		assert.True(t, IsValid(parts[1]))
	}
}

func TestTypedIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewBroadcastID().String(), "bc_"))
	assert.True(t, strings.HasPrefix(NewSubscriptionID().String(), "sub_"))
	assert.True(t, strings.HasPrefix(NewRequestID().String(), "req_"))
	assert.True(t, strings.HasPrefix(NewDeliveryID().String(), "dlv_"))
}

func TestMonotonicOrdering(t *testing.T) {
	gen := NewGenerator()
	ids := make([]string, 500)
	for i := range ids {
		ids[i] = gen.Generate().String()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate().String()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{NewRequestID().String(), true},
		{NewDeliveryID().String(), true},
		{NewGenerator().Generate().String(), true},
		{"", false},
		{"req_not-a-ulid", false},
		{"abc-123", false},
		{"Req_" + NewGenerator().Generate().String(), false},
		{"_" + NewGenerator().Generate().String(), false},
		{"a\nb_" + NewGenerator().Generate().String(), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValid(tt.id), tt.id)
	}
}
