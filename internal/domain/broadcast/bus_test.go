package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, s *Subscription) Broadcast {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bc, err := s.Next(ctx)
	require.NoError(t, err)
	return bc
}

func TestPublishStampsAndDelivers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe(nil)

	bus.Publish(Broadcast{Action: ActionPackageAdded, PackageName: "com.a"})

	bc := next(t, sub)
	assert.Equal(t, ActionPackageAdded, bc.Action)
	assert.NotEmpty(t, bc.ID)
	assert.False(t, bc.Time.IsZero())
}

func TestFIFOOrderingUnderLoad(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe(ForPackage("com.a"))

	// Nobody reads while publishing: the queue must absorb everything.
	for i := 0; i < 1000; i++ {
		bus.Publish(Broadcast{Action: ActionPackageChanged, PackageName: "com.a", SessionID: i})
		bus.Publish(Broadcast{Action: ActionPackageChanged, PackageName: "com.b"})
	}

	for i := 0; i < 1000; i++ {
		assert.Equal(t, i, next(t, sub).SessionID)
	}
}

func TestBatchOrderAcrossSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	subs := []*Subscription{bus.Subscribe(nil), bus.Subscribe(nil)}

	bus.Publish(
		Broadcast{Action: ActionPackageRemoved, Replacing: true},
		Broadcast{Action: ActionPackageAdded, Replacing: true},
		Broadcast{Action: ActionPackageReplaced},
	)

	for _, s := range subs {
		assert.Equal(t, ActionPackageRemoved, next(t, s).Action)
		assert.Equal(t, ActionPackageAdded, next(t, s).Action)
		assert.Equal(t, ActionPackageReplaced, next(t, s).Action)
	}
}

func TestFilters(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe(And(Actions(ActionUnarchivePackage), ForTarget("com.installer")))

	bus.Publish(
		Broadcast{Action: ActionPackageAdded, PackageName: "x"},
		Broadcast{Action: ActionUnarchivePackage, PackageName: "x", Target: "com.other"},
		Broadcast{Action: ActionUnarchivePackage, PackageName: "y", Target: "com.installer"},
	)

	assert.Equal(t, "y", next(t, sub).PackageName)
	assert.Equal(t, 0, sub.Pending())
}

func TestRegisterHandler(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	sub := bus.Register(nil, func(bc Broadcast) {
		mu.Lock()
		got = append(got, bc.PackageName)
		n := len(got)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	})
	defer sub.Close()

	for i := 0; i < 3; i++ {
		bus.Publish(Broadcast{Action: ActionPackageAdded, PackageName: fmt.Sprint(i)})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	mu.Lock()
	assert.Equal(t, []string{"0", "1", "2"}, got)
	mu.Unlock()
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(nil)
	assert.Equal(t, 1, bus.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Subscribers())

	_, ok := <-sub.C()
	assert.False(t, ok)

	bus.Close()
	late := bus.Subscribe(nil)
	_, ok = <-late.C()
	assert.False(t, ok)
	bus.Publish(Broadcast{Action: ActionPackageAdded})
}
