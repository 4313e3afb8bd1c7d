package broadcast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/id"
)

// Publisher is the side of the bus the domain components depend on.
type Publisher interface {
	Publish(...Broadcast)
}

// Bus fans broadcasts out to subscriptions. Publish never blocks: each
// subscription owns an unbounded FIFO drained by its own goroutine, so a
// batch published together is observed in order by every subscriber.
type Bus struct {
	mu      sync.RWMutex
	subs    map[id.SubscriptionID]*Subscription
	closed  bool
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithMetrics enables broadcast counters.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[id.SubscriptionID]*Subscription),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish stamps and delivers broadcasts in argument order.
func (b *Bus) Publish(bcs ...Broadcast) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	now := time.Now()
	for _, bc := range bcs {
		if bc.ID == "" {
			bc.ID = id.NewBroadcastID()
		}
		if bc.Time.IsZero() {
			bc.Time = now
		}
		for _, s := range b.subs {
			if s.filter == nil || s.filter(bc) {
				s.push(bc)
			}
		}
		b.metrics.RecordBroadcast(string(bc.Action))
		b.logger.Debug("broadcast",
			logging.ID("broadcast_id", bc.ID),
			zap.String("action", string(bc.Action)),
			logging.Package(bc.PackageName),
			logging.User(bc.UserID))
	}
}

// Subscribe registers a receiver. Broadcasts published after Subscribe
// returns are delivered on the subscription's channel.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	s := &Subscription{
		id:     id.NewSubscriptionID(),
		filter: filter,
		bus:    b,
		notify: make(chan struct{}, 1),
		out:    make(chan Broadcast),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.closeOnce.Do(func() { close(s.done) })
		close(s.out)
		return s
	}
	b.subs[s.id] = s
	b.mu.Unlock()

	go s.pump()
	return s
}

// Register runs handler for every matching broadcast, in order, on a
// dedicated goroutine until the returned subscription is closed.
func (b *Bus) Register(filter Filter, handler func(Broadcast)) *Subscription {
	s := b.Subscribe(filter)
	go func() {
		for bc := range s.C() {
			handler(bc)
		}
	}()
	return s
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[id.SubscriptionID]*Subscription)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (b *Bus) remove(sid id.SubscriptionID) {
	b.mu.Lock()
	delete(b.subs, sid)
	b.mu.Unlock()
}

// Subscription is a receiver registered on the bus.
type Subscription struct {
	id     id.SubscriptionID
	filter Filter
	bus    *Bus

	mu     sync.Mutex
	queue  []Broadcast
	notify chan struct{}

	out       chan Broadcast
	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the subscription id.
func (s *Subscription) ID() id.SubscriptionID { return s.id }

// C returns the delivery channel. It closes when the subscription closes.
func (s *Subscription) C() <-chan Broadcast { return s.out }

// Next waits for the next broadcast.
func (s *Subscription) Next(ctx context.Context) (Broadcast, error) {
	select {
	case bc, ok := <-s.out:
		if !ok {
			return Broadcast{}, context.Canceled
		}
		return bc, nil
	case <-ctx.Done():
		return Broadcast{}, ctx.Err()
	}
}

// Pending returns the number of queued, undelivered broadcasts.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close unregisters the subscription. Idempotent.
func (s *Subscription) Close() {
	s.bus.remove(s.id)
	s.stop()
}

func (s *Subscription) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscription) push(bc Broadcast) {
	s.mu.Lock()
	s.queue = append(s.queue, bc)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = Broadcast{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
