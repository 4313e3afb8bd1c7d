package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/id"
)

// DeliveryIDHeader names one delivery across its retries.
const DeliveryIDHeader = "X-Delivery-ID"

// Subscriber hands out broadcast subscriptions.
type Subscriber interface {
	Subscribe(filter broadcast.Filter) *broadcast.Subscription
}

// Notifier posts every broadcast as JSON to a fixed set of webhook URLs.
// Deliveries are retried with backoff. A receiver that keeps failing trips
// its breaker and is skipped until the cooldown ends.
type Notifier struct {
	urls     []string
	client   *retryablehttp.Client
	breakers map[string]*resilience.Breaker
	sub      *broadcast.Subscription
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	breakerSettings resilience.Settings

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithMetrics records delivery results.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// WithRetryWait overrides the retry backoff bounds.
func WithRetryWait(min, max time.Duration) Option {
	return func(n *Notifier) {
		n.client.RetryWaitMin = min
		n.client.RetryWaitMax = max
	}
}

// WithBreaker overrides the per-receiver breaker settings.
func WithBreaker(settings resilience.Settings) Option {
	return func(n *Notifier) { n.breakerSettings = settings }
}

// New creates a notifier for cfg.URLs subscribed to filter. It does not
// deliver until Start is called.
func New(cfg config.WebhookConfig, bus Subscriber, filter broadcast.Filter, opts ...Option) *Notifier {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil // Disable logging

	n := &Notifier{
		urls:   append([]string(nil), cfg.URLs...),
		client: retryClient,
		sub:    bus.Subscribe(filter),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}

	n.breakers = make(map[string]*resilience.Breaker, len(n.urls))
	settings := n.breakerSettings
	settings.OnStateChange = func(name string, from, to resilience.State) {
		n.logger.Info("webhook breaker state changed",
			zap.String("url", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	}
	for _, url := range n.urls {
		n.breakers[url] = resilience.New(url, settings)
	}
	return n
}

// Start runs the delivery loop until ctx ends or Close is called.
func (n *Notifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.run(ctx)
	}()
	n.logger.Info("webhook notifier started", zap.Strings("urls", n.urls))
}

// Close stops delivery and releases the subscription.
func (n *Notifier) Close() {
	if n.cancel != nil {
		n.cancel()
	}
	n.sub.Close()
	n.wg.Wait()
}

func (n *Notifier) run(ctx context.Context) {
	for {
		bc, err := n.sub.Next(ctx)
		if err != nil {
			return
		}
		for _, url := range n.urls {
			err := n.breakers[url].Do(func() error {
				return n.Deliver(ctx, url, bc)
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if errors.Is(err, resilience.ErrOpen) {
					n.metrics.RecordWebhookDelivery("skipped")
					continue
				}
				n.metrics.RecordWebhookDelivery("failure")
				n.logger.Warn("webhook delivery failed",
					zap.String("url", url),
					logging.ID("broadcast_id", bc.ID),
					zap.String("action", string(bc.Action)),
					zap.Error(err))
				continue
			}
			n.metrics.RecordWebhookDelivery("success")
		}
	}
}

// Deliver posts one broadcast to url.
func (n *Notifier) Deliver(ctx context.Context, url string, bc broadcast.Broadcast) error {
	body, err := sonic.Marshal(bc)
	if err != nil {
		return fmt.Errorf("failed to encode broadcast: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pkgmgr-webhook/1.0")
	req.Header.Set("X-Broadcast-Action", string(bc.Action))
	req.Header.Set("X-Broadcast-ID", bc.ID.String())
	// Retries reuse the request, so every attempt shares the delivery id.
	delivery := id.NewDeliveryID()
	req.Header.Set(DeliveryIDHeader, delivery.String())

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery %s: %w", delivery, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("delivery %s: webhook returned %s", delivery, resp.Status)
	}
	return nil
}
