/*
Package resilience provides a circuit breaker for outbound calls.

The webhook notifier wraps each receiver in a Breaker so one dead endpoint
stops costing retries on every broadcast.

# States

	Closed --[Failures consecutive errors]--> Open
	Open --[Cooldown elapsed]--> Half-Open
	Half-Open --[Probes successes]--> Closed
	Half-Open --[any error]--> Open

# Usage

	breaker := resilience.New("webhook", resilience.Settings{
		Failures: 3,
		Cooldown: time.Minute,
	})

	err := breaker.Do(func() error {
		return deliver(ctx, url, bc)
	})
	if errors.Is(err, resilience.ErrOpen) {
		// skipped without calling the receiver
	}
*/
package resilience
