// Package notify delivers alert messages to the outbound channel used
// for fatal run errors and per-task failures.
package notify

import "context"

// Notifier sends a text message to the configured alert channel.
// Delivery failures are logged by callers, never escalated: an alert
// that cannot be sent must not fail the run it reports on.
// Version: 1.0
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Noop is a Notifier that discards every message. Used when no alert
// channel is configured.
type Noop struct{}

// Send implements Notifier.
func (Noop) Send(context.Context, string) error {
	return nil
}
