// Package publisher declares the outbound notification contract used to
// announce run milestones to downstream consumers.
package publisher

import "context"

// Publisher sends a JSON-encoded payload to a named topic and returns
// the broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
