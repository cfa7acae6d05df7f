// Package memory implements publisher.Publisher without an external
// broker. It backs local runs with no pubsub project configured and the
// pipeline tests that assert on completion notifications.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher records every publish for later inspection.
type Publisher struct {
	mu     sync.RWMutex
	seq    int
	record []PublishedMessage
}

// PublishedMessage is one recorded publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a locally unique ID in the
// same position a broker-assigned message ID would occupy.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.record = append(p.record, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of the recorded publishes in publish order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.record))
	copy(out, p.record)
	return out
}
