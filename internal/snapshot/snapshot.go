// Package snapshot archives fetched page bodies so extraction decisions
// can be audited after the fact.
package snapshot

import "context"

// Store persists one page body per key and returns a stable URI for it.
type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}
