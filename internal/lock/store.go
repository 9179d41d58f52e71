// Package lock reserves assets for the transfer that claims them and guards
// transfer execution against overlapping triggers. Locks are ephemeral: they
// live in a Store with a TTL and never in the system of record.
package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Store is the lock port. Implementations must make Acquire all-or-nothing
// and Release compare-and-delete.
type Store interface {
	// Acquire sets every key to owner with the given TTL, or none of them.
	// Keys already held by owner are refreshed. If any key is held by
	// another owner, Acquire returns a *HeldError and changes nothing.
	Acquire(ctx context.Context, keys []string, owner string, ttl time.Duration) error

	// Release deletes the keys that are still held by owner. Releasing keys
	// that expired or belong to someone else is not an error.
	Release(ctx context.Context, keys []string, owner string) error

	// Probe returns the current owner of every held key. Free keys are
	// absent from the result.
	Probe(ctx context.Context, keys []string) (map[string]string, error)
}

// ErrHeld is matched by every *HeldError.
var ErrHeld = errors.New("lock held")

// HeldError reports the keys that blocked an Acquire and who holds them.
type HeldError struct {
	Held map[string]string
}

func (e *HeldError) Error() string {
	keys := make([]string, 0, len(e.Held))
	for k := range e.Held {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s by %s", k, e.Held[k])
	}
	return "lock held: " + strings.Join(parts, ", ")
}

func (e *HeldError) Unwrap() error { return ErrHeld }
