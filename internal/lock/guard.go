package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/prenos/internal/backoff"
)

// Guard defaults.
const (
	DefaultGuardTTL  = 5 * time.Minute
	DefaultGuardWait = 30 * time.Second
)

// ErrBusy is returned when an execution guard stays held past the wait limit.
var ErrBusy = errors.New("transfer execution already in progress")

// Guard makes overlapping executions of the same transfer take turns. It
// lives in the same Store as the asset locks so every process sees it.
type Guard struct {
	store Store
	ttl   time.Duration

	// Wait bounds how long Acquire retries a held guard.
	Wait time.Duration
	// Backoff is the base delay between retries.
	Backoff time.Duration
}

// NewGuard creates an execution guard on top of s.
func NewGuard(s Store) *Guard {
	return &Guard{
		store:   s,
		ttl:     DefaultGuardTTL,
		Wait:    DefaultGuardWait,
		Backoff: 10 * time.Millisecond,
	}
}

// GuardKey returns the guard key of a transfer.
func GuardKey(transferID int64) string {
	return "transfer:execute:" + strconv.FormatInt(transferID, 10)
}

// Acquire takes the guard of transferID, waiting with backoff while another
// execution holds it. The returned release func must be called once the
// execution finished. It returns ErrBusy when the wait limit passes first.
func (g *Guard) Acquire(ctx context.Context, transferID int64) (release func(), err error) {
	key := []string{GuardKey(transferID)}
	owner := uuid.NewString()
	deadline := time.Now().Add(g.Wait)

	for attempt := 0; ; attempt++ {
		err := g.store.Acquire(ctx, key, owner, g.ttl)
		if err == nil {
			return func() {
				// The execution context may be gone by now; release anyway.
				_ = g.store.Release(context.WithoutCancel(ctx), key, owner)
			}, nil
		}
		if !errors.Is(err, ErrHeld) {
			return nil, fmt.Errorf("acquiring execution guard: %w", err)
		}

		if !time.Now().Before(deadline) {
			return nil, ErrBusy
		}
		delay := backoff.Capped(g.Backoff, attempt, min(time.Second, time.Until(deadline)))
		if err := backoff.Sleep(ctx, max(delay, time.Millisecond)); err != nil {
			return nil, err
		}
	}
}
