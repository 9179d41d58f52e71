package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultAssetTTL bounds how long an abandoned reservation blocks an asset.
// Scheduled transfers hold theirs for this long past the scheduled date.
const DefaultAssetTTL = time.Hour

const assetKeyPrefix = "transfer:lock:asset:"

// AssetKey returns the lock key of an asset.
func AssetKey(assetID int64) string {
	return assetKeyPrefix + strconv.FormatInt(assetID, 10)
}

// AssetsHeldError lists assets reserved by other transfers, keyed by asset
// ID with the holding transfer ID as value.
type AssetsHeldError struct {
	Holders map[int64]int64
}

func (e *AssetsHeldError) Error() string {
	return fmt.Sprintf("%d asset(s) locked by other transfers", len(e.Holders))
}

func (e *AssetsHeldError) Unwrap() error { return ErrHeld }

// AssetLocks reserves assets on behalf of transfers.
type AssetLocks struct {
	store Store
	ttl   time.Duration
}

// NewAssetLocks creates asset locks on top of s. A non-positive ttl selects
// DefaultAssetTTL.
func NewAssetLocks(s Store, ttl time.Duration) *AssetLocks {
	if ttl <= 0 {
		ttl = DefaultAssetTTL
	}
	return &AssetLocks{store: s, ttl: ttl}
}

// Lock reserves all assets for transferID or none of them. On conflict it
// returns an *AssetsHeldError naming every blocking asset.
func (l *AssetLocks) Lock(ctx context.Context, assetIDs []int64, transferID int64) error {
	return l.LockFor(ctx, assetIDs, transferID, 0)
}

// LockFor is Lock for a transfer that runs after wait. The reservation lasts
// for wait plus the TTL.
func (l *AssetLocks) LockFor(ctx context.Context, assetIDs []int64, transferID int64, wait time.Duration) error {
	ttl := l.ttl + max(wait, 0)
	err := l.store.Acquire(ctx, assetKeys(assetIDs), transferOwner(transferID), ttl)
	var held *HeldError
	if errors.As(err, &held) {
		return &AssetsHeldError{Holders: holders(held.Held)}
	}
	if err != nil {
		return fmt.Errorf("locking assets for transfer %d: %w", transferID, err)
	}
	return nil
}

// Unlock releases the reservations transferID still holds. It is safe to
// call more than once.
func (l *AssetLocks) Unlock(ctx context.Context, assetIDs []int64, transferID int64) error {
	if err := l.store.Release(ctx, assetKeys(assetIDs), transferOwner(transferID)); err != nil {
		return fmt.Errorf("unlocking assets for transfer %d: %w", transferID, err)
	}
	return nil
}

// CheckLocked returns the assets that are currently reserved and the
// transfer holding each.
func (l *AssetLocks) CheckLocked(ctx context.Context, assetIDs []int64) (map[int64]int64, error) {
	held, err := l.store.Probe(ctx, assetKeys(assetIDs))
	if err != nil {
		return nil, fmt.Errorf("checking asset locks: %w", err)
	}
	return holders(held), nil
}

func assetKeys(ids []int64) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = AssetKey(id)
	}
	return keys
}

func transferOwner(id int64) string {
	return strconv.FormatInt(id, 10)
}

// holders converts key/owner pairs into asset/transfer pairs. Entries that
// do not parse are kept with a zero transfer ID so they still block.
func holders(held map[string]string) map[int64]int64 {
	out := make(map[int64]int64, len(held))
	for k, owner := range held {
		assetID, err := strconv.ParseInt(strings.TrimPrefix(k, assetKeyPrefix), 10, 64)
		if err != nil {
			continue
		}
		transferID, _ := strconv.ParseInt(owner, 10, 64)
		out[assetID] = transferID
	}
	return out
}
