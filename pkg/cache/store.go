package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidEntry is returned by stores for entries without a fingerprint.
var ErrInvalidEntry = errors.New("cache entry has no fingerprint")

// Store is a cache backend.
//
// Get returns (nil, nil) on a miss. Set replaces any existing entry for the
// fingerprint. Sweep deletes at most limit entries whose RetainUntil is
// before now and returns how many it deleted.
type Store interface {
	Get(ctx context.Context, fingerprint string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, fingerprint string) error
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
	Len(ctx context.Context) (int, error)
	Close() error
}
