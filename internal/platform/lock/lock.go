// Package lock serializes work on a key across server instances.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLocked is returned by Acquire when another holder owns the key.
var ErrLocked = errors.New("lock is held")

// Locker hands out exclusive, expiring leases on string keys.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	Ping(ctx context.Context) error
}

// Lease is one acquired lock. Release is safe to call more than once and
// never frees a lease that expired and was taken by someone else.
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// VisitKey is the lock key guarding revisions of one visit.
func VisitKey(visitID uuid.UUID) string {
	return "ckdmbd:revision:" + visitID.String()
}

func newToken() string {
	return uuid.NewString()
}
