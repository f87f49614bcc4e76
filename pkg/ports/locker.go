package ports

import (
	"context"
	"time"
)

// UnlockFunc gives a session lease back. Releasing a lease that already
// expired is not an error worth failing a turn over; callers log it.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes state reads and writes for one session across
// processes that share a StateStore.
//
// The session manager holds a lease only around its store round-trips, never
// across an Oracle call, so the ttl bounds how long a crashed process can keep
// a session blocked.
type DistributedLocker interface {
	// Lock waits until the lease on sessionID is free, then holds it for at
	// most ttl. It returns ctx.Err() if ctx ends first.
	Lock(ctx context.Context, sessionID string, ttl time.Duration) (UnlockFunc, error)
}
