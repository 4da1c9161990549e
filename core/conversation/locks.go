package conversation

import (
	"context"
	"sync"
)

// userLocks serializes work per user id. Entries are dropped once no goroutine holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

// Lock blocks until the caller owns userID and returns the matching unlock func.
func (l *userLocks) Lock(userID int64) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

type heldKey struct{}

// lockUser locks userID and returns ctx marked as holding that lock.
func (c *Core) lockUser(ctx context.Context, userID int64) (context.Context, func()) {
	unlock := c.locks.Lock(userID)
	return context.WithValue(ctx, heldKey{}, userID), unlock
}

// holdsUser reports whether ctx comes from a handler already holding the lock of userID.
func holdsUser(ctx context.Context, userID int64) bool {
	held, ok := ctx.Value(heldKey{}).(int64)
	return ok && held == userID
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
