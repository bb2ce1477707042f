// Package credits keeps the client's view of the server-owned credit balance.
// The balance is only ever replaced by a fresh server read; spending actions
// invalidate it instead of decrementing it locally.
package credits

import (
	"context"
	"fmt"
	"sync"
	"time"

	"genclient/internal/infra"
)

// Fetcher reads the current balance from the server.
type Fetcher interface {
	GetCredits(ctx context.Context) (int, error)
}

// Snapshot is the last balance read from the server.
type Snapshot struct {
	Credits   int
	FetchedAt time.Time
	Stale     bool
}

// Balance caches the last server-reported balance.
type Balance struct {
	fetcher Fetcher
	logger  *infra.Logger
	now     func() time.Time

	mu      sync.Mutex
	current Snapshot
	known   bool
}

// NewBalance constructs a Balance backed by fetcher.
func NewBalance(fetcher Fetcher, logger *infra.Logger) *Balance {
	return &Balance{fetcher: fetcher, logger: infra.OrDiscard(logger), now: time.Now}
}

// Refresh reads the balance from the server and replaces the cached value.
func (b *Balance) Refresh(ctx context.Context) (Snapshot, error) {
	credits, err := b.fetcher.GetCredits(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("credits: refresh: %w", err)
	}
	snap := Snapshot{Credits: credits, FetchedAt: b.now()}
	b.mu.Lock()
	b.current = snap
	b.known = true
	b.mu.Unlock()
	return snap, nil
}

// Current returns the last fetched balance. ok is false if the balance has
// never been fetched.
func (b *Balance) Current() (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.known
}

// Ensure returns the cached balance, fetching it first if none is known.
func (b *Balance) Ensure(ctx context.Context) (Snapshot, error) {
	if snap, ok := b.Current(); ok && !snap.Stale {
		return snap, nil
	}
	return b.Refresh(ctx)
}

// Invalidate marks the cached balance stale after a spend and refetches it.
// Refetch failures are logged; the stale value stays visible until the next
// successful read.
func (b *Balance) Invalidate(ctx context.Context) {
	b.mu.Lock()
	b.current.Stale = true
	b.mu.Unlock()
	if _, err := b.Refresh(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("credits: refetch after spend failed")
	}
}
