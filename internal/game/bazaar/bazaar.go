// Package bazaar holds the server's market listings behind the refresh gate.
package bazaar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cory-johannsen/nosgate/internal/game/gate"
)

// Listing is one item offered on the bazaar.
type Listing struct {
	ID         int64
	SellerID   int64
	SellerName string
	ItemVNum   int
	Amount     int
	Price      int64
	ExpiresAt  time.Time
}

// Loader supplies the current set of active listings.
type Loader interface {
	ListActive(ctx context.Context) ([]Listing, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]Listing, error)

// ListActive calls f.
func (f LoaderFunc) ListActive(ctx context.Context) ([]Listing, error) { return f(ctx) }

// Store is the in-memory listing snapshot. Refreshes raise the gate so readers
// never page through a half-swapped dataset.
type Store struct {
	gate *gate.Gate
	wait time.Duration

	mu          sync.RWMutex
	listings    []Listing
	refreshedAt time.Time
}

// NewStore creates an empty Store whose readers wait up to wait for a refresh.
//
// Precondition: g must be non-nil.
func NewStore(g *gate.Gate, wait time.Duration) *Store {
	if g == nil {
		panic("bazaar.NewStore: gate must be non-nil")
	}
	return &Store{gate: g, wait: wait}
}

// Gate exposes the refresh gate.
func (s *Store) Gate() *gate.Gate { return s.gate }

// Refresh loads listings and swaps them in while holding the gate. On a load
// error the previous snapshot is kept.
//
// Postcondition: The gate is lowered on return.
func (s *Store) Refresh(ctx context.Context, loader Loader) error {
	if err := s.gate.Begin(ctx); err != nil {
		return fmt.Errorf("raising bazaar gate: %w", err)
	}
	defer s.gate.End()

	listings, err := loader.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("loading bazaar listings: %w", err)
	}

	s.mu.Lock()
	s.listings = listings
	s.refreshedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// Page waits for any refresh in progress and returns one page of listings.
// Pages are zero-based.
//
// Postcondition: Returns the page and the total listing count, or gate.ErrTimeout
// or a context error.
func (s *Store) Page(ctx context.Context, page, size int) ([]Listing, int, error) {
	if err := s.gate.Wait(ctx, s.wait); err != nil {
		return nil, 0, err
	}
	if page < 0 || size <= 0 {
		return nil, 0, fmt.Errorf("invalid page %d of size %d", page, size)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.listings)
	// Compare page indexes; page*size can overflow for a client-supplied page.
	if total == 0 || page > (total-1)/size {
		return nil, total, nil
	}
	start := page * size
	end := min(start+size, total)
	out := make([]Listing, end-start)
	copy(out, s.listings[start:end])
	return out, total, nil
}

// Len returns the number of listings in the current snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listings)
}

// RefreshedAt returns when the last successful refresh completed.
func (s *Store) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}
