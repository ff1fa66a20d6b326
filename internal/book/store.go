// Package book implements the locally reconstructed limit-order book: two
// decimal-ordered price ladders plus a monotonic update id, guarded by a
// single exclusive-write/shared-read mutex.
package book

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"

	"github.com/BullionBear/obsync/internal/model"
)

func decimalComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

// Store is the Book Store (C1): sorted bid/ask price->quantity ladders
// with a monotonic LastUpdateID. Zero value is not usable; use New.
type Store struct {
	mu           sync.RWMutex
	bids         *treemap.Map // price -> quantity, iterated descending for top(n)
	asks         *treemap.Map // price -> quantity, iterated ascending for top(n)
	lastUpdateID int64        // 0 means uninitialized
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		bids: treemap.NewWith(decimalComparator),
		asks: treemap.NewWith(decimalComparator),
	}
}

func applyLevels(side *treemap.Map, levels []model.Level) {
	for _, lvl := range levels {
		if lvl.Quantity.IsZero() {
			side.Remove(lvl.Price)
		} else {
			side.Put(lvl.Price, lvl.Quantity)
		}
	}
}

// ApplyDeltas applies a batch of bid/ask deltas and advances LastUpdateID
// to newUpdateID. Quantity zero removes the price; any other quantity sets
// it. Callers (the sync state machine) are responsible for gating
// newUpdateID against the current LastUpdateID — this layer is total and
// never rejects a call.
func (s *Store) ApplyDeltas(bids, asks []model.Level, newUpdateID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	applyLevels(s.bids, bids)
	applyLevels(s.asks, asks)
	s.lastUpdateID = newUpdateID
}

// ReplaceWith discards the current book and installs a Snapshot's levels,
// skipping any zero-quantity level. LastUpdateID becomes the snapshot's.
func (s *Store) ReplaceWith(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids.Clear()
	s.asks.Clear()
	for _, lvl := range snap.Bids {
		if !lvl.Quantity.IsZero() {
			s.bids.Put(lvl.Price, lvl.Quantity)
		}
	}
	for _, lvl := range snap.Asks {
		if !lvl.Quantity.IsZero() {
			s.asks.Put(lvl.Price, lvl.Quantity)
		}
	}
	s.lastUpdateID = snap.LastUpdateID
}

func topN(side *treemap.Map, n int, descending bool) []model.Level {
	out := make([]model.Level, 0, n)
	it := side.Iterator()
	if descending {
		for it.End(); it.Prev() && len(out) < n; {
			out = append(out, model.Level{
				Price:    it.Key().(decimal.Decimal),
				Quantity: it.Value().(decimal.Decimal),
			})
		}
	} else {
		for it.Next() && len(out) < n; {
			out = append(out, model.Level{
				Price:    it.Key().(decimal.Decimal),
				Quantity: it.Value().(decimal.Decimal),
			})
		}
	}
	return out
}

// Top returns the n best bids (highest price first) and n best asks
// (lowest price first) as owned, immutable slices. Fewer than n levels are
// returned when a side has fewer entries.
func (s *Store) Top(n int) (bids, asks []model.Level) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return topN(s.bids, n, true), topN(s.asks, n, false)
}

// Copy returns a full owned copy of both ladders.
func (s *Store) Copy() (bids, asks []model.Level) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return topN(s.bids, s.bids.Size(), true), topN(s.asks, s.asks.Size(), false)
}

// LastUpdateID returns the current update id. Safe to call without
// coordinating with a concurrent ApplyDeltas/ReplaceWith/Clear.
func (s *Store) LastUpdateID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdateID
}

// Clear empties both ladders and resets LastUpdateID to 0.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids.Clear()
	s.asks.Clear()
	s.lastUpdateID = 0
}
