// Package model defines the value types shared by the book store, the
// event buffer, the snapshot fetcher, and the sync state machine.
package model

import "github.com/shopspring/decimal"

// Level is a single price/quantity pair. A zero Quantity is the wire-level
// deletion sentinel and is never stored in a book.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// DiffEvent is a parsed incremental depth update. Bids and Asks are
// unordered deltas: a zero Quantity removes the Price, anything else sets
// it.
type DiffEvent struct {
	FirstUpdateID int64 // U
	FinalUpdateID int64 // u
	PrevUpdateID  int64 // pu, parsed but never used for validation
	Bids          []Level
	Asks          []Level
	ReceivedAt    int64 // unix nanos
}

// Snapshot is the one-shot result of a REST depth fetch. Valid is false
// when the fetch failed or the payload could not be parsed; callers must
// not trust Bids/Asks/LastUpdateID in that case.
type Snapshot struct {
	Bids         []Level
	Asks         []Level
	LastUpdateID int64
	Valid        bool
}
