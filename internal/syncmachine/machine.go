// Package syncmachine implements the Sync State Machine (C4): the
// INITIALIZING -> BUFFERING -> SNAPSHOT_RECEIVED -> SYNCHRONIZED lifecycle,
// its ERROR_STATE recovery path, and the buffer-drain algorithm that
// aligns a late-arriving snapshot with the diffs buffered while it was in
// flight.
package syncmachine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/BullionBear/obsync/internal/book"
	"github.com/BullionBear/obsync/internal/buffer"
	"github.com/BullionBear/obsync/internal/model"
	"github.com/BullionBear/obsync/internal/snapshot"
)

// State is the synchronizer's lifecycle tag.
type State int32

const (
	StateInitializing State = iota
	StateBuffering
	StateSnapshotReceived
	StateSynchronized
	StateErrorState
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateBuffering:
		return "BUFFERING"
	case StateSnapshotReceived:
		return "SNAPSHOT_RECEIVED"
	case StateSynchronized:
		return "SYNCHRONIZED"
	case StateErrorState:
		return "ERROR_STATE"
	default:
		return "UNKNOWN"
	}
}

// Configuration constants, §6.
const (
	TickInterval       = 10 * time.Millisecond
	SnapshotRetryDelay = 1000 * time.Millisecond
	ErrorBackoff       = 5 * time.Second
	SnapshotDepth      = 5000
)

// Machine is the Sync State Machine. Construct with New, call Start once,
// then drive it with Run(ctx) from a single goroutine; feed frames to it
// via Dispatch from the ingress task.
type Machine struct {
	symbol     string
	depthLimit int

	store      *book.Store
	buf        *buffer.Ring
	newFetcher func() *snapshot.Fetcher
	logger     zerolog.Logger

	state State32

	mu             sync.Mutex // guards the fields below, never held across store/buf locks
	fetcher        *snapshot.Fetcher
	firstBufferedU int64
	retryAt        time.Time
	errorEnteredAt time.Time
	callback       func()
}

// State32 wraps atomic.Int32 typed as State for readability at call sites.
type State32 struct{ v atomic.Int32 }

func (s *State32) Load() State      { return State(s.v.Load()) }
func (s *State32) Store(v State)    { s.v.Store(int32(v)) }
func (s *State32) CAS(old, new State) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}

// New returns a Machine wired to store/buf and a factory that produces a
// fresh one-shot snapshot.Fetcher on every (re-)request.
func New(symbol string, depthLimit int, store *book.Store, buf *buffer.Ring, newFetcher func() *snapshot.Fetcher, logger zerolog.Logger) *Machine {
	if depthLimit <= 0 {
		depthLimit = SnapshotDepth
	}
	return &Machine{
		symbol:     symbol,
		depthLimit: depthLimit,
		store:      store,
		buf:        buf,
		newFetcher: newFetcher,
		logger:     logger,
	}
}

// SetUpdateCallback registers the single callback fired once per state
// transition that materially changes observable book contents. It must be
// fast and must not call back into the Machine's mutating methods.
func (m *Machine) SetUpdateCallback(cb func()) {
	m.mu.Lock()
	m.callback = cb
	m.mu.Unlock()
}

func (m *Machine) fireCallback() {
	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// State returns the current lifecycle tag.
func (m *Machine) State() State { return m.state.Load() }

// IsSynchronized reports whether the book is in the steady SYNCHRONIZED
// state, without needing the Book Store mutex.
func (m *Machine) IsSynchronized() bool { return m.state.Load() == StateSynchronized }

// Top is the downstream copy-out accessor: owned top-of-book plus the
// current state tag.
func (m *Machine) Top(n int) (bids, asks []model.Level, state State) {
	bids, asks = m.store.Top(n)
	return bids, asks, m.state.Load()
}

// Start issues the first snapshot request and moves the machine from
// INITIALIZING to BUFFERING. Call once, before Run.
func (m *Machine) Start() {
	if m.state.CAS(StateInitializing, StateBuffering) {
		m.requestSnapshot()
	}
}

func (m *Machine) requestSnapshot() {
	m.mu.Lock()
	f := m.newFetcher()
	m.fetcher = f
	m.mu.Unlock()
	f.Request(m.symbol, m.depthLimit)
}

// Dispatch routes a parsed diff event according to the current state. It
// never blocks for more than a brief critical section and never performs
// I/O.
func (m *Machine) Dispatch(e model.DiffEvent) {
	switch m.state.Load() {
	case StateInitializing, StateBuffering, StateSnapshotReceived:
		m.bufferEvent(e)
	case StateSynchronized:
		m.applyIfSynchronized(e)
	case StateErrorState:
		// awaiting reset; no action per the routing table.
	}
}

func (m *Machine) bufferEvent(e model.DiffEvent) {
	m.mu.Lock()
	if m.firstBufferedU == 0 {
		m.firstBufferedU = e.FirstUpdateID
	}
	m.mu.Unlock()
	m.buf.Push(e)
}

func (m *Machine) applyIfSynchronized(e model.DiffEvent) {
	l0 := m.store.LastUpdateID()
	switch {
	case e.FinalUpdateID <= l0:
		m.logger.Debug().Int64("u", e.FinalUpdateID).Int64("last_update_id", l0).Msg("stale diff ignored")
	case e.FirstUpdateID > l0+1:
		m.logger.Warn().Int64("first_update_id", e.FirstUpdateID).Int64("last_update_id", l0).Msg("gap detected")
		m.enterErrorState()
	default:
		m.store.ApplyDeltas(e.Bids, e.Asks, e.FinalUpdateID)
		m.fireCallback()
	}
}

func (m *Machine) enterErrorState() {
	m.mu.Lock()
	m.errorEnteredAt = time.Now()
	m.mu.Unlock()
	m.state.Store(StateErrorState)
}

// Run drives the background worker: it ticks every TickInterval, polling
// the snapshot future, draining the buffer, and performing backoff
// recovery, until ctx is canceled. Run must be called from exactly one
// goroutine; canceling ctx is the idiomatic substitute for a stop flag and
// is safe to do more than once.
func (m *Machine) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Machine) tick() {
	switch m.state.Load() {
	case StateBuffering:
		m.tickBuffering()
	case StateSnapshotReceived:
		m.drain()
	case StateErrorState:
		m.tickErrorState()
	}
}

func (m *Machine) tickBuffering() {
	m.mu.Lock()
	f := m.fetcher
	retryAt := m.retryAt
	firstU := m.firstBufferedU
	m.mu.Unlock()

	if f == nil {
		if time.Now().Before(retryAt) {
			return
		}
		m.requestSnapshot()
		return
	}

	snap, ok := f.Poll()
	if !ok {
		return
	}

	if snap.Valid && snap.LastUpdateID >= firstU {
		m.store.ReplaceWith(snap)
		m.mu.Lock()
		m.fetcher = nil
		m.mu.Unlock()
		m.state.Store(StateSnapshotReceived)
		return
	}

	m.logger.Info().Int64("snapshot_last_update_id", snap.LastUpdateID).Int64("first_buffered_u", firstU).Bool("valid", snap.Valid).Msg("snapshot rejected, scheduling retry")
	m.mu.Lock()
	m.fetcher = nil
	m.retryAt = time.Now().Add(SnapshotRetryDelay)
	m.mu.Unlock()
}

func (m *Machine) tickErrorState() {
	m.mu.Lock()
	since := time.Since(m.errorEnteredAt)
	m.mu.Unlock()
	if since >= ErrorBackoff {
		m.reset()
	}
}

// drain applies buffered events on top of the installed snapshot's
// last_update_id, discarding anything already covered and requiring the
// first event actually applied to straddle L+1.
func (m *Machine) drain() {
	l := m.store.LastUpdateID()
	firstApplied := false
	for {
		e, ok := m.buf.PopFront()
		if !ok {
			break
		}
		if e.FinalUpdateID <= l {
			continue
		}
		if !firstApplied {
			if !(e.FirstUpdateID <= l+1 && l+1 <= e.FinalUpdateID) {
				m.logger.Error().Int64("first_update_id", e.FirstUpdateID).Int64("last_update_id", l).Msg("drain alignment failure")
				m.enterErrorState()
				return
			}
			firstApplied = true
		}
		m.store.ApplyDeltas(e.Bids, e.Asks, e.FinalUpdateID)
		l = e.FinalUpdateID
	}
	m.state.Store(StateSynchronized)
	m.fireCallback()
}

// reset clears the Book Store and Event Buffer (in that lock order — the
// two never held simultaneously), forgets first_buffered_U, and
// re-requests a snapshot, folding the momentary INITIALIZING state into
// the re-entry to BUFFERING. Idempotent: safe to call from a tick that
// observes ERROR_STATE more than once, since only the first observation
// after the backoff elapses triggers it.
func (m *Machine) reset() {
	m.store.Clear()
	m.buf.Clear()
	m.mu.Lock()
	m.firstBufferedU = 0
	m.retryAt = time.Time{}
	m.mu.Unlock()
	m.state.Store(StateBuffering)
	m.requestSnapshot()
}
