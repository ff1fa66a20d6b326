// Package snapshot implements the one-shot, non-blocking REST snapshot
// future the sync state machine polls while buffering.
package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BullionBear/obsync/internal/model"
)

// DefaultTimeout is the per-request timeout applied to every fetch.
const DefaultTimeout = 10 * time.Second

// RESTClient is the external collaborator (C7) that performs the actual
// depth GET. Implementations must honor ctx cancellation/deadline.
type RESTClient interface {
	FetchDepth(ctx context.Context, symbol string, limit int) (model.Snapshot, error)
}

// Fetcher is the Snapshot Fetcher (C3): given a symbol and depth limit, it
// launches at most one in-flight request and resolves a future the
// synchronizer can poll without blocking. It is single-use — construct a
// fresh Fetcher (NewFetcher) to issue another fetch.
type Fetcher struct {
	client RESTClient
	logger zerolog.Logger

	once    sync.Once
	result  chan model.Snapshot
	pending atomic.Bool
}

// NewFetcher returns a Fetcher around client, ready to have Request called
// on it once.
func NewFetcher(client RESTClient, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		logger: logger,
		result: make(chan model.Snapshot, 1),
	}
}

// Request launches the fetch in a new goroutine, at most once per Fetcher
// instance. symbol is passed to the RESTClient unchanged; case
// normalization is the client's job (restdepth.Client upper-cases it).
func (f *Fetcher) Request(symbol string, limit int) {
	f.once.Do(func() {
		f.pending.Store(true)
		reqID := uuid.New().String()
		go func() {
			defer f.pending.Store(false)
			ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
			defer cancel()

			snap, err := f.client.FetchDepth(ctx, symbol, limit)
			if err != nil {
				f.logger.Warn().Str("request_id", reqID).Str("symbol", symbol).Err(err).Msg("snapshot fetch failed")
				snap = model.Snapshot{Valid: false}
			}
			f.result <- snap
		}()
	})
}

// Poll returns the resolved Snapshot without blocking. ok is false until
// the in-flight fetch (if any) completes.
func (f *Fetcher) Poll() (snap model.Snapshot, ok bool) {
	select {
	case snap = <-f.result:
		return snap, true
	default:
		return model.Snapshot{}, false
	}
}

// Pending reports whether a fetch was launched and has not yet resolved.
func (f *Fetcher) Pending() bool {
	return f.pending.Load()
}
