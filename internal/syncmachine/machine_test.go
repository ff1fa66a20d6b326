package syncmachine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BullionBear/obsync/internal/book"
	"github.com/BullionBear/obsync/internal/buffer"
	"github.com/BullionBear/obsync/internal/model"
	"github.com/BullionBear/obsync/internal/snapshot"
)

type fakeREST struct {
	snap model.Snapshot
}

func (f *fakeREST) FetchDepth(ctx context.Context, symbol string, limit int) (model.Snapshot, error) {
	return f.snap, nil
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func lvl(price, qty string) model.Level {
	return model.Level{Price: d(price), Quantity: d(qty)}
}

func diff(u, uu int64) model.DiffEvent {
	return model.DiffEvent{FirstUpdateID: u, FinalUpdateID: uu}
}

func newMachine(t *testing.T, snap model.Snapshot) (*Machine, *fakeREST) {
	t.Helper()
	fc := &fakeREST{snap: snap}
	m := New("BTCUSDT", 5000, book.New(), buffer.New(buffer.DefaultCapacity),
		func() *snapshot.Fetcher { return snapshot.NewFetcher(fc, zerolog.Nop()) },
		zerolog.Nop())
	return m, fc
}

func waitForState(t *testing.T, m *Machine, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		m.tick()
		return m.State() == want
	}, time.Second, time.Millisecond)
}

// S1 — happy path.
func TestScenario_S1_HappyPath(t *testing.T) {
	m, _ := newMachine(t, model.Snapshot{LastUpdateID: 108, Valid: true})
	m.Start()

	m.Dispatch(diff(100, 105))
	m.Dispatch(diff(106, 110))
	m.Dispatch(diff(111, 115))

	waitForState(t, m, StateSnapshotReceived)
	waitForState(t, m, StateSynchronized)

	assert.EqualValues(t, 115, m.store.LastUpdateID())
}

// S2 — early snapshot: must be rejected and re-requested, staying BUFFERING.
func TestScenario_S2_EarlySnapshotRejected(t *testing.T) {
	m, fc := newMachine(t, model.Snapshot{LastUpdateID: 150, Valid: true})
	m.Start()
	m.Dispatch(diff(200, 205))

	require.Eventually(t, func() bool {
		m.tick()
		m.mu.Lock()
		noFetcher := m.fetcher == nil
		m.mu.Unlock()
		return noFetcher
	}, time.Second, time.Millisecond)

	assert.Equal(t, StateBuffering, m.State())
	_ = fc
}

// S3 — gap in steady state triggers ERROR_STATE then an automatic reset.
func TestScenario_S3_GapTripsErrorStateThenResets(t *testing.T) {
	m, _ := newMachine(t, model.Snapshot{LastUpdateID: 500, Valid: true})
	m.Start()
	waitForState(t, m, StateSnapshotReceived)
	waitForState(t, m, StateSynchronized)
	require.EqualValues(t, 500, m.store.LastUpdateID())

	m.Dispatch(diff(505, 510))
	assert.Equal(t, StateErrorState, m.State())
	assert.False(t, m.IsSynchronized())

	m.mu.Lock()
	m.errorEnteredAt = time.Now().Add(-ErrorBackoff - time.Millisecond)
	m.mu.Unlock()
	waitForState(t, m, StateBuffering)

	bids, asks := m.store.Top(10)
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}

// S4 — deletion while SYNCHRONIZED removes the key.
func TestScenario_S4_DeletionInSynchronized(t *testing.T) {
	m, _ := newMachine(t, model.Snapshot{
		Bids:         []model.Level{lvl("27000.00", "1.0")},
		LastUpdateID: 10,
		Valid:        true,
	})
	m.Start()
	waitForState(t, m, StateSnapshotReceived)
	waitForState(t, m, StateSynchronized)

	e := diff(11, 11)
	e.Bids = []model.Level{lvl("27000.00", "0")}
	m.Dispatch(e)

	bids, _ := m.store.Top(10)
	assert.Empty(t, bids)
	assert.EqualValues(t, 11, m.store.LastUpdateID())
}

// S5 — buffer overflow: length caps at 1000, oldest evicted, but
// first_buffered_U (recorded before the overflow) survives until reset.
func TestScenario_S5_BufferOverflowKeepsFirstBufferedU(t *testing.T) {
	m, _ := newMachine(t, model.Snapshot{Valid: false})
	m.Start()

	for i := int64(1); i <= 1001; i++ {
		m.Dispatch(diff(i, i))
	}

	assert.Equal(t, buffer.DefaultCapacity, m.buf.Len())
	m.mu.Lock()
	firstU := m.firstBufferedU
	m.mu.Unlock()
	assert.EqualValues(t, 1, firstU)
}

// S6 — stale diff while SYNCHRONIZED is ignored outright.
func TestScenario_S6_StaleDiffIgnored(t *testing.T) {
	m, _ := newMachine(t, model.Snapshot{LastUpdateID: 400, Valid: true})
	m.Start()
	waitForState(t, m, StateSnapshotReceived)
	waitForState(t, m, StateSynchronized)

	fired := false
	m.SetUpdateCallback(func() { fired = true })

	m.Dispatch(diff(350, 400))

	assert.Equal(t, StateSynchronized, m.State())
	assert.EqualValues(t, 400, m.store.LastUpdateID())
	assert.False(t, fired)
}

func TestDrain_MisalignedFirstEventTripsErrorState(t *testing.T) {
	m, _ := newMachine(t, model.Snapshot{LastUpdateID: 100, Valid: true})
	m.Start()
	waitForState(t, m, StateSnapshotReceived)

	m.buf.Push(diff(150, 160)) // does not straddle L+1 = 101
	m.drain()

	assert.Equal(t, StateErrorState, m.State())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	m, _ := newMachine(t, model.Snapshot{Valid: false})
	m.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * TickInterval + ErrorBackoff):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestApplyIfSynchronized_AppliedEventSatisfiesContiguity(t *testing.T) {
	m, _ := newMachine(t, model.Snapshot{LastUpdateID: 10, Valid: true})
	m.Start()
	waitForState(t, m, StateSnapshotReceived)
	waitForState(t, m, StateSynchronized)

	l0 := m.store.LastUpdateID()
	e := diff(11, 20)
	m.Dispatch(e)
	assert.EqualValues(t, e.FinalUpdateID, m.store.LastUpdateID())
	assert.LessOrEqual(t, e.FirstUpdateID, l0+1)
}
