package render

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/BullionBear/obsync/internal/model"
	"github.com/BullionBear/obsync/internal/syncmachine"
)

type fakeSource struct {
	bids, asks []model.Level
	state      syncmachine.State
}

func (f *fakeSource) Top(n int) ([]model.Level, []model.Level, syncmachine.State) {
	return f.bids, f.asks, f.state
}

func lvl(price, qty string) model.Level {
	return model.Level{Price: decimal.RequireFromString(price), Quantity: decimal.RequireFromString(qty)}
}

func TestRender_ShowsMidPriceWhenBothSidesPresent(t *testing.T) {
	src := &fakeSource{
		bids:  []model.Level{lvl("100", "1")},
		asks:  []model.Level{lvl("102", "1")},
		state: syncmachine.StateSynchronized,
	}
	p := NewPrinter(src, "BTCUSDT", 5)
	out := p.render(src.bids, src.asks, src.state)
	assert.Contains(t, out, "mid=101.00000000")
}

func TestRender_ShowsNAWhenOneSideEmpty(t *testing.T) {
	src := &fakeSource{bids: nil, asks: []model.Level{lvl("102", "1")}, state: syncmachine.StateBuffering}
	p := NewPrinter(src, "BTCUSDT", 5)
	out := p.render(src.bids, src.asks, src.state)
	assert.Contains(t, out, "mid=n/a")
}

func TestNewPrinter_DefaultsDepth(t *testing.T) {
	p := NewPrinter(&fakeSource{}, "BTCUSDT", 0)
	assert.Equal(t, 5, p.depth)
}
