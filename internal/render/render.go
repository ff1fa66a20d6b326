// Package render is the downstream Book Reader (§6 of the spec): a thin
// adapter that copies top-of-book out of the synchronizer and prints it,
// plus a minimal mid-price tracker. Neither contributes synchronization
// logic — both are explicitly out of scope per §1 and exist here only so
// the synchronizer is runnable end to end.
package render

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/BullionBear/obsync/internal/model"
	"github.com/BullionBear/obsync/internal/syncmachine"
)

// Source is the subset of syncmachine.Machine the printer depends on.
type Source interface {
	Top(n int) (bids, asks []model.Level, state syncmachine.State)
}

// Printer renders a fixed-depth top-of-book snapshot to stdout on every
// invocation of Print. It owns no state of its own and
// is safe to call from the Machine's update callback or a separate
// polling goroutine.
type Printer struct {
	source Source
	depth  int
	symbol string
}

// NewPrinter returns a Printer over source showing depth levels per side.
func NewPrinter(source Source, symbol string, depth int) *Printer {
	if depth <= 0 {
		depth = 5
	}
	return &Printer{source: source, depth: depth, symbol: symbol}
}

// Print writes the current top-of-book and mid-price to stdout. It is
// cheap enough to call directly from an update callback: Top is a
// bounded copy-out, not a scan of the whole book.
func (p *Printer) Print() {
	bids, asks, state := p.source.Top(p.depth)
	fmt.Println(p.render(bids, asks, state))
}

func (p *Printer) render(bids, asks []model.Level, state syncmachine.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] mid=%s\n", p.symbol, state, midPrice(bids, asks))
	for i := 0; i < p.depth; i++ {
		var bidCell, askCell string
		if i < len(bids) {
			bidCell = fmt.Sprintf("%s @ %s", bids[i].Quantity, bids[i].Price)
		}
		if i < len(asks) {
			askCell = fmt.Sprintf("%s @ %s", asks[i].Quantity, asks[i].Price)
		}
		fmt.Fprintf(&b, "  %-28s | %s\n", bidCell, askCell)
	}
	return b.String()
}

// midPrice is the average of the best bid and best ask. It returns "n/a"
// when either side is empty — the book is not yet two-sided, e.g. during
// BUFFERING or immediately after a reset.
func midPrice(bids, asks []model.Level) string {
	if len(bids) == 0 || len(asks) == 0 {
		return "n/a"
	}
	mid := bids[0].Price.Add(asks[0].Price).Div(decimal.NewFromInt(2))
	return mid.StringFixed(8)
}
