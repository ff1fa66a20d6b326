// Package ingress normalizes raw depth-diff feed frames into diff events
// and routes them into the sync state machine.
package ingress

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/BullionBear/obsync/internal/model"
)

// Machine is the subset of syncmachine.Machine the dispatcher depends on.
// Declared here, not in syncmachine, so this package never imports the
// state machine's full surface — only what routing needs.
type Machine interface {
	Dispatch(e model.DiffEvent)
}

// Dispatcher is the Ingress Dispatcher (C5). It never performs I/O and
// never blocks beyond handing a parsed event to the Machine.
type Dispatcher struct {
	machine Machine
	logger  zerolog.Logger
}

// New returns a Dispatcher that routes parsed events to machine.
func New(machine Machine, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{machine: machine, logger: logger}
}

// wireLevel mirrors a [price_string, qty_string] pair on the wire.
type wireLevel [2]string

type wireDiff struct {
	U   *int64      `json:"U"`
	U2  *int64      `json:"u"`
	PU  *int64      `json:"pu"`
	Bid []wireLevel `json:"b"`
	Ask []wireLevel `json:"a"`
}

type wireEnvelope struct {
	Stream string           `json:"stream"`
	Data   *json.RawMessage `json:"data"`
}

// Dispatch parses frame, drops it silently (no state change) on any
// malformed or incomplete content, and otherwise routes the event to the
// Machine. Unknown top-level keys in a combined-stream envelope are
// ignored.
func (d *Dispatcher) Dispatch(frame []byte) {
	payload := frame
	var env wireEnvelope
	if err := json.Unmarshal(frame, &env); err == nil && env.Data != nil {
		payload = *env.Data
	}

	var w wireDiff
	if err := json.Unmarshal(payload, &w); err != nil {
		d.logger.Debug().Err(err).Msg("dropping malformed frame")
		return
	}
	if w.U == nil || w.U2 == nil {
		d.logger.Debug().Msg("dropping frame missing U/u")
		return
	}
	if *w.U > *w.U2 {
		d.logger.Debug().Int64("U", *w.U).Int64("u", *w.U2).Msg("dropping frame with U > u")
		return
	}

	bids, err := parseLevels(w.Bid)
	if err != nil {
		d.logger.Debug().Err(err).Msg("dropping frame with malformed bid level")
		return
	}
	asks, err := parseLevels(w.Ask)
	if err != nil {
		d.logger.Debug().Err(err).Msg("dropping frame with malformed ask level")
		return
	}

	var pu int64
	if w.PU != nil {
		pu = *w.PU
	}

	d.machine.Dispatch(model.DiffEvent{
		FirstUpdateID: *w.U,
		FinalUpdateID: *w.U2,
		PrevUpdateID:  pu,
		Bids:          bids,
		Asks:          asks,
		ReceivedAt:    time.Now().UnixNano(),
	})
}

func parseLevels(raw []wireLevel) ([]model.Level, error) {
	out := make([]model.Level, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, err
		}
		out = append(out, model.Level{Price: price, Quantity: qty})
	}
	return out, nil
}
