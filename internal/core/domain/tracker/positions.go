// internal/core/domain/tracker/positions.go
package tracker

import (
	"context"

	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/core/domain/trades"
)

// PositionRow is one line of the active-trades list.
type PositionRow struct {
	Trade    *trades.Trade
	Price    decimal.Decimal
	HasPrice bool
	Position trades.Position
	Spec     trades.PipSpec
}

// Positions prices every mirrored trade once and classifies it.
func (t *Tracker) Positions(ctx context.Context) []PositionRow {
	list := t.Active()
	rows := make([]PositionRow, 0, len(list))
	for _, tr := range list {
		row := PositionRow{Trade: tr, Spec: t.spec(tr.Pair)}
		if !tr.ManualTrackingOnly {
			if p, _, err := t.prices.GetPrice(ctx, tr.Pair, tr.AssignedAPI); err == nil {
				row.Price, row.HasPrice = p, true
			}
		}
		row.Position = trades.PositionOf(tr, row.Price, row.HasPrice)
		rows = append(rows, row)
	}
	return rows
}

// Compose builds the signal the operator is about to post: levels come from the pip
// table applied to the entry, and the disclaimer is appended for configured pairs.
func (t *Tracker) Compose(action trades.Action, entryType trades.EntryType, pair string, entry decimal.Decimal) (trades.Signal, string) {
	pair = trades.NormalizePair(pair)
	spec := t.spec(pair)
	sig := trades.Signal{
		Pair:      pair,
		Action:    action,
		EntryType: entryType,
		Entry:     entry,
		Levels:    trades.ComputeLevels(action, entry, spec),
		HasLevels: true,
	}
	return sig, trades.RenderSignal(sig, spec, t.trading.DisclaimerFor(pair))
}

// Spec exposes the pip spec of a pair for formatting.
func (t *Tracker) Spec(pair string) trades.PipSpec { return t.spec(pair) }
