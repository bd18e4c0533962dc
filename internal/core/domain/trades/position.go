// internal/core/domain/trades/position.go
package trades

import "github.com/shopspring/decimal"

// Position is a coloured dot describing where the price sits relative to the trade.
type Position string

const (
	PositionPending   Position = "🔵"
	PositionUnknown   Position = "⚫"
	PositionDrawdown  Position = "🔴"
	PositionToTP1     Position = "🟡"
	PositionToTP2     Position = "🟢"
	PositionBeyondTP2 Position = "🟣"
)

// PositionLegend explains the dots in the active-trades list.
const PositionLegend = "🔵 waiting for limit entry\n" +
	"⚫ no price (manual or providers down)\n" +
	"🔴 below entry, towards SL\n" +
	"🟡 in profit, before TP1\n" +
	"🟢 between TP1 and TP2\n" +
	"🟣 beyond TP2"

// PositionOf classifies price p. ok=false means no price was available.
func PositionOf(t *Trade, p decimal.Decimal, ok bool) Position {
	if t.Status == StatusPendingEntry {
		return PositionPending
	}
	if !ok || t.ManualTrackingOnly {
		return PositionUnknown
	}
	favour := p.Sub(t.Reference())
	if t.Action == ActionSell {
		favour = favour.Neg()
	}
	switch {
	case favour.IsNegative():
		return PositionDrawdown
	case t.crossedTP(t.Levels.TP2, p):
		return PositionBeyondTP2
	case t.crossedTP(t.Levels.TP1, p):
		return PositionToTP2
	default:
		return PositionToTP1
	}
}
