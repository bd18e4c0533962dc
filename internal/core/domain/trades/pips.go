// internal/core/domain/trades/pips.go
package trades

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Pip offsets of the four targets.
const (
	PipsTP1 = 20
	PipsTP2 = 40
	PipsTP3 = 70
	PipsSL  = 50
)

// PipSpec is the display precision and pip size of an instrument.
type PipSpec struct {
	Decimals int32
	PipValue decimal.Decimal
}

// PipTable resolves PipSpec per pair. Explicit entries win over the built-in rules.
type PipTable struct {
	specs map[string]PipSpec
}

func NewPipTable(specs map[string]PipSpec) *PipTable {
	t := &PipTable{specs: make(map[string]PipSpec, len(specs))}
	for pair, spec := range specs {
		t.specs[NormalizePair(pair)] = spec
	}
	return t
}

// Lookup returns the spec for a normalized pair.
func (t *PipTable) Lookup(pair string) PipSpec {
	pair = NormalizePair(pair)
	if t != nil {
		if spec, ok := t.specs[pair]; ok {
			return spec
		}
	}
	switch {
	case strings.HasPrefix(pair, "XAU"):
		return PipSpec{Decimals: 2, PipValue: decimal.RequireFromString("0.1")}
	case strings.HasPrefix(pair, "XAG"):
		return PipSpec{Decimals: 3, PipValue: decimal.RequireFromString("0.01")}
	case len(pair) == 6 && strings.HasSuffix(pair, "JPY"):
		return PipSpec{Decimals: 3, PipValue: decimal.RequireFromString("0.01")}
	}
	return PipSpec{Decimals: 4, PipValue: decimal.RequireFromString("0.0001")}
}

// NormalizePair uppercases and strips every non-alphanumeric character.
func NormalizePair(pair string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(pair) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ComputeLevels derives TP1..TP3 and SL from entry.
func ComputeLevels(action Action, entry decimal.Decimal, spec PipSpec) Levels {
	offset := func(pips int64) decimal.Decimal {
		return spec.PipValue.Mul(decimal.NewFromInt(pips))
	}
	sign := decimal.NewFromInt(1)
	if action == ActionSell {
		sign = decimal.NewFromInt(-1)
	}
	at := func(pips int64) decimal.Decimal {
		return entry.Add(offset(pips).Mul(sign)).Round(spec.Decimals)
	}
	return Levels{
		TP1: at(PipsTP1),
		TP2: at(PipsTP2),
		TP3: at(PipsTP3),
		SL:  entry.Sub(offset(PipsSL).Mul(sign)).Round(spec.Decimals),
	}
}

// FormatPrice renders a price with the instrument's precision.
func (s PipSpec) FormatPrice(p decimal.Decimal) string {
	return p.StringFixed(s.Decimals)
}
