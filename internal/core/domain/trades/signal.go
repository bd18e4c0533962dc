// internal/core/domain/trades/signal.go
package trades

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Signal is the structured content of a trade signal message.
type Signal struct {
	Pair      string
	Action    Action
	EntryType EntryType
	Entry     decimal.Decimal
	Levels    Levels
	// HasLevels is false when the message carried no complete TP/SL block.
	HasLevels bool
}

var (
	ErrNotASignal      = errors.New("not a trade signal")
	ErrIncompleteInput = errors.New("signal is missing pair, action or entry")
)

var (
	markdownChars = strings.NewReplacer("*", "", "_", "", "`", "", "~", "")

	rePair   = regexp.MustCompile(`(?im)^\s*trade\s+signal\s+for\s*:\s*([a-z0-9/ .\-]+?)\s*$`)
	reType   = regexp.MustCompile(`(?im)^\s*entry\s+type\s*:\s*(buy|sell)\b\s*(execution|limit)?`)
	reEntry  = regexp.MustCompile(`(?im)^\s*entry\s+price\s*:\s*\$?\s*([0-9]+(?:[.,][0-9]+)?)`)
	reTP     = regexp.MustCompile(`(?im)^\s*take\s+profit\s*([123])\s*:\s*\$?\s*([0-9]+(?:[.,][0-9]+)?)`)
	reSL     = regexp.MustCompile(`(?im)^\s*stop\s+loss\s*:\s*\$?\s*([0-9]+(?:[.,][0-9]+)?)`)
	reHeader = regexp.MustCompile(`(?i)trade\s+signal\s+for`)
)

// LooksLikeSignal is a cheap pre-filter for chat messages.
func LooksLikeSignal(text string) bool {
	return reHeader.MatchString(markdownChars.Replace(text))
}

// ParseSignal extracts a signal from message text. Markdown emphasis, a leading $ on
// prices and slashes in the pair are tolerated.
func ParseSignal(text string) (Signal, error) {
	clean := markdownChars.Replace(text)
	if !reHeader.MatchString(clean) {
		return Signal{}, ErrNotASignal
	}

	var sig Signal
	if m := rePair.FindStringSubmatch(clean); m != nil {
		sig.Pair = NormalizePair(m[1])
	}
	if m := reType.FindStringSubmatch(clean); m != nil {
		sig.Action, _ = ParseAction(m[1])
		sig.EntryType = EntryExecution
		if strings.EqualFold(m[2], string(EntryLimit)) {
			sig.EntryType = EntryLimit
		}
	}
	if m := reEntry.FindStringSubmatch(clean); m != nil {
		sig.Entry, _ = parsePrice(m[1])
	}
	if sig.Pair == "" || sig.Action == "" || sig.Entry.IsZero() {
		return sig, ErrIncompleteInput
	}

	found := 0
	for _, m := range reTP.FindAllStringSubmatch(clean, -1) {
		price, err := parsePrice(m[2])
		if err != nil {
			continue
		}
		switch m[1] {
		case "1":
			sig.Levels.TP1 = price
		case "2":
			sig.Levels.TP2 = price
		case "3":
			sig.Levels.TP3 = price
		}
		found++
	}
	if m := reSL.FindStringSubmatch(clean); m != nil {
		if price, err := parsePrice(m[1]); err == nil {
			sig.Levels.SL = price
			found++
		}
	}
	sig.HasLevels = found == 4
	return sig, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
}

// RenderSignal produces the canonical message text. disclaimer is appended as its
// own paragraph when non-empty.
func RenderSignal(sig Signal, spec PipSpec, disclaimer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trade Signal For: %s\n", sig.Pair)
	fmt.Fprintf(&b, "Entry Type: %s %s\n", sig.Action.Title(), sig.EntryType)
	fmt.Fprintf(&b, "Entry Price: $%s\n\n", spec.FormatPrice(sig.Entry))
	b.WriteString("Take Profit Levels:\n")
	fmt.Fprintf(&b, "Take Profit 1: $%s\n", spec.FormatPrice(sig.Levels.TP1))
	fmt.Fprintf(&b, "Take Profit 2: $%s\n", spec.FormatPrice(sig.Levels.TP2))
	fmt.Fprintf(&b, "Take Profit 3: $%s\n\n", spec.FormatPrice(sig.Levels.TP3))
	fmt.Fprintf(&b, "Stop Loss: $%s", spec.FormatPrice(sig.Levels.SL))
	if disclaimer = strings.TrimSpace(disclaimer); disclaimer != "" {
		b.WriteString("\n\n")
		b.WriteString(disclaimer)
	}
	return b.String()
}
