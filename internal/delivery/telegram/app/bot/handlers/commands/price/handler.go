// internal/delivery/telegram/app/bot/handlers/commands/price/handler.go
package price

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
)

// Oracle prices a pair through the provider chain.
type Oracle interface {
	GetPrice(ctx context.Context, pair, preferred string) (decimal.Decimal, string, error)
	WorkingProvider(ctx context.Context, pair string) string
}

// Specs formats prices per pair.
type Specs interface {
	Spec(pair string) trades.PipSpec
}

type priceHandler struct {
	*base.BaseHandler
	oracle Oracle
	specs  Specs
}

// NewHandler creates /price PAIR
func NewHandler(oracle Oracle, specs Specs) handlers.Handler {
	return &priceHandler{
		BaseHandler: &base.BaseHandler{Name: "price_handler", Command: constants.CommandPrice, Type: handlers.TypeCommand},
		oracle:      oracle,
		specs:       specs,
	}
}

func (h *priceHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	pair := trades.NormalizePair(params.Args)
	if pair == "" {
		return base.Text("Usage: /price EURUSD"), nil
	}
	working := h.oracle.WorkingProvider(ctx, pair)
	p, provider, err := h.oracle.GetPrice(ctx, pair, working)
	if err != nil {
		return base.Text("❌ %s: %v", pair, err), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "💱 %s = %s\n", pair, h.specs.Spec(pair).FormatPrice(p))
	fmt.Fprintf(&b, "Provider: %s", provider)
	if provider != working {
		fmt.Fprintf(&b, " (working provider %s missed)", working)
	}
	return base.Message(b.String()), nil
}
