// internal/adapters/market/oracle.go
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

// ErrPriceUnavailable is returned when every provider missed.
var ErrPriceUnavailable = errors.New("price unavailable from all providers")

// PriceCache shares quotes between trades on the same pair within one tick.
type PriceCache interface {
	GetPrice(ctx context.Context, pair string) (decimal.Decimal, string, bool)
	SetPrice(ctx context.Context, pair string, price decimal.Decimal, provider string, ttl time.Duration)
}

type Options struct {
	// Keys maps provider name to api key. A provider without a key always misses.
	Keys     map[string]string
	Timeout  time.Duration
	Cache    PriceCache
	CacheTTL time.Duration
	// Per-provider request rate; zero means one request per second with burst 5.
	Rate  rate.Limit
	Burst int
}

// Oracle walks the provider chain until one returns a positive rate.
type Oracle struct {
	providers []Provider
	keys      map[string]string
	client    *httpClient
	limiters  map[string]*rate.Limiter
	cache     PriceCache
	cacheTTL  time.Duration
	timeout   time.Duration
}

func NewOracle(providers []Provider, opts Options) *Oracle {
	if opts.Rate == 0 {
		opts.Rate = rate.Every(time.Second)
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	o := &Oracle{
		providers: providers,
		keys:      opts.Keys,
		client:    newHTTPClient(opts.Timeout),
		limiters:  make(map[string]*rate.Limiter, len(providers)),
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		timeout:   opts.Timeout,
	}
	for _, p := range providers {
		o.limiters[p.Name] = rate.NewLimiter(opts.Rate, opts.Burst)
	}
	return o
}

// Providers lists provider names in chain order.
func (o *Oracle) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name
	}
	return names
}

// GetPrice returns the current price of pair. The preferred provider is tried first,
// then the rest of the chain in order.
func (o *Oracle) GetPrice(ctx context.Context, pair, preferred string) (decimal.Decimal, string, error) {
	pair = trades.NormalizePair(pair)
	if o.cache != nil && o.cacheTTL > 0 {
		if price, provider, ok := o.cache.GetPrice(ctx, pair); ok {
			return price, provider, nil
		}
	}

	for _, p := range o.order(preferred) {
		price, err := o.quote(ctx, p, pair)
		if err != nil {
			metrics.ProviderMisses.WithLabelValues(p.Name).Inc()
			logger.Debug("💱 %s miss for %s: %v", p.Name, pair, err)
			if ctx.Err() != nil {
				return decimal.Zero, "", ctx.Err()
			}
			continue
		}
		if o.cache != nil && o.cacheTTL > 0 {
			o.cache.SetPrice(ctx, pair, price, p.Name, o.cacheTTL)
		}
		return price, p.Name, nil
	}

	metrics.PriceUnavailable.Inc()
	return decimal.Zero, "", fmt.Errorf("Oracle.GetPrice %s: %w", pair, ErrPriceUnavailable)
}

// WorkingProvider returns the first provider in chain order that prices pair right now,
// or the first provider's name when none does. The cache is bypassed.
func (o *Oracle) WorkingProvider(ctx context.Context, pair string) string {
	pair = trades.NormalizePair(pair)
	for _, p := range o.providers {
		price, err := o.quote(ctx, p, pair)
		if err != nil {
			metrics.ProviderMisses.WithLabelValues(p.Name).Inc()
			logger.Debug("💱 %s cannot price %s: %v", p.Name, pair, err)
			continue
		}
		if o.cache != nil && o.cacheTTL > 0 {
			o.cache.SetPrice(ctx, pair, price, p.Name, o.cacheTTL)
		}
		return p.Name
	}
	if len(o.providers) == 0 {
		return ""
	}
	return o.providers[0].Name
}

func (o *Oracle) order(preferred string) []Provider {
	out := make([]Provider, 0, len(o.providers))
	for _, p := range o.providers {
		if p.Name == preferred {
			out = append(out, p)
		}
	}
	for _, p := range o.providers {
		if p.Name != preferred {
			out = append(out, p)
		}
	}
	return out
}

// quote makes one attempt against one provider.
func (o *Oracle) quote(ctx context.Context, p Provider, pair string) (decimal.Decimal, error) {
	base, quote, ok := MapPair(pair)
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported symbol %q", pair)
	}
	key := o.keys[p.Name]
	if key == "" {
		return decimal.Zero, errors.New("no api key configured")
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if lim := o.limiters[p.Name]; lim != nil {
		if err := lim.Wait(attemptCtx); err != nil {
			return decimal.Zero, fmt.Errorf("rate limit: %w", err)
		}
	}

	body, err := o.client.get(attemptCtx, p.URL(p.BaseURL, key, base, quote))
	if err != nil {
		return decimal.Zero, err
	}
	return p.Parse(body, quote)
}
