// internal/adapters/market/provider.go
package market

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"signal-desk-bot/internal/core/domain/trades"
)

// Provider names, in chain order.
const (
	ProviderFXRatesAPI      = "fxratesapi"
	ProviderCurrencyBeacon  = "currencybeacon"
	ProviderExchangeRateAPI = "exchangerate_api"
	ProviderCurrencyFreaks  = "currencyfreaks"
)

var errNoRate = errors.New("rate missing from response")

// Provider is one FX quote source.
type Provider struct {
	Name    string
	BaseURL string
	// URL builds the request for base/quote with the api key.
	URL func(baseURL, key, base, quote string) string
	// Parse extracts the quote rate from a 200 response body.
	Parse func(body []byte, quote string) (decimal.Decimal, error)
}

// DefaultProviders returns the fixed chain.
func DefaultProviders() []Provider {
	return []Provider{
		{
			Name:    ProviderFXRatesAPI,
			BaseURL: "https://api.fxratesapi.com",
			URL: func(baseURL, key, base, quote string) string {
				q := url.Values{"api_key": {key}, "base": {base}, "currencies": {quote}}
				return baseURL + "/latest?" + q.Encode()
			},
			Parse: parseRatesMap,
		},
		{
			Name:    ProviderCurrencyBeacon,
			BaseURL: "https://api.currencybeacon.com",
			URL: func(baseURL, key, base, quote string) string {
				q := url.Values{"api_key": {key}, "base": {base}, "symbols": {quote}}
				return baseURL + "/v1/latest?" + q.Encode()
			},
			Parse: parseCurrencyBeacon,
		},
		{
			Name:    ProviderExchangeRateAPI,
			BaseURL: "https://v6.exchangerate-api.com",
			URL: func(baseURL, key, base, quote string) string {
				return fmt.Sprintf("%s/v6/%s/pair/%s/%s", baseURL, url.PathEscape(key), base, quote)
			},
			Parse: parseExchangeRateAPI,
		},
		{
			Name:    ProviderCurrencyFreaks,
			BaseURL: "https://api.currencyfreaks.com",
			URL: func(baseURL, key, base, quote string) string {
				q := url.Values{"apikey": {key}, "base": {base}, "symbols": {quote}}
				return baseURL + "/v2.0/rates/latest?" + q.Encode()
			},
			Parse: parseRatesMap,
		},
	}
}

// MapPair splits a normalized symbol into base and quote currency.
// Six-letter FX pairs split 3/3, metals split after XAU/XAG; everything else is unsupported.
func MapPair(pair string) (base, quote string, ok bool) {
	pair = trades.NormalizePair(pair)
	switch {
	case strings.HasPrefix(pair, "XAU"), strings.HasPrefix(pair, "XAG"):
		if len(pair) <= 3 || !isLetters(pair[3:]) {
			return "", "", false
		}
		return pair[:3], pair[3:], true
	case len(pair) == 6 && isLetters(pair):
		return pair[:3], pair[3:], true
	}
	return "", "", false
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return s != ""
}

// rateValue decodes a rate written either as a JSON number or as a quoted string.
func rateValue(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, errNoRate
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(strings.TrimSpace(s))
	}
	return decimal.NewFromString(string(raw))
}

func positive(v decimal.Decimal, err error) (decimal.Decimal, error) {
	if err != nil {
		return decimal.Zero, err
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate %s", v)
	}
	return v, nil
}

type ratesBody struct {
	Rates map[string]json.RawMessage `json:"rates"`
}

func parseRatesMap(body []byte, quote string) (decimal.Decimal, error) {
	var r ratesBody
	if err := json.Unmarshal(body, &r); err != nil {
		return decimal.Zero, err
	}
	raw, ok := r.Rates[quote]
	if !ok {
		return decimal.Zero, errNoRate
	}
	return positive(rateValue(raw))
}

func parseCurrencyBeacon(body []byte, quote string) (decimal.Decimal, error) {
	var r struct {
		Rates    map[string]json.RawMessage `json:"rates"`
		Response *ratesBody                 `json:"response"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return decimal.Zero, err
	}
	if raw, ok := r.Rates[quote]; ok {
		return positive(rateValue(raw))
	}
	if r.Response != nil {
		if raw, ok := r.Response.Rates[quote]; ok {
			return positive(rateValue(raw))
		}
	}
	return decimal.Zero, errNoRate
}

func parseExchangeRateAPI(body []byte, _ string) (decimal.Decimal, error) {
	var r struct {
		Result         string          `json:"result"`
		ConversionRate json.RawMessage `json:"conversion_rate"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return decimal.Zero, err
	}
	if r.Result != "success" {
		return decimal.Zero, fmt.Errorf("result %q", r.Result)
	}
	return positive(rateValue(r.ConversionRate))
}
