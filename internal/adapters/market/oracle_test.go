package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"signal-desk-bot/internal/infrastructure/cache/memory"
)

// fakeAPI answers every provider path from one test server.
type fakeAPI struct {
	mu     sync.Mutex
	bodies map[string]string // path prefix -> body
	status map[string]int
	calls  map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{bodies: map[string]string{}, status: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for prefix, body := range f.bodies {
		if strings.HasPrefix(r.URL.Path, prefix) {
			f.calls[prefix]++
			if code := f.status[prefix]; code != 0 {
				w.WriteHeader(code)
			}
			_, _ = w.Write([]byte(body))
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (f *fakeAPI) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[prefix]
}

const (
	pathFX     = "/latest"
	pathBeacon = "/v1/latest"
	pathERA    = "/v6/"
	pathFreaks = "/v2.0/rates/latest"
)

func testOracle(t *testing.T, api *fakeAPI, opts Options) *Oracle {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	providers := DefaultProviders()
	for i := range providers {
		providers[i].BaseURL = srv.URL
	}
	if opts.Keys == nil {
		opts.Keys = map[string]string{
			ProviderFXRatesAPI: "k1", ProviderCurrencyBeacon: "k2",
			ProviderExchangeRateAPI: "k3", ProviderCurrencyFreaks: "k4",
		}
	}
	opts.Rate = rate.Inf
	return NewOracle(providers, opts)
}

func TestMapPair(t *testing.T) {
	tests := []struct {
		in          string
		base, quote string
		ok          bool
	}{
		{"EURUSD", "EUR", "USD", true},
		{"gbp/jpy", "GBP", "JPY", true},
		{"XAUUSD", "XAU", "USD", true},
		{"XAGEUR", "XAG", "EUR", true},
		{"US100", "", "", false},
		{"BTCUSDT", "", "", false},
		{"XAU", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			base, quote, ok := MapPair(tt.in)
			if ok != tt.ok || base != tt.base || quote != tt.quote {
				t.Fatalf("MapPair(%q) = %q %q %v", tt.in, base, quote, ok)
			}
		})
	}
}

func TestChainFallsThroughToStringRates(t *testing.T) {
	api := newFakeAPI()
	api.bodies[pathBeacon] = `{"rates":{"USD":0}}`
	api.bodies[pathERA] = `{"result":"error","error-type":"quota-reached"}`
	api.bodies[pathFreaks] = `{"date":"x","base":"EUR","rates":{"USD":"1.0850"}}`
	api.bodies[pathFX] = `oops`
	api.status[pathFX] = http.StatusInternalServerError

	o := testOracle(t, api, Options{})
	price, provider, err := o.GetPrice(context.Background(), "EURUSD", "")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if provider != ProviderCurrencyFreaks || !price.Equal(decimal.RequireFromString("1.085")) {
		t.Fatalf("got %s from %s", price, provider)
	}
}

func TestPreferredProviderFirst(t *testing.T) {
	api := newFakeAPI()
	api.bodies[pathFX] = `{"rates":{"USD":1.1}}`
	api.bodies[pathERA] = `{"result":"success","conversion_rate":1.2}`

	o := testOracle(t, api, Options{})
	price, provider, err := o.GetPrice(context.Background(), "EURUSD", ProviderExchangeRateAPI)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if provider != ProviderExchangeRateAPI || price.String() != "1.2" {
		t.Fatalf("got %s from %s", price, provider)
	}
	if api.count(pathFX) != 0 {
		t.Fatal("fallback provider called although preferred answered")
	}
}

func TestCurrencyBeaconNestedShape(t *testing.T) {
	got, err := parseCurrencyBeacon([]byte(`{"meta":{"code":200},"response":{"rates":{"USD":2345.5}}}`), "USD")
	if err != nil || got.String() != "2345.5" {
		t.Fatalf("parse = %s, %v", got, err)
	}
}

func TestUnsupportedAndKeylessAreMisses(t *testing.T) {
	api := newFakeAPI()
	api.bodies[pathFX] = `{"rates":{"USD":1.1}}`

	o := testOracle(t, api, Options{Keys: map[string]string{}})
	if _, _, err := o.GetPrice(context.Background(), "EURUSD", ""); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("keyless err = %v", err)
	}

	o = testOracle(t, api, Options{})
	if _, _, err := o.GetPrice(context.Background(), "US100", ""); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("unsupported err = %v", err)
	}
	if api.count(pathFX) != 0 {
		t.Fatal("unsupported symbol reached a provider")
	}
}

func TestWorkingProviderDefaultsToFirst(t *testing.T) {
	api := newFakeAPI()
	o := testOracle(t, api, Options{})
	if got := o.WorkingProvider(context.Background(), "EURUSD"); got != ProviderFXRatesAPI {
		t.Fatalf("WorkingProvider = %q", got)
	}

	api.bodies[pathERA] = `{"result":"success","conversion_rate":"150.25"}`
	if got := o.WorkingProvider(context.Background(), "USDJPY"); got != ProviderExchangeRateAPI {
		t.Fatalf("WorkingProvider = %q", got)
	}
}

func TestCacheSharesQuotes(t *testing.T) {
	api := newFakeAPI()
	api.bodies[pathFX] = `{"rates":{"USD":1.1}}`

	o := testOracle(t, api, Options{Cache: memory.NewCache(), CacheTTL: time.Minute})
	for i := 0; i < 3; i++ {
		if _, _, err := o.GetPrice(context.Background(), "eur/usd", ""); err != nil {
			t.Fatalf("GetPrice: %v", err)
		}
	}
	if n := api.count(pathFX); n != 1 {
		t.Fatalf("provider called %d times, want 1", n)
	}
}
