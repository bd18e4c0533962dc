// internal/adapters/market/factory.go
package market

import (
	"signal-desk-bot/internal/infrastructure/config"
)

// OracleFactory builds the price oracle from configuration.
type OracleFactory struct {
	config *config.Config
}

func NewOracleFactory(cfg *config.Config) *OracleFactory {
	return &OracleFactory{config: cfg}
}

// CreateOracle builds the default provider chain. cache may be nil.
func (f *OracleFactory) CreateOracle(cache PriceCache) *Oracle {
	return NewOracle(DefaultProviders(), Options{
		Keys:     f.config.Providers.Keys,
		Timeout:  f.config.Providers.Timeout,
		Cache:    cache,
		CacheTTL: f.config.Tracker.PriceCacheTTL,
	})
}

// ConfiguredProviders lists the providers that have an api key.
func (f *OracleFactory) ConfiguredProviders() []string {
	var names []string
	for _, p := range DefaultProviders() {
		if f.config.Providers.Keys[p.Name] != "" {
			names = append(names, p.Name)
		}
	}
	return names
}
