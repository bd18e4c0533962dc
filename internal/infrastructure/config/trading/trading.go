// internal/infrastructure/config/trading/trading.go
package trading

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"signal-desk-bot/internal/core/domain/trades"
)

// Config - instrument tables used by the tracker and the console
type Config struct {
	Pips            *trades.PipTable
	ManualPairs     map[string]bool
	DisclaimerPairs map[string]bool
	Disclaimer      string
}

type pipEntry struct {
	Decimals int32  `mapstructure:"decimals"`
	PipValue string `mapstructure:"pip_value"`
}

// Load reads trading.yaml from dir. Missing file means built-in defaults only.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("trading")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TRADING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("manual_pairs", []string{"BTCUSD", "US100", "GER40"})
	v.SetDefault("disclaimer_pairs", []string{"US100", "GER40"})
	v.SetDefault("disclaimer", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("trading.Load: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	raw := map[string]pipEntry{}
	if err := v.UnmarshalKey("pips", &raw); err != nil {
		return nil, fmt.Errorf("trading.Load: pips: %w", err)
	}

	specs := make(map[string]trades.PipSpec, len(raw))
	var problems []string
	for pair, e := range raw {
		pip, err := decimal.NewFromString(strings.TrimSpace(e.PipValue))
		if err != nil || !pip.IsPositive() {
			problems = append(problems, fmt.Sprintf("pips.%s.pip_value %q is not a positive number", strings.ToUpper(pair), e.PipValue))
			continue
		}
		if e.Decimals < 0 || e.Decimals > 8 {
			problems = append(problems, fmt.Sprintf("pips.%s.decimals %d out of range", strings.ToUpper(pair), e.Decimals))
			continue
		}
		// viper lower-cases keys; NewPipTable normalizes them back
		specs[pair] = trades.PipSpec{Decimals: e.Decimals, PipValue: pip}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("trading.Load: %s", strings.Join(problems, "; "))
	}

	return &Config{
		Pips:            trades.NewPipTable(specs),
		ManualPairs:     pairSet(v.GetStringSlice("manual_pairs")),
		DisclaimerPairs: pairSet(v.GetStringSlice("disclaimer_pairs")),
		Disclaimer:      strings.TrimSpace(v.GetString("disclaimer")),
	}, nil
}

func pairSet(pairs []string) map[string]bool {
	set := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		// env overrides arrive as one space-separated string
		for _, f := range strings.FieldsFunc(p, func(r rune) bool { return r == ',' || r == ' ' }) {
			if n := trades.NormalizePair(f); n != "" {
				set[n] = true
			}
		}
	}
	return set
}

// IsManual reports whether the pair is never auto-priced.
func (c *Config) IsManual(pair string) bool {
	return c.ManualPairs[trades.NormalizePair(pair)]
}

// DisclaimerFor returns the disclaimer paragraph for pair, or "".
func (c *Config) DisclaimerFor(pair string) string {
	if c.DisclaimerPairs[trades.NormalizePair(pair)] {
		return c.Disclaimer
	}
	return ""
}
