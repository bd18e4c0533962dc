package trading

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadShippedFile(t *testing.T) {
	cfg, err := Load("../../../../configs")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	us100 := cfg.Pips.Lookup("us100")
	if us100.Decimals != 1 || !us100.PipValue.Equal(decimal.NewFromInt(1)) {
		t.Errorf("US100 spec = %+v", us100)
	}
	if got := cfg.Pips.Lookup("EURUSD").PipValue.String(); got != "0.0001" {
		t.Errorf("EURUSD pip = %s", got)
	}
	if !cfg.IsManual("btc/usd") || cfg.IsManual("EURUSD") {
		t.Error("manual pair set wrong")
	}
	if cfg.DisclaimerFor("GER40") == "" || cfg.DisclaimerFor("XAUUSD") != "" {
		t.Error("disclaimer pair set wrong")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsManual("US100") {
		t.Error("default manual pairs missing")
	}
	if cfg.Pips.Lookup("USDJPY").Decimals != 3 {
		t.Error("built-in JPY rule not applied")
	}
}

func TestLoadRejectsBadPipValue(t *testing.T) {
	dir := t.TempDir()
	body := "pips:\n  EURUSD: { decimals: 4, pip_value: \"-1\" }\n"
	if err := os.WriteFile(filepath.Join(dir, "trading.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for negative pip value")
	}
}
