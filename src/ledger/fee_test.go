package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFeePolicy(t *testing.T) {
	fees := DefaultFeePolicy()
	cases := []struct {
		amount string
		fee    string
	}{
		{"0", "0"},
		{"-4", "0"},
		{"0.01", "0.1"},
		{"1", "0.1"},
		{"10", "0.1"},
		{"50", "0.5"},
		{"123.45", "1.2345"},
		{"499", "4.99"},
		{"500", "5"},
		{"1000", "5"},
		{"1000000", "5"},
	}
	for _, c := range cases {
		got := fees.Fee(decimal.RequireFromString(c.amount))
		if !got.Equal(decimal.RequireFromString(c.fee)) {
			t.Errorf("fee(%s): expected %s, got %s", c.amount, c.fee, got)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{InitialGrant: -1}.withDefaults()
	if cfg.ConfirmationThreshold != 3 || cfg.MaxReferences != 2 || cfg.MaxFanIn != 4 {
		t.Fatalf("unexpected dag defaults: %+v", cfg)
	}
	if !cfg.initialGrant().IsZero() {
		t.Fatalf("negative grant should disable grants, got %s", cfg.initialGrant())
	}
	if !DefaultConfig().initialGrant().Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected default grant %s", DefaultConfig().initialGrant())
	}
}
