package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                  "development",
		TaxRate:              "0.16",
		PaymentMethods:       []string{"efectivo", "tarjeta"},
		CashPaymentMethods:   []string{"efectivo"},
		SaleNumberMaxRetries: 5,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.Env = "production"
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	cfg = validConfig()
	cfg.CashPaymentMethods = []string{"cheque"}
	assert.ErrorContains(t, cfg.Validate(), "cheque")

	cfg = validConfig()
	cfg.PaymentMethods = nil
	cfg.CashPaymentMethods = nil
	cfg.SaleNumberMaxRetries = 0
	err := cfg.Validate()
	assert.ErrorContains(t, err, "PAYMENT_METHODS")
	assert.ErrorContains(t, err, "SALE_NUMBER_MAX_RETRIES")
}

func TestTasaImpuesto(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "0", false},
		{" 0.16 ", "0.16", false},
		{"0", "0", false},
		{"1", "", true},
		{"-0.1", "", true},
		{"dieciseis", "", true},
	}
	for _, tc := range cases {
		got, err := (&Config{TaxRate: tc.in}).TasaImpuesto()
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.True(t, decimal.RequireFromString(tc.want).Equal(got), tc.in)
	}
}

func TestNormalizeList(t *testing.T) {
	assert.Equal(t,
		[]string{"efectivo", "tarjeta", "transferencia"},
		normalizeList([]string{"Efectivo, tarjeta", "", "transferencia,efectivo"}))
	assert.Nil(t, normalizeList(nil))
}
