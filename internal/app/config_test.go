package app

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL:   "postgres://localhost/yshpics",
		SessionSecret: "0123456789abcdef0123456789abcdef",
		PublicBaseURL: "https://ysh.pics",
		Payments: PaymentsConfig{
			CommissionRate:    "0.10",
			CommissionMinimum: "0.50",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "NoDatabase", mutate: func(c *Config) { c.DatabaseURL = "" }},
		{name: "ShortSecret", mutate: func(c *Config) { c.SessionSecret = "short" }},
		{name: "BadRate", mutate: func(c *Config) { c.Payments.CommissionRate = "ten" }},
		{name: "RateTooHigh", mutate: func(c *Config) { c.Payments.CommissionRate = "1" }},
		{name: "NegativeMinimum", mutate: func(c *Config) { c.Payments.CommissionMinimum = "-1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, c.validate())
		})
	}
}

func TestPaymentsConfig_CommissionPolicy(t *testing.T) {
	p, err := validConfig().Payments.CommissionPolicy()
	require.NoError(t, err)
	assert.True(t, p.Rate.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, p.Minimum.Equal(decimal.RequireFromString("0.5")))
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	c := &Config{Addr: "0.0.0.0:8080", PublicBaseURL: "https://ysh.pics/"}
	c.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", c.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", c.Addr)
	assert.Equal(t, "https://ysh.pics", c.PublicBaseURL)
	assert.Equal(t, "https://ysh.pics/api/webhooks/mercadopago", c.NotificationURL())
}
