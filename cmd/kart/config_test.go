package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/storage/memory"
)

func defaultConfig() Config {
	return Config{
		Currency:  "INR",
		Migration: "merge",
		Tax:       TaxConfig{Threshold: "999", LowRate: "0.05", HighRate: "0.12"},
		Shipping:  ShippingConfig{FreeThreshold: "0", Cost: "0"},
		COD:       CODConfig{Minimum: "500", Surcharge: "50"},
	}
}

func TestConfig_Policy(t *testing.T) {
	cfg := defaultConfig()
	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Nil(t, p.Shipping, "disabled shipping is an absent policy")
	assert.Equal(t, "0.12", p.Tax.HighRate.String())
	assert.Equal(t, "500", p.CODMinimum.String())

	cfg.Shipping = ShippingConfig{Enabled: true, FreeThreshold: "999", Cost: "99"}
	p, err = cfg.Policy()
	require.NoError(t, err)
	require.NotNil(t, p.Shipping)
	assert.Equal(t, "99", p.Shipping.DefaultShippingCost.String())
	assert.False(t, p.Shipping.ForcePaidShipping)
}

func TestConfig_PolicyErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "bad rate", mutate: func(c *Config) { c.Tax.LowRate = "five" }},
		{name: "negative surcharge", mutate: func(c *Config) { c.COD.Surcharge = "-1" }},
		{name: "bad shipping cost", mutate: func(c *Config) {
			c.Shipping = ShippingConfig{Enabled: true, FreeThreshold: "0", Cost: ""}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			_, err := cfg.Policy()
			require.Error(t, err)
		})
	}
}

func TestConfig_MigrationPolicy(t *testing.T) {
	cfg := defaultConfig()
	p, err := cfg.MigrationPolicy()
	require.NoError(t, err)
	assert.Equal(t, cart.PolicyMerge, p)

	cfg.Migration = "replace"
	p, err = cfg.MigrationPolicy()
	require.NoError(t, err)
	assert.Equal(t, cart.PolicyReplace, p)

	cfg.Migration = "append"
	_, err = cfg.MigrationPolicy()
	require.Error(t, err)
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)

	s := NewSession(kv)
	select {
	case <-s.Ready():
		t.Fatal("ready before resolve")
	default:
	}
	require.NoError(t, s.Resolve(ctx))
	<-s.Ready()
	assert.False(t, s.State().Authenticated)

	require.NoError(t, s.Login(ctx, "u7"))
	require.Error(t, s.Login(ctx, ""))

	again := NewSession(kv)
	require.NoError(t, again.Resolve(ctx))
	assert.Equal(t, cart.AuthState{Authenticated: true, UserID: "u7"}, again.State())

	require.NoError(t, again.Logout(ctx))
	assert.False(t, again.State().Authenticated)
	_, ok, err := kv.Get(ctx, sessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_CorruptResolvesSignedOut(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	require.NoError(t, kv.Put(ctx, sessionKey, []byte("{not json")))

	s := NewSession(kv)
	require.NoError(t, s.Resolve(ctx))
	<-s.Ready()
	assert.Equal(t, cart.AuthState{}, s.State())
}
