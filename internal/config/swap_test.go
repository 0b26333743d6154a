package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwapConfigLoadDefaults(t *testing.T) {
	var c SwapConfig
	require.NoError(t, c.Load())

	assert.Equal(t, DefaultRefreshInterval, c.RefreshInterval)
	assert.Equal(t, DefaultSlippage, c.DefaultSlippage)
	assert.Equal(t, []uint64{1910}, c.StablePoolIDs)
	assert.Len(t, c.StableTokenIDs, 3)
	assert.Equal(t, "wrap.near", c.WrapNearContractID)
	assert.True(t, c.IsStablePool(1910))
	assert.False(t, c.IsStablePool(1))
}

func TestSwapConfigLoadFromEnv(t *testing.T) {
	t.Setenv("POOL_REFRESH_INTERVAL", "5")
	t.Setenv("DEFAULT_SLIPPAGE", "1.5")
	t.Setenv("STABLE_POOL_IDS", "79, 1910 ,")
	t.Setenv("STABLE_TOKEN_IDS", "usdt.near,usdc.near")
	t.Setenv("MAX_SPLITS", "2")

	var c SwapConfig
	require.NoError(t, c.Load())

	assert.Equal(t, 5*time.Second, c.RefreshInterval)
	assert.Equal(t, 1.5, c.DefaultSlippage)
	assert.Equal(t, []uint64{79, 1910}, c.StablePoolIDs)
	assert.Equal(t, []string{"usdt.near", "usdc.near"}, c.StableTokenIDs)
	assert.Equal(t, 2, c.MaxSplits)
}

func TestSwapConfigRejectsBadValues(t *testing.T) {
	t.Setenv("STABLE_POOL_IDS", "abc")
	var c SwapConfig
	assert.Error(t, c.Load())

	t.Setenv("STABLE_POOL_IDS", "")
	t.Setenv("DEFAULT_SLIPPAGE", "150")
	c = SwapConfig{}
	assert.Error(t, c.Load())
}
