package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

const (
	DefaultRefreshInterval = 20 * time.Second
	DefaultSlippage        = 0.5
	DefaultMaxSplits       = 3
)

var (
	defaultStablePoolIDs  = []uint64{1910}
	defaultStableTokenIDs = []string{
		"usdt.tether-token.near",
		"a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48.factory.bridge.near",
		"6b175474e89094c44da98b954eedeac495271d0f.factory.bridge.near",
	}
)

type SwapConfig struct {
	// RefreshInterval is the period of the background quote refresh.
	// Env POOL_REFRESH_INTERVAL is in seconds. Default: 20
	RefreshInterval time.Duration

	// DefaultSlippage is the slippage tolerance in percent applied when a request omits one.
	DefaultSlippage float64

	// StablePoolIDs are the pools quoted with the stable-swap curve.
	StablePoolIDs []uint64

	// StableTokenIDs is the designated stable token set; a STABLE route only
	// connects two members of it.
	StableTokenIDs []string

	RefContractID      string
	WrapNearContractID string

	// MaxSplits caps how many direct pools a parallel swap is split across.
	MaxSplits int

	// SessionIdleTimeout expires sessions nobody has touched.
	SessionIdleTimeout time.Duration

	// CallbackPath is where the wallet sends the user back after signing.
	CallbackPath string
}

func (c *SwapConfig) Key() string {
	return SWAP_CONFIG_KEY
}

func (c *SwapConfig) Load() error {
	c.RefreshInterval = time.Duration(common.GetEnvOrDefaultInt("POOL_REFRESH_INTERVAL", int(DefaultRefreshInterval/time.Second))) * time.Second
	c.DefaultSlippage = DefaultSlippage
	if raw := os.Getenv("DEFAULT_SLIPPAGE"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return errors.New("invalid DEFAULT_SLIPPAGE")
		}
		c.DefaultSlippage = v
	}

	c.StablePoolIDs = defaultStablePoolIDs
	if raw := os.Getenv("STABLE_POOL_IDS"); raw != "" {
		ids, err := parseIDList(raw)
		if err != nil {
			return err
		}
		c.StablePoolIDs = ids
	}

	c.StableTokenIDs = defaultStableTokenIDs
	if raw := os.Getenv("STABLE_TOKEN_IDS"); raw != "" {
		c.StableTokenIDs = splitList(raw)
	}

	c.RefContractID = common.GetEnvOrDefault("REF_CONTRACT_ID", "v2.ref-finance.near")
	c.WrapNearContractID = common.GetEnvOrDefault("WRAP_NEAR_CONTRACT_ID", "wrap.near")
	c.MaxSplits = common.GetEnvOrDefaultInt("MAX_SPLITS", DefaultMaxSplits)
	c.SessionIdleTimeout = time.Duration(common.GetEnvOrDefaultInt("SESSION_IDLE_TIMEOUT", 600)) * time.Second
	c.CallbackPath = common.GetEnvOrDefault("SWAP_CALLBACK_PATH", "/swap")
	return c.Validate()
}

func (c *SwapConfig) Validate() error {
	if c.RefreshInterval <= 0 {
		return errors.New("refresh interval must be positive")
	}
	if c.DefaultSlippage < 0 || c.DefaultSlippage >= 100 {
		return errors.New("default slippage must be within [0, 100)")
	}
	if c.RefContractID == "" || c.WrapNearContractID == "" {
		return errors.New("invalid swap contract config")
	}
	if c.MaxSplits < 1 {
		return errors.New("max splits must be at least 1")
	}
	return nil
}

// IsStablePool reports whether id is one of the configured stable pools.
func (c *SwapConfig) IsStablePool(id uint64) bool {
	for _, p := range c.StablePoolIDs {
		if p == id {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIDList(raw string) ([]uint64, error) {
	parts := splitList(raw)
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, errors.New("invalid pool id in list: " + p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
