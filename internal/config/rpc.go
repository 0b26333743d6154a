package config

import (
	"errors"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

type RPCConfig struct {
	// RPCUrl is the ledger JSON-RPC endpoint used for view calls and transaction status.
	RPCUrl string

	// WalletBridgeURL receives unsigned transaction batches and answers with their hashes.
	WalletBridgeURL string

	// AccountID is the account swaps are submitted for.
	AccountID string

	Timeout time.Duration

	// MaxRetries bounds the attempts of one idempotent RPC call.
	MaxRetries uint
}

func (r *RPCConfig) Key() string {
	return RPC_CONFIG_KEY
}

func (r *RPCConfig) Load() error {
	r.RPCUrl = common.GetEnvOrDefault("NEAR_RPC_URL", "https://rpc.mainnet.near.org")
	r.WalletBridgeURL = common.GetEnvOrDefault("WALLET_BRIDGE_URL", "")
	r.AccountID = common.GetEnvOrDefault("ACCOUNT_ID", "")
	r.Timeout = time.Duration(common.GetEnvOrDefaultInt("RPC_TIMEOUT_MS", 10000)) * time.Millisecond
	r.MaxRetries = uint(common.GetEnvOrDefaultInt("RPC_MAX_RETRIES", 3))
	return r.Validate()
}

func (r *RPCConfig) Validate() error {
	if r.RPCUrl == "" {
		return errors.New("invalid rpc config")
	}
	if r.Timeout <= 0 {
		return errors.New("invalid rpc timeout")
	}
	if r.MaxRetries == 0 {
		return errors.New("rpc max retries must be at least 1")
	}
	return nil
}
