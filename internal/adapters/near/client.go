// Package near talks to the ledger JSON-RPC endpoint and to the wallet bridge
// that signs outbound transactions.
package near

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v5"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/metrics"
)

const NEAR_CLIENT_SERVICE = "near-client"

var (
	ErrRPC            = errors.New("rpc error")
	ErrContractCall   = errors.New("contract call failed")
	ErrUnexpectedResp = errors.New("unexpected rpc response")
	ErrBridge         = errors.New("wallet bridge error")
)

type Options struct {
	RPCUrl          string
	WalletBridgeURL string
	AccountID       string
	RefContractID   string
	Timeout         time.Duration
	MaxRetries      uint
}

type Client struct {
	container.BaseDIInstance
	logger *common.ServiceLogger

	httpClient *http.Client
	opts       Options
	nextID     atomic.Uint64
}

func NewClient(opts Options) *Client {
	c := &Client{}
	c.init(opts)
	return c
}

func (c *Client) init(opts Options) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 1
	}
	c.opts = opts
	c.httpClient = &http.Client{Timeout: opts.Timeout}
	c.logger = common.NewServiceLogger(c)
}

func (c *Client) ID() string {
	return NEAR_CLIENT_SERVICE
}

func (c *Client) Configure(ctn container.IContainer) error {
	rpcCfg := ctn.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	swapCfg := ctn.GetConfig(config.SWAP_CONFIG_KEY).(*config.SwapConfig)
	c.init(Options{
		RPCUrl:          rpcCfg.RPCUrl,
		WalletBridgeURL: rpcCfg.WalletBridgeURL,
		AccountID:       rpcCfg.AccountID,
		RefContractID:   swapCfg.RefContractID,
		Timeout:         rpcCfg.Timeout,
		MaxRetries:      rpcCfg.MaxRetries,
	})
	return nil
}

func (c *Client) Start() error {
	c.logger.Info().Str("rpc", c.opts.RPCUrl).Str("exchange", c.opts.RefContractID).Msg("[near] client ready")
	return nil
}

func (c *Client) Stop() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) AccountID() string {
	return c.opts.AccountID
}

func (c *Client) ExchangeContractID() string {
	return c.opts.RefContractID
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Name    string `json:"name"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Cause   *struct {
		Name string `json:"name"`
	} `json:"cause"`
}

func (e *rpcError) String() string {
	if e.Cause != nil && e.Cause.Name != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Cause.Name)
	}
	return e.Message
}

// call runs one JSON-RPC request with bounded exponential retry. Transport
// failures and 5xx answers are retried; RPC level errors are not.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	start := time.Now()
	body, err := sonic.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      strconv.FormatUint(c.nextID.Add(1), 10),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	operation := func() (struct{}, error) {
		return struct{}{}, c.doCall(ctx, body, result)
	}
	notify := func(err error, d time.Duration) {
		c.logger.Warn().Err(err).Str("method", method).Dur("backoff", d).Msg("[near] retrying rpc call")
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(c.opts.MaxRetries),
		backoff.WithNotify(notify))

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RPCRequests.WithLabelValues(method, status).Inc()
	metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	return err
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

func (c *Client) doCall(ctx context.Context, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.RPCUrl, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: http %d", ErrRPC, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("%w: http %d", ErrRPC, resp.StatusCode))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrUnexpectedResp, err))
	}
	if envelope.Error != nil {
		return backoff.Permanent(fmt.Errorf("%w: %s", ErrRPC, envelope.Error.String()))
	}
	if len(envelope.Result) == 0 {
		return backoff.Permanent(ErrUnexpectedResp)
	}
	if err := sonic.Unmarshal(envelope.Result, result); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrUnexpectedResp, err))
	}
	return nil
}

type callFunctionResult struct {
	Result      []int  `json:"result"`
	Error       string `json:"error"`
	BlockHeight uint64 `json:"block_height"`
}

// ViewFunction calls a read-only contract method at final finality and decodes
// its JSON return value into out.
func (c *Client) ViewFunction(ctx context.Context, contractID, method string, args any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := sonic.Marshal(args)
	if err != nil {
		return err
	}

	var res callFunctionResult
	err = c.call(ctx, "query", map[string]any{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   contractID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argsJSON),
	}, &res)
	if err != nil {
		return fmt.Errorf("view %s.%s: %w", contractID, method, err)
	}
	if res.Error != "" {
		return fmt.Errorf("%w: %s.%s: %s", ErrContractCall, contractID, method, res.Error)
	}

	payload := make([]byte, len(res.Result))
	for i, b := range res.Result {
		payload[i] = byte(b)
	}
	if err := sonic.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrUnexpectedResp, contractID, method, err)
	}
	return nil
}
