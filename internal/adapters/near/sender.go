package near

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
)

type bridgeRequest struct {
	SignerID     string               `json:"signerId"`
	Transactions []domain.Transaction `json:"transactions"`
	CallbackURL  string               `json:"callbackUrl,omitempty"`
}

type bridgeResponse struct {
	TransactionHashes []string `json:"transactionHashes"`
	Error             string   `json:"error"`
}

// SendTransactions hands an unsigned batch to the wallet bridge and returns
// the hashes of the signed and broadcast transactions. It never retries: a
// resubmission could execute the swap twice.
func (c *Client) SendTransactions(ctx context.Context, txs []domain.Transaction, callbackURL string) ([]string, error) {
	const method = "bridge_send"
	if c.opts.WalletBridgeURL == "" {
		return nil, fmt.Errorf("%w: no wallet bridge configured", ErrBridge)
	}
	start := time.Now()
	hashes, err := c.sendTransactions(ctx, txs, callbackURL)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RPCRequests.WithLabelValues(method, status).Inc()
	metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	return hashes, err
}

func (c *Client) sendTransactions(ctx context.Context, txs []domain.Transaction, callbackURL string) ([]string, error) {
	body, err := sonic.Marshal(bridgeRequest{
		SignerID:     c.opts.AccountID,
		Transactions: txs,
		CallbackURL:  callbackURL,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.WalletBridgeURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridge, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridge, err)
	}

	var out bridgeResponse
	if len(raw) > 0 {
		if err := sonic.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedResp, err)
		}
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("%w: http %d: %s", ErrBridge, resp.StatusCode, msg)
	}
	if len(out.TransactionHashes) == 0 {
		return nil, fmt.Errorf("%w: no transaction hash returned", ErrBridge)
	}
	return out.TransactionHashes, nil
}
