package near

import (
	"context"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"

	"github.com/hxuan190/swap-engine/internal/domain"
)

type txStatusResult struct {
	Status      map[string]any `json:"status"`
	Transaction struct {
		Hash       string `json:"hash"`
		SignerID   string `json:"signer_id"`
		ReceiverID string `json:"receiver_id"`
		Actions    []any  `json:"actions"`
	} `json:"transaction"`
	ReceiptsOutcome []struct {
		ID      string `json:"id"`
		Outcome struct {
			Status map[string]any `json:"status"`
		} `json:"outcome"`
	} `json:"receipts_outcome"`
}

// TxStatus fetches a transaction and its receipt outcomes.
func (c *Client) TxStatus(ctx context.Context, hash, senderID string) (*domain.TransactionOutcome, error) {
	if senderID == "" {
		senderID = c.opts.AccountID
	}
	var res txStatusResult
	if err := c.call(ctx, "tx", []string{hash, senderID}, &res); err != nil {
		return nil, fmt.Errorf("tx %s: %w", hash, err)
	}
	return res.toDomain(hash), nil
}

func (r *txStatusResult) toDomain(hash string) *domain.TransactionOutcome {
	out := &domain.TransactionOutcome{
		Hash:     hash,
		SignerID: r.Transaction.SignerID,
		Actions:  make([]domain.TransactionAction, 0, len(r.Transaction.Actions)),
	}
	if r.Transaction.Hash != "" {
		out.Hash = r.Transaction.Hash
	}
	for _, a := range r.Transaction.Actions {
		out.Actions = append(out.Actions, parseAction(a))
	}
	if _, failed := r.Status["Failure"]; failed {
		out.Failed = true
	}
	for _, receipt := range r.ReceiptsOutcome {
		if msg, ok := failureMessage(receipt.Outcome.Status); ok {
			out.ReceiptErrors = append(out.ReceiptErrors, msg)
		}
	}
	return out
}

// parseAction accepts both the bare string form ("CreateAccount") and the
// object form ({"FunctionCall": {...}}).
func parseAction(raw any) domain.TransactionAction {
	switch v := raw.(type) {
	case string:
		return domain.TransactionAction{Kind: v}
	case map[string]any:
		kinds := make([]string, 0, len(v))
		for k := range v {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		if len(kinds) == 0 {
			return domain.TransactionAction{}
		}
		action := domain.TransactionAction{Kind: kinds[0]}
		if body, ok := v[kinds[0]].(map[string]any); ok {
			if name, ok := body["method_name"].(string); ok {
				action.MethodName = name
			}
		}
		return action
	default:
		return domain.TransactionAction{}
	}
}

// failureMessage extracts the execution error of a failed receipt status.
func failureMessage(status map[string]any) (string, bool) {
	failure, ok := status["Failure"]
	if !ok {
		return "", false
	}
	if msg, ok := dig(failure, "ActionError", "kind", "FunctionCallError", "ExecutionError").(string); ok {
		return msg, true
	}
	raw, err := sonic.MarshalString(failure)
	if err != nil {
		return "receipt failed", true
	}
	return raw, true
}

func dig(v any, path ...string) any {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}
