package builder

import (
	"errors"
	"math/big"

	"github.com/bytedance/sonic"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/domain"
)

const (
	SwapGas           = "180000000000000"
	StorageDepositGas = "30000000000000"
	WrapGas           = "50000000000000"
	UnwrapGas         = "100000000000000"

	OneYocto = "1"
	// StorageDepositAmount is 0.1 NEAR in yocto.
	StorageDepositAmount = "100000000000000000000000"
)

var (
	ErrNoLegs        = errors.New("route has no legs")
	ErrBrokenChain   = errors.New("route legs do not chain")
	ErrMissingAmount = errors.New("leg has no amount")
)

// SwapAction is one pool swap as understood by the exchange contract. The
// amount is omitted on chained hops, which consume the previous hop's output.
type SwapAction struct {
	PoolID       uint64 `json:"pool_id"`
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in,omitempty"`
	MinAmountOut string `json:"min_amount_out"`
}

// BuildParallelActions emits one independent action per leg, each guarded by
// its own slippage-reduced minimum.
func BuildParallelActions(legs []domain.RouteLeg, slippage float64) ([]SwapAction, error) {
	if len(legs) == 0 {
		return nil, ErrNoLegs
	}
	actions := make([]SwapAction, 0, len(legs))
	for _, leg := range legs {
		if leg.AmountIn == nil || leg.EstimateOut == nil {
			return nil, ErrMissingAmount
		}
		actions = append(actions, SwapAction{
			PoolID:       leg.PoolID,
			TokenIn:      leg.TokenIn,
			TokenOut:     leg.TokenOut,
			AmountIn:     leg.AmountIn.String(),
			MinAmountOut: common.PercentLess(slippage, leg.EstimateOut).String(),
		})
	}
	return actions, nil
}

// BuildChainedActions emits a multi-hop chain. Only the first hop carries an
// input amount and only the last hop carries a minimum output.
func BuildChainedActions(legs []domain.RouteLeg, slippage float64) ([]SwapAction, error) {
	if len(legs) == 0 {
		return nil, ErrNoLegs
	}
	if legs[0].AmountIn == nil || legs[len(legs)-1].EstimateOut == nil {
		return nil, ErrMissingAmount
	}
	actions := make([]SwapAction, 0, len(legs))
	for i, leg := range legs {
		if i > 0 && legs[i-1].TokenOut != leg.TokenIn {
			return nil, ErrBrokenChain
		}
		action := SwapAction{
			PoolID:       leg.PoolID,
			TokenIn:      leg.TokenIn,
			TokenOut:     leg.TokenOut,
			MinAmountOut: "0",
		}
		if i == 0 {
			action.AmountIn = leg.AmountIn.String()
		}
		if i == len(legs)-1 {
			action.MinAmountOut = common.PercentLess(slippage, leg.EstimateOut).String()
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// TotalMinOut sums the guarded minimum of every action that ends in tokenOut.
func TotalMinOut(actions []SwapAction, tokenOut string) *big.Int {
	total := new(big.Int)
	for _, a := range actions {
		if a.TokenOut != tokenOut {
			continue
		}
		if v, ok := new(big.Int).SetString(a.MinAmountOut, 10); ok {
			total.Add(total, v)
		}
	}
	return total
}

// FtTransferCall sends amount of tokenID to the exchange, which runs actions
// from the attached message.
func FtTransferCall(tokenID, exchangeID string, amount *big.Int, actions []SwapAction) (domain.Transaction, error) {
	msg, err := sonic.MarshalString(map[string]any{
		"force":   0,
		"actions": actions,
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{
		ReceiverID: tokenID,
		FunctionCalls: []domain.FunctionCall{{
			MethodName: "ft_transfer_call",
			Args: map[string]any{
				"receiver_id": exchangeID,
				"amount":      amount.String(),
				"msg":         msg,
			},
			Gas:     SwapGas,
			Deposit: OneYocto,
		}},
	}, nil
}

// ExchangeSwap runs actions against the balance already deposited in the exchange.
func ExchangeSwap(exchangeID string, actions []SwapAction) domain.Transaction {
	return domain.Transaction{
		ReceiverID: exchangeID,
		FunctionCalls: []domain.FunctionCall{{
			MethodName: "swap",
			Args:       map[string]any{"actions": actions},
			Gas:        SwapGas,
			Deposit:    OneYocto,
		}},
	}
}

// StorageDeposit registers accountID with tokenID without overpaying storage.
func StorageDeposit(tokenID, accountID string) domain.Transaction {
	return domain.Transaction{
		ReceiverID: tokenID,
		FunctionCalls: []domain.FunctionCall{{
			MethodName: "storage_deposit",
			Args: map[string]any{
				"registration_only": true,
				"account_id":        accountID,
			},
			Gas:     StorageDepositGas,
			Deposit: StorageDepositAmount,
		}},
	}
}

func NearDeposit(wrapID string, amount *big.Int) domain.Transaction {
	return domain.Transaction{
		ReceiverID: wrapID,
		FunctionCalls: []domain.FunctionCall{{
			MethodName: "near_deposit",
			Args:       map[string]any{},
			Gas:        WrapGas,
			Deposit:    amount.String(),
		}},
	}
}

func NearWithdraw(wrapID string, amount *big.Int) domain.Transaction {
	return domain.Transaction{
		ReceiverID: wrapID,
		FunctionCalls: []domain.FunctionCall{{
			MethodName: "near_withdraw",
			Args:       map[string]any{"amount": amount.String()},
			Gas:        UnwrapGas,
			Deposit:    OneYocto,
		}},
	}
}
