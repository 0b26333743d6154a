package domain

import (
	"time"
)

// FunctionCall is one action of an outbound transaction.
type FunctionCall struct {
	MethodName string         `json:"methodName"`
	Args       map[string]any `json:"args"`
	Gas        string         `json:"gas"`
	Deposit    string         `json:"amount"`
}

// Transaction is an unsigned transaction addressed to ReceiverID.
type Transaction struct {
	ReceiverID    string         `json:"receiverId"`
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// PendingTransaction is a submitted transaction waiting for its outcome.
type PendingTransaction struct {
	Hash        string    `json:"hash"`
	Path        string    `json:"path"`
	SubmittedAt time.Time `json:"submittedAt"`
	Resolved    bool      `json:"resolved"`
}

// TransactionAction is an action of a finalized transaction. MethodName is
// empty for actions that are not function calls.
type TransactionAction struct {
	Kind       string
	MethodName string
}

// TransactionOutcome is the finalized view of a transaction.
type TransactionOutcome struct {
	Hash     string
	SignerID string
	Actions  []TransactionAction
	// ReceiptErrors are the execution errors reported by failed receipts.
	ReceiptErrors []string
	Failed        bool
}
