// Package batch executes ordered sequences of vault and ledger client
// operations with all-or-nothing or best-effort semantics.
package batch

import (
	"errors"
	"fmt"

	"ShareVault/internal/auth"

	"github.com/ethereum/go-ethereum/common"
)

var ErrBatchOperationFailed = errors.New("batch operation failed")

// OpType names a batchable operation on the wire.
type OpType string

const (
	OpSetVaultApproval OpType = "set_vault_approval"
	OpDeposit          OpType = "deposit"
	OpWithdraw         OpType = "withdraw"
	OpTransfer         OpType = "transfer"
	OpClientDeposit    OpType = "client_deposit"
	OpClientWithdraw   OpType = "client_withdraw"
)

// Operation is one step in a batch. Fields beyond Type are read
// selectively per operation type; unused fields are ignored.
type Operation struct {
	Type OpType `json:"type"`

	Token common.Address `json:"token,omitempty"`
	From  common.Address `json:"from,omitempty"`
	To    common.Address `json:"to,omitempty"`

	Amount int64 `json:"amount,omitempty"`
	Shares int64 `json:"shares,omitempty"`

	// set_vault_approval
	User      common.Address `json:"user,omitempty"`
	Approved  bool           `json:"approved,omitempty"`
	Nonce     uint64         `json:"nonce,omitempty"`
	Signature auth.Signature `json:"signature,omitempty"`

	// client operations
	EntryID          int64 `json:"entry_id,omitempty"`
	FromVaultBalance bool  `json:"from_vault_balance,omitempty"`
	ToVaultBalance   bool  `json:"to_vault_balance,omitempty"`
}

// Result is the outcome of one operation. AmountOut and SharesOut are
// the vault-reported figures for deposit and withdraw; EntryID is set
// for client deposits.
type Result struct {
	Index     int    `json:"index"`
	Type      OpType `json:"type"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	AmountOut int64  `json:"amount_out,omitempty"`
	SharesOut int64  `json:"shares_out,omitempty"`
	EntryID   int64  `json:"entry_id,omitempty"`
}

// OpError identifies the failing step when a strict batch aborts.
type OpError struct {
	Index int
	Op    OpType
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("batch op %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Is(target error) bool {
	return target == ErrBatchOperationFailed
}
