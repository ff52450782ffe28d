package batch

import (
	"fmt"

	"ShareVault/internal/ledger"
	"ShareVault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpointer captures the mutable state of the system and returns a
// function that restores it. The executor takes exactly one checkpoint
// per strict batch, before the first operation runs.
type Checkpointer interface {
	Checkpoint() func()
}

// Executor runs batches against a vault and its ledger client. All
// operations execute as the batch's caller; approval checks apply per
// operation exactly as they would standalone.
type Executor struct {
	vault  *vault.Vault
	client *ledger.Client
	ckpt   Checkpointer
}

func NewExecutor(v *vault.Vault, client *ledger.Client, ckpt Checkpointer) *Executor {
	return &Executor{vault: v, client: client, ckpt: ckpt}
}

// Execute runs ops in order. With revertOnFail true the first failure
// rolls every prior operation back and the batch returns an OpError
// wrapping the cause; with false, failures are recorded in the result
// slot and execution continues. The returned results always have one
// slot per attempted operation.
func (e *Executor) Execute(caller common.Address, ops []Operation, revertOnFail bool) ([]Result, error) {
	results := make([]Result, 0, len(ops))

	var restore func()
	if revertOnFail {
		restore = e.ckpt.Checkpoint()
	}

	for i, op := range ops {
		res, err := e.apply(caller, i, op)
		results = append(results, res)
		if err != nil && revertOnFail {
			restore()
			return results[:i+1], &OpError{Index: i, Op: op.Type, Err: err}
		}
	}
	return results, nil
}

func (e *Executor) apply(caller common.Address, index int, op Operation) (Result, error) {
	res := Result{Index: index, Type: op.Type}

	var err error
	switch op.Type {
	case OpSetVaultApproval:
		err = e.client.SetVaultApproval(op.User, op.Approved, op.Nonce, op.Signature)

	case OpDeposit:
		res.AmountOut, res.SharesOut, err = e.vault.Deposit(caller, op.Token, op.From, op.To, op.Amount, op.Shares)

	case OpWithdraw:
		res.AmountOut, res.SharesOut, err = e.vault.Withdraw(caller, op.Token, op.From, op.To, op.Amount, op.Shares)

	case OpTransfer:
		err = e.vault.Transfer(caller, op.Token, op.From, op.To, op.Shares)

	case OpClientDeposit:
		res.EntryID, err = e.client.Deposit(caller, op.Token, op.Amount, op.FromVaultBalance)

	case OpClientWithdraw:
		err = e.client.Withdraw(caller, op.EntryID, op.Amount, op.ToVaultBalance)

	default:
		err = fmt.Errorf("unknown batch op type %q", op.Type)
	}

	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	res.OK = true
	return res, nil
}
