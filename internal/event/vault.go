// internal/event/vault.go
package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Deposit moves tokens from a wallet into the vault, crediting shares
// to To. Exactly one of Amount and Shares should be nonzero; the vault
// rejects ambiguous input.
type Deposit struct {
	CommandID uuid.UUID
	Caller    common.Address
	Token     common.Address
	From      common.Address
	To        common.Address
	Amount    int64 // Fixed-point token units
	Shares    int64
	Sequence  int64
	Timestamp time.Time
}

func (d *Deposit) IdempotencyKey() string {
	return d.CommandID.String()
}

func (d *Deposit) CommandType() CommandType {
	return CommandTypeDeposit
}

func (d *Deposit) SourceSequence() int64 {
	return d.Sequence
}

// Withdraw burns shares held by From and pays tokens out to To's
// wallet.
type Withdraw struct {
	CommandID uuid.UUID
	Caller    common.Address
	Token     common.Address
	From      common.Address
	To        common.Address
	Amount    int64
	Shares    int64
	Sequence  int64
	Timestamp time.Time
}

func (w *Withdraw) IdempotencyKey() string {
	return w.CommandID.String()
}

func (w *Withdraw) CommandType() CommandType {
	return CommandTypeWithdraw
}

func (w *Withdraw) SourceSequence() int64 {
	return w.Sequence
}

// Transfer moves shares between vault balances without touching token
// custody.
type Transfer struct {
	CommandID uuid.UUID
	Caller    common.Address
	Token     common.Address
	From      common.Address
	To        common.Address
	Shares    int64
	Sequence  int64
	Timestamp time.Time
}

func (t *Transfer) IdempotencyKey() string {
	return t.CommandID.String()
}

func (t *Transfer) CommandType() CommandType {
	return CommandTypeTransfer
}

func (t *Transfer) SourceSequence() int64 {
	return t.Sequence
}
