package event

import (
	"time"
)

// CommandType discriminator for command payloads
type CommandType int32

const (
	CommandTypeUnknown CommandType = iota
	CommandTypeDeposit
	CommandTypeWithdraw
	CommandTypeTransfer
	CommandTypeSetApproval
	CommandTypeClientDeposit
	CommandTypeClientWithdraw
	CommandTypeBatch
)

// Envelope wraps every applied command in the output log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Command type discriminator
	CommandType CommandType

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded result payload
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Command is the interface all command payloads must implement
type Command interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// CommandType returns the discriminator
	CommandType() CommandType

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (ct CommandType) String() string {
	switch ct {
	case CommandTypeDeposit:
		return "Deposit"
	case CommandTypeWithdraw:
		return "Withdraw"
	case CommandTypeTransfer:
		return "Transfer"
	case CommandTypeSetApproval:
		return "SetApproval"
	case CommandTypeClientDeposit:
		return "ClientDeposit"
	case CommandTypeClientWithdraw:
		return "ClientWithdraw"
	case CommandTypeBatch:
		return "Batch"
	default:
		return "Unknown"
	}
}
