// internal/event/batch.go
package event

import (
	"time"

	"ShareVault/internal/batch"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Batch executes an ordered operation list as a single command.
// RevertOnFail selects strict all-or-nothing semantics.
type Batch struct {
	CommandID    uuid.UUID
	Caller       common.Address
	Operations   []batch.Operation
	RevertOnFail bool
	Sequence     int64
	Timestamp    time.Time
}

func (b *Batch) IdempotencyKey() string {
	return b.CommandID.String()
}

func (b *Batch) CommandType() CommandType {
	return CommandTypeBatch
}

func (b *Batch) SourceSequence() int64 {
	return b.Sequence
}
