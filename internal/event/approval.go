// internal/event/approval.go
package event

import (
	"time"

	"ShareVault/internal/auth"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// SetApproval grants or revokes an agent's right to act on the user's
// vault balances. With a zero Signature it is a direct call and Caller
// must equal User; otherwise the signature is recovered and checked
// against User together with the expected nonce.
type SetApproval struct {
	CommandID uuid.UUID
	Caller    common.Address
	User      common.Address
	Agent     common.Address
	Approved  bool
	Nonce     uint64
	Signature auth.Signature
	Sequence  int64
	Timestamp time.Time
}

func (s *SetApproval) IdempotencyKey() string {
	return s.CommandID.String()
}

func (s *SetApproval) CommandType() CommandType {
	return CommandTypeSetApproval
}

func (s *SetApproval) SourceSequence() int64 {
	return s.Sequence
}

// Signed reports whether the command carries a recoverable signature.
func (s *SetApproval) Signed() bool {
	return s.Signature.V != 0
}
