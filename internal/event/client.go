// internal/event/client.go
package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ClientDeposit records a deposit through the ledger client, creating
// a new owned entry.
type ClientDeposit struct {
	CommandID        uuid.UUID
	Caller           common.Address
	Token            common.Address
	Amount           int64
	FromVaultBalance bool
	Sequence         int64
	Timestamp        time.Time
}

func (c *ClientDeposit) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *ClientDeposit) CommandType() CommandType {
	return CommandTypeClientDeposit
}

func (c *ClientDeposit) SourceSequence() int64 {
	return c.Sequence
}

// ClientWithdraw redeems against an existing ledger client entry.
type ClientWithdraw struct {
	CommandID      uuid.UUID
	Caller         common.Address
	EntryID        int64
	Amount         int64
	ToVaultBalance bool
	Sequence       int64
	Timestamp      time.Time
}

func (c *ClientWithdraw) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *ClientWithdraw) CommandType() CommandType {
	return CommandTypeClientWithdraw
}

func (c *ClientWithdraw) SourceSequence() int64 {
	return c.Sequence
}
