package ledger

import (
	"errors"
	"fmt"

	"ShareVault/internal/auth"
	"ShareVault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEntryNotFound            = errors.New("deposit entry not found")
	ErrInsufficientEntryBalance = errors.New("insufficient entry balance")
	ErrUnauthorized             = auth.ErrUnauthorized
	errEntryOwner               = fmt.Errorf("entry owner mismatch: %w", ErrUnauthorized)
)

// Entry is one deposit event and the shares still redeemable against
// it. Entries are never deleted; a fully withdrawn entry stays behind
// as a zero-balance historical record.
type Entry struct {
	ID              int64
	User            common.Address
	Token           common.Address
	DepositedShares int64
}

// Client is an agent that records deposits into the vault as owned
// entries and services partial withdrawals against them. Its vault
// calls run with from = user, so each user must have approved the
// client in the registry first.
//
// The client keeps its own entry bookkeeping but defers every economic
// conversion to the vault.
type Client struct {
	addr     common.Address
	vault    *vault.Vault
	registry *auth.Registry
	entries  []Entry
}

func NewClient(addr common.Address, v *vault.Vault, registry *auth.Registry) *Client {
	return &Client{
		addr:     addr,
		vault:    v,
		registry: registry,
	}
}

func (c *Client) Address() common.Address { return c.addr }

// TotalDeposits returns the number of entries ever created; it is also
// the id the next deposit will receive.
func (c *Client) TotalDeposits() int64 {
	return int64(len(c.entries))
}

func (c *Client) Entry(id int64) (Entry, error) {
	if id < 0 || id >= int64(len(c.entries)) {
		return Entry{}, fmt.Errorf("entry %d: %w", id, ErrEntryNotFound)
	}
	return c.entries[id], nil
}

// Deposit records a deposit owned by caller and returns the new entry
// id. With fromVaultBalance false the amount is pulled from the
// caller's wallet through the vault; with true the caller's existing
// vault balance is moved by internal transfer. Entry bookkeeping uses
// the round-up conversion so a later withdrawal of the same amount
// redeems against the same share count.
func (c *Client) Deposit(caller, tok common.Address, amount int64, fromVaultBalance bool) (int64, error) {
	shares := c.vault.ToShare(tok, amount, true)

	if fromVaultBalance {
		if err := c.vault.Transfer(c.addr, tok, caller, c.addr, shares); err != nil {
			return 0, err
		}
	} else {
		if _, _, err := c.vault.Deposit(c.addr, tok, caller, c.addr, amount, 0); err != nil {
			return 0, err
		}
	}

	id := int64(len(c.entries))
	c.entries = append(c.entries, Entry{
		ID:              id,
		User:            caller,
		Token:           tok,
		DepositedShares: shares,
	})
	return id, nil
}

// Withdraw redeems amount against one of the caller's entries, paying
// out to the caller's wallet or vault balance. The entry is reduced by
// the redeemed shares and survives at zero.
func (c *Client) Withdraw(caller common.Address, entryID, amount int64, toVaultBalance bool) error {
	if entryID < 0 || entryID >= int64(len(c.entries)) {
		return fmt.Errorf("entry %d: %w", entryID, ErrEntryNotFound)
	}
	entry := &c.entries[entryID]
	if entry.User != caller {
		return fmt.Errorf("entry %d owned by %s, caller %s: %w",
			entryID, entry.User.Hex(), caller.Hex(), errEntryOwner)
	}

	shares := c.vault.ToShare(entry.Token, amount, true)
	if shares > entry.DepositedShares {
		return fmt.Errorf("entry %d holds %d shares, redeeming %d: %w",
			entryID, entry.DepositedShares, shares, ErrInsufficientEntryBalance)
	}

	if toVaultBalance {
		if err := c.vault.Transfer(c.addr, entry.Token, c.addr, caller, shares); err != nil {
			return err
		}
	} else {
		if _, _, err := c.vault.Withdraw(c.addr, entry.Token, c.addr, caller, amount, 0); err != nil {
			return err
		}
	}

	entry.DepositedShares -= shares
	return nil
}

// SetVaultApproval submits a signed master-contract approval for this
// client on the user's behalf. Exposed so it can run inside a batch
// ahead of the deposit that depends on it.
func (c *Client) SetVaultApproval(user common.Address, approved bool, nonce uint64, sig auth.Signature) error {
	return c.registry.SetApprovalSigned(user, c.addr, approved, nonce, sig)
}

// ClientSnapshot is a deep copy of the entry arena.
type ClientSnapshot struct {
	Entries []Entry
}

func (c *Client) Snapshot() *ClientSnapshot {
	snap := &ClientSnapshot{Entries: make([]Entry, len(c.entries))}
	copy(snap.Entries, c.entries)
	return snap
}

func (c *Client) Restore(snap *ClientSnapshot) {
	c.entries = make([]Entry, len(snap.Entries))
	copy(c.entries, snap.Entries)
}
