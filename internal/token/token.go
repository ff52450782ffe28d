package token

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownToken          = errors.New("unknown token")
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

type allowanceKey struct {
	Owner   common.Address
	Spender common.Address
}

// Ledger is the balance and allowance book of a single token. It models
// the external token collaborator with standard transfer/approve
// semantics; the vault only ever touches it through Transfer,
// TransferFrom and BalanceOf.
type Ledger struct {
	symbol      string
	totalSupply int64
	balances    map[common.Address]int64
	allowances  map[allowanceKey]int64
}

func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:     symbol,
		balances:   make(map[common.Address]int64),
		allowances: make(map[allowanceKey]int64),
	}
}

func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) TotalSupply() int64 { return l.totalSupply }

func (l *Ledger) BalanceOf(owner common.Address) int64 {
	return l.balances[owner]
}

func (l *Ledger) Allowance(owner, spender common.Address) int64 {
	return l.allowances[allowanceKey{owner, spender}]
}

// Mint credits freshly issued tokens to an address. Only test fixtures
// and deployment bootstrap call this.
func (l *Ledger) Mint(to common.Address, amount int64) {
	if amount <= 0 {
		return
	}
	l.balances[to] += amount
	l.totalSupply += amount
}

// Approve sets the allowance of spender over owner's tokens. Overwrites,
// does not accumulate.
func (l *Ledger) Approve(owner, spender common.Address, amount int64) {
	l.allowances[allowanceKey{owner, spender}] = amount
}

// Transfer moves tokens the caller already owns.
func (l *Ledger) Transfer(from, to common.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%s: negative transfer amount %d", l.symbol, amount)
	}
	if l.balances[from] < amount {
		return fmt.Errorf("%s: transfer of %d from %s: %w",
			l.symbol, amount, from.Hex(), ErrInsufficientBalance)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// TransferFrom moves tokens on behalf of owner, consuming spender's
// allowance. The allowance check runs before the balance check so an
// unauthorized spender learns nothing about the owner's funds.
func (l *Ledger) TransferFrom(spender, owner, to common.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%s: negative transfer amount %d", l.symbol, amount)
	}
	key := allowanceKey{owner, spender}
	if l.allowances[key] < amount {
		return fmt.Errorf("%s: spender %s moving %d for %s: %w",
			l.symbol, spender.Hex(), amount, owner.Hex(), ErrInsufficientAllowance)
	}
	if l.balances[owner] < amount {
		return fmt.Errorf("%s: transfer of %d from %s: %w",
			l.symbol, amount, owner.Hex(), ErrInsufficientBalance)
	}
	l.allowances[key] -= amount
	l.balances[owner] -= amount
	l.balances[to] += amount
	return nil
}

// Set is the registry of token ledgers known to the system, keyed by
// token address.
type Set struct {
	ledgers map[common.Address]*Ledger
}

func NewSet() *Set {
	return &Set{ledgers: make(map[common.Address]*Ledger)}
}

// Register adds a token ledger under the given address.
func (s *Set) Register(addr common.Address, l *Ledger) {
	s.ledgers[addr] = l
}

func (s *Set) Get(addr common.Address) (*Ledger, error) {
	l, ok := s.ledgers[addr]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", addr.Hex(), ErrUnknownToken)
	}
	return l, nil
}

// Snapshot returns a deep copy of every ledger. Used for batch rollback.
func (s *Set) Snapshot() map[common.Address]*Ledger {
	snap := make(map[common.Address]*Ledger, len(s.ledgers))
	for addr, l := range s.ledgers {
		cp := &Ledger{
			symbol:      l.symbol,
			totalSupply: l.totalSupply,
			balances:    make(map[common.Address]int64, len(l.balances)),
			allowances:  make(map[allowanceKey]int64, len(l.allowances)),
		}
		for k, v := range l.balances {
			cp.balances[k] = v
		}
		for k, v := range l.allowances {
			cp.allowances[k] = v
		}
		snap[addr] = cp
	}
	return snap
}

// Restore replaces all ledgers with deep copies from a snapshot taken
// earlier. The snapshot stays valid for further restores.
func (s *Set) Restore(snap map[common.Address]*Ledger) {
	s.ledgers = make(map[common.Address]*Ledger, len(snap))
	for addr, l := range snap {
		cp := &Ledger{
			symbol:      l.symbol,
			totalSupply: l.totalSupply,
			balances:    make(map[common.Address]int64, len(l.balances)),
			allowances:  make(map[allowanceKey]int64, len(l.allowances)),
		}
		for k, v := range l.balances {
			cp.balances[k] = v
		}
		for k, v := range l.allowances {
			cp.allowances[k] = v
		}
		s.ledgers[addr] = cp
	}
}
