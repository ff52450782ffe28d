package vault

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"ShareVault/internal/auth"
	"ShareVault/internal/token"
	"ShareVault/internal/vmath"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrZeroAmount          = errors.New("zero amount")
	ErrAmbiguousInput      = errors.New("exactly one of amount and shares must be set")
	ErrNegativeAmount      = errors.New("negative amount")
	ErrInsufficientBalance = errors.New("insufficient share balance")
)

// Reserve tracks, per token, the absolute units held and the share
// claims issued against them. Shares == 0 iff Amount == 0; the exchange
// rate is Amount/Shares, 1:1 for the first deposit.
type Reserve struct {
	Amount int64
	Shares int64
}

type balanceKey struct {
	Token common.Address
	User  common.Address
}

// Vault pools token reserves and tracks user claims as proportional
// shares. Tokens move only through Deposit and Withdraw; Transfer moves
// shares without moving tokens. Every conversion rounds against the
// side that would otherwise drain the reserve by accumulated dust.
//
// Not safe for concurrent use; all mutation is serialized by the core.
type Vault struct {
	addr     common.Address
	tokens   *token.Set
	registry *auth.Registry
	reserves map[common.Address]Reserve
	balances map[balanceKey]int64
}

func New(addr common.Address, tokens *token.Set, registry *auth.Registry) *Vault {
	return &Vault{
		addr:     addr,
		tokens:   tokens,
		registry: registry,
		reserves: make(map[common.Address]Reserve),
		balances: make(map[balanceKey]int64),
	}
}

// Address returns the vault's own address, the custody account tokens
// are pulled into.
func (v *Vault) Address() common.Address { return v.addr }

func (v *Vault) Reserve(tok common.Address) Reserve {
	return v.reserves[tok]
}

func (v *Vault) BalanceOf(tok, user common.Address) int64 {
	return v.balances[balanceKey{tok, user}]
}

// EachReserve calls fn for every token with a reserve. Iteration order
// is unspecified.
func (v *Vault) EachReserve(fn func(tok common.Address, r Reserve)) {
	for tok, r := range v.reserves {
		fn(tok, r)
	}
}

// ToShare converts an absolute token amount into shares at the current
// exchange rate. Bootstrap is 1:1 while no shares exist.
func (v *Vault) ToShare(tok common.Address, amount int64, roundUp bool) int64 {
	r := v.reserves[tok]
	if r.Shares == 0 {
		return amount
	}
	mode := vmath.RoundDown
	if roundUp {
		mode = vmath.RoundUp
	}
	return vmath.MulDiv(amount, r.Shares, r.Amount, mode)
}

// ToAmount converts shares back into an absolute token amount.
func (v *Vault) ToAmount(tok common.Address, shares int64, roundUp bool) int64 {
	r := v.reserves[tok]
	if r.Shares == 0 {
		return shares
	}
	mode := vmath.RoundDown
	if roundUp {
		mode = vmath.RoundUp
	}
	return vmath.MulDiv(shares, r.Amount, r.Shares, mode)
}

// allowed gates every mutation with from != caller behind the registry.
func (v *Vault) allowed(caller, from common.Address) error {
	if caller == from {
		return nil
	}
	if v.registry.IsApproved(from, caller) {
		return nil
	}
	return fmt.Errorf("caller %s acting for %s: %w", caller.Hex(), from.Hex(), auth.ErrUnauthorized)
}

// resolve derives the missing half of an (amount, shares) pair. Exactly
// one input must be nonzero. Deposits mint rounded down and pull
// rounded up; withdrawals burn rounded up and pay rounded down.
func (v *Vault) resolve(tok common.Address, amount, shares int64, deposit bool) (int64, int64, error) {
	if amount < 0 || shares < 0 {
		return 0, 0, fmt.Errorf("amount=%d shares=%d: %w", amount, shares, ErrNegativeAmount)
	}
	if amount > 0 && shares > 0 {
		return 0, 0, fmt.Errorf("amount=%d shares=%d: %w", amount, shares, ErrAmbiguousInput)
	}
	if shares > 0 {
		amount = v.ToAmount(tok, shares, deposit)
	} else {
		shares = v.ToShare(tok, amount, !deposit)
	}
	if amount == 0 || shares == 0 {
		return 0, 0, fmt.Errorf("resolved to amount=%d shares=%d: %w", amount, shares, ErrZeroAmount)
	}
	return amount, shares, nil
}

// Deposit pulls amount of tok from from's wallet into the reserve and
// credits to with the minted shares. With amount given, minted shares
// round down; with shares given, the pulled amount rounds up. Either
// way the reserve never backs a share with less than its value.
func (v *Vault) Deposit(caller, tok, from, to common.Address, amount, shares int64) (int64, int64, error) {
	if err := v.allowed(caller, from); err != nil {
		return 0, 0, err
	}
	ledger, err := v.tokens.Get(tok)
	if err != nil {
		return 0, 0, err
	}
	amount, shares, err = v.resolve(tok, amount, shares, true)
	if err != nil {
		return 0, 0, err
	}

	if err := ledger.TransferFrom(v.addr, from, v.addr, amount); err != nil {
		return 0, 0, err
	}

	r := v.reserves[tok]
	r.Amount += amount
	r.Shares += shares
	v.reserves[tok] = r
	v.balances[balanceKey{tok, to}] += shares

	return amount, shares, nil
}

// Withdraw burns shares from from's balance and pays amount of tok out
// of the reserve to to's wallet. With amount given, burned shares round
// up; with shares given, the payout rounds down.
func (v *Vault) Withdraw(caller, tok, from, to common.Address, amount, shares int64) (int64, int64, error) {
	if err := v.allowed(caller, from); err != nil {
		return 0, 0, err
	}
	ledger, err := v.tokens.Get(tok)
	if err != nil {
		return 0, 0, err
	}
	amount, shares, err = v.resolve(tok, amount, shares, false)
	if err != nil {
		return 0, 0, err
	}

	key := balanceKey{tok, from}
	if v.balances[key] < shares {
		return 0, 0, fmt.Errorf("user %s has %d shares, needs %d: %w",
			from.Hex(), v.balances[key], shares, ErrInsufficientBalance)
	}

	r := v.reserves[tok]
	if shares == r.Shares {
		// Last claim leaving: sweep any rounding residue so the reserve
		// empties amount and shares together.
		amount = r.Amount
	}
	r.Amount -= amount
	r.Shares -= shares
	v.reserves[tok] = r
	v.balances[key] -= shares

	if err := ledger.Transfer(v.addr, to, amount); err != nil {
		// The reserve always holds at least Amount; a failure here means
		// custody accounting is corrupt.
		panic(fmt.Sprintf("FATAL: vault custody underflow for %s: %v", tok.Hex(), err))
	}

	return amount, shares, nil
}

// Transfer moves shares between internal balances with no token
// movement. Used when a deposit or withdrawal targets the vault balance
// instead of the wallet.
func (v *Vault) Transfer(caller, tok, from, to common.Address, shares int64) error {
	if err := v.allowed(caller, from); err != nil {
		return err
	}
	if shares < 0 {
		return fmt.Errorf("shares=%d: %w", shares, ErrNegativeAmount)
	}
	if shares == 0 {
		return fmt.Errorf("share transfer: %w", ErrZeroAmount)
	}
	fromKey := balanceKey{tok, from}
	if v.balances[fromKey] < shares {
		return fmt.Errorf("user %s has %d shares, needs %d: %w",
			from.Hex(), v.balances[fromKey], shares, ErrInsufficientBalance)
	}
	v.balances[fromKey] -= shares
	v.balances[balanceKey{tok, to}] += shares
	return nil
}

// CheckInvariants verifies the share accounting after a mutation:
// issued shares equal the sum of user balances, nothing is negative,
// and shares and amount hit zero together.
func (v *Vault) CheckInvariants() error {
	sums := make(map[common.Address]int64, len(v.reserves))
	for key, bal := range v.balances {
		if bal < 0 {
			return fmt.Errorf("negative share balance %d for %s/%s", bal, key.Token.Hex(), key.User.Hex())
		}
		sums[key.Token] += bal
	}
	for tok, r := range v.reserves {
		if r.Amount < 0 || r.Shares < 0 {
			return fmt.Errorf("negative reserve for %s: amount=%d shares=%d", tok.Hex(), r.Amount, r.Shares)
		}
		if (r.Shares == 0) != (r.Amount == 0) {
			return fmt.Errorf("reserve for %s desynced: amount=%d shares=%d", tok.Hex(), r.Amount, r.Shares)
		}
		if sums[tok] != r.Shares {
			return fmt.Errorf("share sum %d != issued shares %d for %s", sums[tok], r.Shares, tok.Hex())
		}
		if l, err := v.tokens.Get(tok); err == nil {
			if held := l.BalanceOf(v.addr); held < r.Amount {
				return fmt.Errorf("custody shortfall for %s: held %d, reserve %d", tok.Hex(), held, r.Amount)
			}
		}
	}
	for tok, sum := range sums {
		if _, ok := v.reserves[tok]; !ok && sum != 0 {
			return fmt.Errorf("balances exist for %s but no reserve", tok.Hex())
		}
	}
	return nil
}

// VaultSnapshot is a deep copy of reserves and balances.
type VaultSnapshot struct {
	Reserves map[common.Address]Reserve
	Balances map[balanceKey]int64
}

func (v *Vault) Snapshot() *VaultSnapshot {
	snap := &VaultSnapshot{
		Reserves: make(map[common.Address]Reserve, len(v.reserves)),
		Balances: make(map[balanceKey]int64, len(v.balances)),
	}
	for k, r := range v.reserves {
		snap.Reserves[k] = r
	}
	for k, b := range v.balances {
		snap.Balances[k] = b
	}
	return snap
}

func (v *Vault) Restore(snap *VaultSnapshot) {
	v.reserves = make(map[common.Address]Reserve, len(snap.Reserves))
	v.balances = make(map[balanceKey]int64, len(snap.Balances))
	for k, r := range snap.Reserves {
		v.reserves[k] = r
	}
	for k, b := range snap.Balances {
		v.balances[k] = b
	}
}

// StateDigest returns canonical bytes covering every reserve and share
// balance, ordered by address so equal states always digest equal.
func (v *Vault) StateDigest() []byte {
	toks := make([]common.Address, 0, len(v.reserves))
	for tok := range v.reserves {
		toks = append(toks, tok)
	}
	sort.Slice(toks, func(i, j int) bool {
		return bytes.Compare(toks[i][:], toks[j][:]) < 0
	})

	keys := make([]balanceKey, 0, len(v.balances))
	for key := range v.balances {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].Token[:], keys[j].Token[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(keys[i].User[:], keys[j].User[:]) < 0
	})

	digest := make([]byte, 0, len(toks)*36+len(keys)*48)
	for _, tok := range toks {
		r := v.reserves[tok]
		digest = append(digest, tok[:]...)
		digest = appendInt64LE(digest, r.Amount)
		digest = appendInt64LE(digest, r.Shares)
	}
	for _, key := range keys {
		digest = append(digest, key.Token[:]...)
		digest = append(digest, key.User[:]...)
		digest = appendInt64LE(digest, v.balances[key])
	}
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
