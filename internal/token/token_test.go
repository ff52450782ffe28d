package token_test

import (
	"errors"
	"testing"

	"ShareVault/internal/token"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	usdt  = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

func TestLedger_MintAndBalance(t *testing.T) {
	l := token.NewLedger("USDT")
	l.Mint(alice, 1000)

	if got := l.BalanceOf(alice); got != 1000 {
		t.Errorf("balance = %d, want 1000", got)
	}
	if got := l.TotalSupply(); got != 1000 {
		t.Errorf("total supply = %d, want 1000", got)
	}
}

func TestLedger_Transfer(t *testing.T) {
	l := token.NewLedger("USDT")
	l.Mint(alice, 1000)

	if err := l.Transfer(alice, bob, 400); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf(alice); got != 600 {
		t.Errorf("alice = %d, want 600", got)
	}
	if got := l.BalanceOf(bob); got != 400 {
		t.Errorf("bob = %d, want 400", got)
	}
}

func TestLedger_TransferInsufficient(t *testing.T) {
	l := token.NewLedger("USDT")
	l.Mint(alice, 100)

	err := l.Transfer(alice, bob, 101)
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := l.BalanceOf(alice); got != 100 {
		t.Errorf("failed transfer moved funds: alice = %d", got)
	}
}

func TestLedger_TransferFrom(t *testing.T) {
	l := token.NewLedger("USDT")
	l.Mint(alice, 1000)
	l.Approve(alice, bob, 500)

	if err := l.TransferFrom(bob, alice, carol, 300); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := l.BalanceOf(carol); got != 300 {
		t.Errorf("carol = %d, want 300", got)
	}
	if got := l.Allowance(alice, bob); got != 200 {
		t.Errorf("remaining allowance = %d, want 200", got)
	}
}

func TestLedger_TransferFromWithoutAllowance(t *testing.T) {
	l := token.NewLedger("USDT")
	l.Mint(alice, 1000)

	err := l.TransferFrom(bob, alice, carol, 1)
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("err = %v, want ErrInsufficientAllowance", err)
	}
}

func TestLedger_TransferFromAllowanceBeforeBalance(t *testing.T) {
	l := token.NewLedger("USDT")
	l.Mint(alice, 100)
	l.Approve(alice, bob, 50)

	// Both allowance and balance are short; allowance is reported.
	err := l.TransferFrom(bob, alice, carol, 200)
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("err = %v, want ErrInsufficientAllowance", err)
	}
}

func TestSet_UnknownToken(t *testing.T) {
	s := token.NewSet()
	_, err := s.Get(usdt)
	if !errors.Is(err, token.ErrUnknownToken) {
		t.Fatalf("err = %v, want ErrUnknownToken", err)
	}
}

func TestSet_SnapshotRestore(t *testing.T) {
	s := token.NewSet()
	l := token.NewLedger("USDT")
	l.Mint(alice, 1000)
	s.Register(usdt, l)

	snap := s.Snapshot()

	l.Transfer(alice, bob, 999)
	s.Restore(snap)

	restored, err := s.Get(usdt)
	if err != nil {
		t.Fatalf("get after restore: %v", err)
	}
	if got := restored.BalanceOf(alice); got != 1000 {
		t.Errorf("alice after restore = %d, want 1000", got)
	}
	if got := restored.BalanceOf(bob); got != 0 {
		t.Errorf("bob after restore = %d, want 0", got)
	}
}

func TestSet_SnapshotIsIsolated(t *testing.T) {
	s := token.NewSet()
	l := token.NewLedger("USDT")
	l.Mint(alice, 1000)
	s.Register(usdt, l)

	snap := s.Snapshot()
	s.Restore(snap)

	// Mutations after the first restore must not leak into a second
	// restore from the same snapshot.
	cur, _ := s.Get(usdt)
	cur.Transfer(alice, bob, 500)
	s.Restore(snap)

	cur, _ = s.Get(usdt)
	if got := cur.BalanceOf(alice); got != 1000 {
		t.Errorf("alice after second restore = %d, want 1000", got)
	}
}
