package vmath_test

import (
	"ShareVault/internal/vmath"
	"math"
	"testing"
)

func TestMulDiv_Exact(t *testing.T) {
	if got := vmath.MulDiv(10, 6, 3, vmath.RoundDown); got != 20 {
		t.Errorf("got %d, want 20", got)
	}
	if got := vmath.MulDiv(10, 6, 3, vmath.RoundUp); got != 20 {
		t.Errorf("round up on exact division must not add: got %d", got)
	}
}

func TestMulDiv_Inexact(t *testing.T) {
	// 7*3/2 = 10.5
	if got := vmath.MulDiv(7, 3, 2, vmath.RoundDown); got != 10 {
		t.Errorf("round down: got %d, want 10", got)
	}
	if got := vmath.MulDiv(7, 3, 2, vmath.RoundUp); got != 11 {
		t.Errorf("round up: got %d, want 11", got)
	}
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	// a*b overflows int64 but the quotient fits.
	a := int64(math.MaxInt64 / 2)
	got := vmath.MulDiv(a, 4, 2, vmath.RoundDown)
	if got != a*2 {
		t.Errorf("got %d, want %d", got, a*2)
	}
}

func TestMulDiv_ZeroNumerator(t *testing.T) {
	if got := vmath.MulDiv(0, 123, 7, vmath.RoundUp); got != 0 {
		t.Errorf("0 * b / d must be 0, got %d", got)
	}
}

func TestMulDiv_ZeroDenominator_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on zero denominator")
		}
	}()
	vmath.MulDiv(1, 1, 0, vmath.RoundDown)
}

func TestMulDiv_RoundTripNeverGains(t *testing.T) {
	// floor(ceil-free round trip) must never exceed the input for any
	// reserve ratio: shares = floor(a*S/A), back = floor(shares*A/S) <= a.
	cases := []struct{ amount, totalShares, totalAmount int64 }{
		{1, 3, 10},
		{999, 7, 13},
		{1000, 1000, 1500},
		{123456789, 99999, 100001},
		{5, 10, 100},
	}
	for _, c := range cases {
		shares := vmath.MulDiv(c.amount, c.totalShares, c.totalAmount, vmath.RoundDown)
		back := vmath.MulDiv(shares, c.totalAmount, c.totalShares, vmath.RoundDown)
		if back > c.amount {
			t.Errorf("round trip gained value: amount=%d shares=%d back=%d (S=%d A=%d)",
				c.amount, shares, back, c.totalShares, c.totalAmount)
		}
	}
}
