package vmath

import (
	"math/big"
	"sync"
)

type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
)

// int256Pool holds big.Ints for intermediate products so the hot
// conversion path does not allocate.
var int256Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt256() *big.Int {
	return int256Pool.Get().(*big.Int)
}

func putInt256(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int256Pool.Put(v)
}

// MulDiv computes a * b / denominator using a wide intermediate so the
// product cannot overflow int64. Rounding direction is explicit: every
// caller must decide whether the residue favors the reserve or the user.
// Panics on a zero denominator — callers guard the bootstrap case.
func MulDiv(a, b, denominator int64, mode RoundingMode) int64 {
	if denominator == 0 {
		panic("vmath: division by zero")
	}

	product := getInt256()
	product.Mul(big.NewInt(a), big.NewInt(b))

	quotient := getInt256()
	remainder := getInt256()
	quotient.QuoRem(product, big.NewInt(denominator), remainder)

	result := quotient.Int64()
	if mode == RoundUp && remainder.Sign() != 0 {
		result++
	}

	putInt256(product)
	putInt256(quotient)
	putInt256(remainder)

	return result
}
