package crypto

import (
	"math/big"
)

// MetricFieldOrder defines the finite field order for metric accumulation.
var MetricFieldOrder *big.Int

func init() {
	// 2^127 - 1: leaves ample headroom above any realistic sum of 64-bit
	// metric deltas, so accumulators never reduce in practice.
	MetricFieldOrder, _ = big.NewInt(0).SetString("170141183460469231731687303715884105727", 10)
}

// FieldAddInplace performs modular addition in-place: l = (l + r) mod fieldOrder.
// The result is stored in l and also returned.
// Operands are assumed to already be reduced below fieldOrder.
func FieldAddInplace(l *big.Int, r *big.Int, fieldOrder *big.Int) *big.Int {
	l.Add(l, r)
	if l.Cmp(fieldOrder) >= 0 {
		l.Sub(l, fieldOrder)
	}

	if l.Sign() < 0 {
		l.Add(l, fieldOrder)
	}

	return l
}

// FieldSubInplace performs modular subtraction in-place: l = (l - r) mod fieldOrder.
// The result is stored in l and also returned.
func FieldSubInplace(l *big.Int, r *big.Int, fieldOrder *big.Int) *big.Int {
	l.Sub(l, r)
	if l.Cmp(fieldOrder) >= 0 {
		l.Sub(l, fieldOrder)
	}
	if l.Sign() < 0 {
		l.Add(l, fieldOrder)
	}
	return l
}
