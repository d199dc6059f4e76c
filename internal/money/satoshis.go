// Package money provides the fixed-precision signed satoshi amount used
// throughout the ledger, modeled on the teacher's big.Int-based amount
// helpers (pkg/helpers/amount.go) extended with the arithmetic and sign
// semantics the double-entry ledger needs.
package money

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
)

// Satoshis is an integer-valued signed amount. On-chain values always fit
// in 63 bits; internal ledger amounts may be negative to express a debit
// or a credit flip of an otherwise-positive quantity.
type Satoshis int64

// Zero is the additive identity.
const Zero Satoshis = 0

// NewSatoshis constructs a Satoshis value from a plain integer.
func NewSatoshis(v int64) Satoshis { return Satoshis(v) }

// Int64 returns the underlying integer value.
func (s Satoshis) Int64() int64 { return int64(s) }

// Add returns s + other.
func (s Satoshis) Add(other Satoshis) Satoshis { return s + other }

// Sub returns s - other.
func (s Satoshis) Sub(other Satoshis) Satoshis { return s - other }

// Mul returns s * factor.
func (s Satoshis) Mul(factor int64) Satoshis { return s * Satoshis(factor) }

// Div returns s / divisor, truncated toward zero.
func (s Satoshis) Div(divisor int64) Satoshis { return s / Satoshis(divisor) }

// Negated returns -s, flipping a debit into a credit or vice versa.
func (s Satoshis) Negated() Satoshis { return -s }

// IsZero reports whether s is exactly zero.
func (s Satoshis) IsZero() bool { return s == 0 }

// IsNegative reports whether s is strictly less than zero.
func (s Satoshis) IsNegative() bool { return s < 0 }

// Abs returns the absolute value of s.
func (s Satoshis) Abs() Satoshis {
	if s < 0 {
		return -s
	}
	return s
}

// ToBTC renders s as a plain BTC-denominated decimal string (at most 8
// decimal places, no trailing zeros, no unit label), the form
// FromBTCString parses back.
func (s Satoshis) ToBTC() string {
	return strconv.FormatFloat(btcutil.Amount(s).ToBTC(), 'f', -1, 64)
}

// FromBTCString parses a decimal BTC string into Satoshis.
func FromBTCString(btc string) (Satoshis, error) {
	amt, err := btcutil.NewAmount(parseFloatOrZero(btc))
	if err != nil {
		return 0, fmt.Errorf("parse btc amount %q: %w", btc, err)
	}
	return Satoshis(amt), nil
}

func parseFloatOrZero(s string) float64 {
	f, _, _ := big.ParseFloat(s, 10, 64, big.ToNearestEven)
	if f == nil {
		return 0
	}
	v, _ := f.Float64()
	return v
}

// Sum adds a slice of Satoshis amounts, returning Zero for an empty slice.
func Sum(amounts ...Satoshis) Satoshis {
	var total Satoshis
	for _, a := range amounts {
		total += a
	}
	return total
}
