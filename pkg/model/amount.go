package model

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Amount is a non-negative arbitrary-precision integer that always
// serializes as a decimal string, never as a JSON number. NEAR token
// amounts routinely exceed 64 bits, so floating point never enters
// the picture.
type Amount struct {
	v *big.Int
}

// ZeroAmount returns the additive identity.
func ZeroAmount() Amount {
	return Amount{v: big.NewInt(0)}
}

// NewAmount wraps a *big.Int. A nil value is treated as zero.
func NewAmount(v *big.Int) Amount {
	if v == nil {
		return ZeroAmount()
	}
	return Amount{v: new(big.Int).Set(v)}
}

// ParseAmount parses a decimal string into an Amount. Empty string is zero.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return ZeroAmount(), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("model: invalid decimal amount %q", s)
	}
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("model: negative amount %q", s)
	}
	return Amount{v: v}, nil
}

// MustParseAmount panics on invalid input; reserved for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Big returns the underlying big.Int, never nil.
func (a Amount) Big() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

// String returns the decimal representation.
func (a Amount) String() string {
	return a.Big().String()
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.Big().Sign() == 0
}

// Cmp compares two amounts the way big.Int.Cmp does.
func (a Amount) Cmp(b Amount) int {
	return a.Big().Cmp(b.Big())
}

// Sub returns a-b as a signed *big.Int (diffs may be negative; Amount itself never is).
func (a Amount) Sub(b Amount) *big.Int {
	return new(big.Int).Sub(a.Big(), b.Big())
}

// Add returns the non-negative sum of a and b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.Big(), b.Big())}
}

// SignedDiffString formats a signed diff (as produced by Sub) with an
// explicit leading sign, matching the "+r" / "-5000000000000000" style
// the ledger's compact diffs use.
func SignedDiffString(diff *big.Int) string {
	if diff.Sign() >= 0 {
		return "+" + diff.String()
	}
	return diff.String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Big().String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
