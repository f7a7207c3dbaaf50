// Package units converts between human decimal amounts and on-chain integers.
// Conversion happens only at the CLI and API edges; everything below works
// on *big.Int base units.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the precision of every token and price the exchange handles.
const Decimals = 18

// ToBaseUnits parses s and scales it by 10^decimals. Inputs with more
// fractional digits than decimals are rejected rather than truncated.
func ToBaseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", s, decimals)
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits renders v / 10^decimals without trailing zeros.
func FromBaseUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// ToWei is ToBaseUnits at 18 decimals.
func ToWei(s string) (*big.Int, error) {
	return ToBaseUnits(s, Decimals)
}

// FromWei is FromBaseUnits at 18 decimals.
func FromWei(v *big.Int) string {
	return FromBaseUnits(v, Decimals)
}

// MultiplyFactorFromPercent turns a price deviation in percent into the
// market order multiply factor (100 + pct) / 100, scaled by 10^18.
// 1 -> 1.01e18, -10 -> 0.9e18. The factor must stay positive.
func MultiplyFactorFromPercent(pct string) (*big.Int, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(pct))
	if err != nil {
		return nil, fmt.Errorf("invalid percent %q: %w", pct, err)
	}
	// (100+p)/100 * 1e18 == (100+p) * 1e16
	scaled := decimal.NewFromInt(100).Add(p).Shift(Decimals - 2)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("percent %q is too precise", pct)
	}
	if scaled.Sign() <= 0 {
		return nil, fmt.Errorf("percent %q gives a non-positive multiply factor", pct)
	}
	return scaled.BigInt(), nil
}

// MulPrice returns amount * price / 10^18, the counter-currency value of a
// secondary-token amount at a fixed-point price. Rounds down.
func MulPrice(amount, price *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, price)
	return out.Quo(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil))
}
