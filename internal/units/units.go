// Package units converts between ticket prices, whole stablecoin units and
// token base-unit amounts.
//
// Prices are quoted in hundredths of one unit. A token with d decimals has
// 10^d base units per unit, so one hundredth is 10^(d-2) base units.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// CentDecimals is the precision prices are quoted in.
const CentDecimals = 2

// pow10 returns 10^n as a new big.Int.
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// CentScale returns the number of base units in one hundredth of a unit.
func CentScale(decimals uint8) (*big.Int, error) {
	if decimals < CentDecimals {
		return nil, fmt.Errorf("units: token decimals %d below price precision %d", decimals, CentDecimals)
	}
	return pow10(decimals - CentDecimals), nil
}

// CentsToAmount converts hundredths of a unit to base units. For an 18-decimal
// token, 70 cents is 70 * 10^16.
func CentsToAmount(cents uint64, decimals uint8) (*big.Int, error) {
	scale, err := CentScale(decimals)
	if err != nil {
		return nil, err
	}
	return scale.Mul(scale, new(big.Int).SetUint64(cents)), nil
}

// UnitsToAmount converts whole units to base units (units * 10^decimals).
func UnitsToAmount(units uint64, decimals uint8) *big.Int {
	scale := pow10(decimals)
	return scale.Mul(scale, new(big.Int).SetUint64(units))
}

// FormatAmount renders a base-unit amount as a decimal string in whole units,
// e.g. 8500000000000000000 with 18 decimals is "8.5".
func FormatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// ParseAmount parses a decimal string in whole units ("1.5") into base units.
// It rejects negative values and values finer than the token precision.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", domain.ErrInvalidAmount, s)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", domain.ErrInvalidAmount, s, decimals)
	}
	return shifted.BigInt(), nil
}
