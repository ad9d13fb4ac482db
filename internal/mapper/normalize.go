package mapper

import (
	"fmt"
	"math/big"
)

// solDecimals is the fixed decimal count of the native token.
const solDecimals uint8 = 9

// NormalizeAmount converts a raw integer amount into its decimal-adjusted
// value (raw / 10^decimals). The raw string is always kept alongside the
// result; normalization never replaces it.
func NormalizeAmount(raw string, decimals uint8) (float64, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0, fmt.Errorf("invalid raw amount: %q", raw)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo := new(big.Float).Quo(new(big.Float).SetInt(value), new(big.Float).SetInt(scale))
	normalized, _ := quo.Float64()
	return normalized, nil
}
