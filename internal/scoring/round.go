package scoring

import (
	"math"
	"strconv"
)

// Round2 rounds x to two decimals the way the platform tooling does:
// correctly rounded on the exact binary value with ties to even. NaN and
// infinities pass through unchanged.
func Round2(x float64) float64 {
	return RoundN(x, 2)
}

// RoundN is Round2 for an arbitrary number of decimals.
func RoundN(x float64, decimals int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	v, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', decimals, 64), 64)
	if err != nil {
		return x
	}
	return v
}
