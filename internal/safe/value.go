// Package safe provides bounds-checked conversions and file reads.
package safe

import (
	"math"
)

// IntToInt32 converts val to int32, clamping to the int32 range.
// The boolean reports whether clamping occurred.
func IntToInt32(val int) (int32, bool) {
	switch {
	case val > math.MaxInt32:
		return math.MaxInt32, true
	case val < math.MinInt32:
		return math.MinInt32, true
	}
	return int32(val), false
}
