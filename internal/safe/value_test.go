package safe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntToInt32(t *testing.T) {
	tests := []struct {
		in      int
		want    int32
		clamped bool
	}{
		{0, 0, false},
		{4242, 4242, false},
		{-17, -17, false},
		{math.MaxInt32, math.MaxInt32, false},
		{math.MaxInt32 + 1, math.MaxInt32, true},
		{math.MinInt32 - 1, math.MinInt32, true},
	}
	for _, tt := range tests {
		got, clamped := IntToInt32(tt.in)
		assert.Equal(t, tt.want, got, "input %d", tt.in)
		assert.Equal(t, tt.clamped, clamped, "input %d", tt.in)
	}
}
