package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTaxInclusiveMinor(t *testing.T) {
	cases := []struct {
		subtotal string
		want     int64
	}{
		{"0", 0},
		{"10", 1190},
		{"19.99", 2379},
		{"0.05", 6},
		{"33.33", 3966},
		// 11959.5 rounds half up
		{"100.50", 11960},
	}
	for _, tc := range cases {
		t.Run(tc.subtotal, func(t *testing.T) {
			got := TaxInclusiveMinor(decimal.RequireFromString(tc.subtotal))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTaxInclusiveTotal(t *testing.T) {
	total := TaxInclusiveTotal(decimal.RequireFromString("19.99"))
	assert.True(t, total.Equal(decimal.RequireFromString("23.79")), total.String())
	assert.Equal(t, int64(2379), ToMinor(total))
}
