package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateDiscountAmount(t *testing.T) {
	cases := []struct {
		name       string
		subTotal   string
		discount   string
		percentage bool
		expected   string
	}{
		{"percentage", "100", "50", true, "50"},
		{"percentage fraction", "199.99", "10", true, "19.999"},
		{"fixed", "100", "15", false, "15"},
		{"zero discount", "100", "0", true, "0"},
		{"negative discount", "100", "-5", false, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateDiscountAmount(dec(tc.subTotal), dec(tc.discount), tc.percentage)
			assert.True(t, got.Equal(dec(tc.expected)), "expected %s, got %s", tc.expected, got)
		})
	}
}

func TestClampDiscount(t *testing.T) {
	max20 := dec("20")

	got := ClampDiscount(dec("50"), &max20, dec("100"))
	require.True(t, got.Equal(dec("20")), "got %s", got)

	got = ClampDiscount(dec("15"), &max20, dec("100"))
	require.True(t, got.Equal(dec("15")), "got %s", got)

	// fixed discount larger than the order never makes the total negative
	got = ClampDiscount(dec("30"), nil, dec("25"))
	require.True(t, got.Equal(dec("25")), "got %s", got)
}

func TestErrorTaxonomy(t *testing.T) {
	v := NewShortageError("insufficient stock", []Shortage{{ItemId: 5, LocationId: 1, Required: dec("10"), Available: dec("3")}})
	wrapped := fmt.Errorf("ship: %w", v)
	require.True(t, IsValidation(wrapped))
	require.False(t, IsConflict(wrapped))
	ve, ok := AsValidation(wrapped)
	require.True(t, ok)
	require.Len(t, ve.Shortages, 1)
	assert.Contains(t, ve.Error(), "required 10, available 3")

	c := NewConflictError("order", 7, "Confirmed", "Shipped")
	require.True(t, IsConflict(c))

	// taxonomy errors pass through Internal untouched
	require.Same(t, v, Internal("op", v))
	require.True(t, IsInternal(Internal("op", errors.New("boom"))))
	require.True(t, IsValidation(Internal("op", ErrorRecordNotFound)))
	require.NoError(t, Internal("op", nil))
}
