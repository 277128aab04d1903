package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLedgerChanges_SumsAndSortsByItemThenLocation(t *testing.T) {
	merged := mergeLedgerChanges([]ledgerChange{
		{ItemId: 5, LocationId: 2, Delta: dec("-1")},
		{ItemId: 3, LocationId: 9, Delta: dec("4")},
		{ItemId: 5, LocationId: 1, Delta: dec("2")},
		{ItemId: 5, LocationId: 2, Delta: dec("-2"), Reserve: dec("1")},
	})
	require.Len(t, merged, 3)
	assert.Equal(t, ledgerKey{3, 9}, ledgerKey{merged[0].ItemId, merged[0].LocationId})
	assert.Equal(t, ledgerKey{5, 1}, ledgerKey{merged[1].ItemId, merged[1].LocationId})
	assert.Equal(t, ledgerKey{5, 2}, ledgerKey{merged[2].ItemId, merged[2].LocationId})
	assert.True(t, merged[2].Delta.Equal(dec("-3")))
	assert.True(t, merged[2].Reserve.Equal(dec("1")))
}

func TestInventoryRecord_AvailableAndLowStock(t *testing.T) {
	r := InventoryRecord{Quantity: dec("10"), ReservedQuantity: dec("4")}
	assert.True(t, r.Available().Equal(dec("6")))
	assert.False(t, r.IsLowStock(), "no minimum configured")

	r.MinimumStockLevel = decPtr("10")
	assert.True(t, r.IsLowStock())
	r.MinimumStockLevel = decPtr("9")
	assert.False(t, r.IsLowStock())
}
