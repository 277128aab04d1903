package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredQuantity_ScalesPerBuildByBuildQuantity(t *testing.T) {
	assert.True(t, RequiredQuantity(dec("2"), dec("3")).Equal(dec("6")))
	assert.True(t, RequiredQuantity(dec("0.25"), dec("4")).Equal(dec("1")))
}

func testAssembly() *Assembly {
	return &Assembly{
		ID:            11,
		BuildQuantity: dec("3"),
		LocationId:    1,
		Materials: []BillOfMaterial{
			{RawItemId: 100, LocationId: 1, RequiredQuantityPerBuild: dec("2")},
			{RawItemId: 101, LocationId: 1, RequiredQuantityPerBuild: dec("0.5")},
		},
	}
}

func TestAssemblyMaterialChanges_DeductsScaledQuantities(t *testing.T) {
	changes := testAssembly().materialChanges(nil, MovementReferenceAssemblyConsume)
	require.Len(t, changes, 2)
	assert.Equal(t, 100, changes[0].ItemId)
	assert.True(t, changes[0].Delta.Equal(dec("-6")), "delta %s", changes[0].Delta)
	assert.True(t, changes[1].Delta.Equal(dec("-1.5")), "delta %s", changes[1].Delta)
	assert.Equal(t, MovementReferenceAssemblyConsume, changes[0].Reference)
}

func TestAssemblyMaterialChanges_ReleasesReservations(t *testing.T) {
	a := testAssembly()
	reserved := map[ledgerKey]decimal.Decimal{
		{ItemId: 100, LocationId: 1}: dec("6"),
		{ItemId: 101, LocationId: 1}: dec("1.5"),
	}
	merged := mergeLedgerChanges(a.materialChanges(reserved, MovementReferenceAssemblyConsume))
	require.Len(t, merged, 2)
	for _, c := range merged {
		// each line consumes what it reserved; availability is unchanged by completion
		assert.True(t, c.Delta.Equal(c.Reserve), "item %d: delta %s reserve %s", c.ItemId, c.Delta, c.Reserve)
	}
	assert.True(t, merged[0].Delta.Equal(dec("-6")))
}

func TestAssemblyReservationChanges(t *testing.T) {
	changes := testAssembly().reservationChanges()
	require.Len(t, changes, 2)
	assert.True(t, changes[0].Delta.IsZero())
	assert.True(t, changes[0].Reserve.Equal(dec("6")))
	assert.True(t, changes[1].Reserve.Equal(dec("1.5")))
}
