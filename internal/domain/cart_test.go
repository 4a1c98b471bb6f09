package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kurta = ProductRef{ID: "p-1", Name: "Cotton Kurta", PriceMinor: 149900, ImageRef: "kurta.jpg"}
	saree = ProductRef{ID: "p-2", Name: "Silk Saree", PriceMinor: 320000, ImageRef: "saree.jpg"}
)

func TestApply_AddItem_NewLine(t *testing.T) {
	cart := Apply(Cart{}, AddItem{Product: kurta, Size: "L", Quantity: 2})

	require.Len(t, cart.Items, 1)
	item := cart.Items[0]
	assert.Equal(t, "p-1", item.ProductID)
	assert.Equal(t, "Cotton Kurta", item.Name)
	assert.Equal(t, int64(149900), item.UnitPriceMinor)
	assert.Equal(t, "L", item.Size)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "kurta.jpg", item.ImageRef)
}

func TestApply_AddItem_Defaults(t *testing.T) {
	cart := Apply(Cart{}, AddItem{Product: kurta})

	require.Len(t, cart.Items, 1)
	assert.Equal(t, DefaultSize, cart.Items[0].Size)
	assert.Equal(t, 1, cart.Items[0].Quantity)
}

func TestApply_AddItem_ExistingLineIncrements(t *testing.T) {
	cart := Apply(Cart{}, AddItem{Product: kurta, Size: "M", Quantity: 1})
	cart = Apply(cart, AddItem{Product: saree, Size: "Free", Quantity: 1})
	cart = Apply(cart, AddItem{Product: kurta, Size: "M", Quantity: 3})

	require.Len(t, cart.Items, 2)
	assert.Equal(t, "p-1", cart.Items[0].ProductID, "position preserved")
	assert.Equal(t, 4, cart.Items[0].Quantity)
}

func TestApply_AddItem_SameProductDifferentSize(t *testing.T) {
	cart := Apply(Cart{}, AddItem{Product: kurta, Size: "M", Quantity: 1})
	cart = Apply(cart, AddItem{Product: kurta, Size: "L", Quantity: 1})

	assert.Len(t, cart.Items, 2)
	assert.Equal(t, 1, cart.Quantity("p-1", "M"))
	assert.Equal(t, 1, cart.Quantity("p-1", "L"))
}

func TestApply_AddItem_NegativeDeltaRemovesAtZero(t *testing.T) {
	cart := Apply(Cart{}, AddItem{Product: kurta, Size: "M", Quantity: 2})
	cart = Apply(cart, AddItem{Product: kurta, Size: "M", Quantity: -5})

	assert.Empty(t, cart.Items)
}

func TestApply_AddItem_IgnoresMissingProduct(t *testing.T) {
	cart := Apply(Cart{}, AddItem{Product: ProductRef{}, Quantity: 2})
	assert.Empty(t, cart.Items)
}

func TestApply_SetQuantity(t *testing.T) {
	cart := Apply(Cart{}, AddItem{Product: kurta, Size: "M", Quantity: 1})
	cart = Apply(cart, AddItem{Product: saree, Size: "Free", Quantity: 1})

	cart = Apply(cart, SetQuantity{ProductID: "p-1", Size: "M", Quantity: 5})
	require.Len(t, cart.Items, 2)
	assert.Equal(t, "p-1", cart.Items[0].ProductID)
	assert.Equal(t, 5, cart.Items[0].Quantity)

	cart = Apply(cart, SetQuantity{ProductID: "p-1", Size: "M", Quantity: 0})
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "p-2", cart.Items[0].ProductID)
}

func TestApply_SetQuantity_Idempotent(t *testing.T) {
	base := Apply(Cart{}, AddItem{Product: kurta, Size: "M", Quantity: 1})
	action := SetQuantity{ProductID: "p-1", Size: "M", Quantity: 7}

	once := Apply(base, action)
	twice := Apply(once, action)

	assert.Equal(t, once, twice)
}

func TestApply_SetQuantity_AbsentIsNoop(t *testing.T) {
	base := Apply(Cart{}, AddItem{Product: kurta, Size: "M", Quantity: 1})
	next := Apply(base, SetQuantity{ProductID: "p-9", Size: "M", Quantity: 3})
	assert.Equal(t, base, next)
}

func TestApply_RemoveItem(t *testing.T) {
	cart := Apply(Cart{}, AddItem{Product: kurta, Size: "M", Quantity: 1})
	cart = Apply(cart, AddItem{Product: saree, Size: "Free", Quantity: 1})

	cart = Apply(cart, RemoveItem{ProductID: "p-1", Size: "M"})
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "p-2", cart.Items[0].ProductID)

	// absent line
	cart = Apply(cart, RemoveItem{ProductID: "p-1", Size: "M"})
	assert.Len(t, cart.Items, 1)
}

func TestApply_Clear(t *testing.T) {
	cart := Apply(Cart{SessionKey: "u1"}, AddItem{Product: kurta, Quantity: 3})
	cart = Apply(cart, Clear{})

	assert.Empty(t, cart.Items)
	assert.Equal(t, "u1", cart.SessionKey)
}

func TestApply_LoadNormalizes(t *testing.T) {
	cart := Apply(Cart{}, Load{Items: []LineItem{
		{ProductID: "p-1", Size: "M", Quantity: 1, UnitPriceMinor: 100},
		{ProductID: "", Size: "M", Quantity: 4},
		{ProductID: "p-2", Size: "S", Quantity: 0},
		{ProductID: "p-1", Size: "M", Quantity: 2, UnitPriceMinor: 100},
		{ProductID: "p-3", Quantity: 1},
	}})

	require.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, DefaultSize, cart.Items[1].Size)
}

func TestApply_LoadIgnoresNegativePricesAndCapsQuantity(t *testing.T) {
	cart := Apply(Cart{}, Load{Items: []LineItem{
		{ProductID: "p-1", Size: "M", Quantity: 1, UnitPriceMinor: -500000},
		{ProductID: "p-2", Size: "M", Quantity: 60, UnitPriceMinor: 100},
		{ProductID: "p-2", Size: "M", Quantity: 60, UnitPriceMinor: 100},
		{ProductID: "p-3", Size: "L", Quantity: 1000, UnitPriceMinor: 0},
	}})

	require.Len(t, cart.Items, 2)
	assert.False(t, cart.Contains("p-1", "M"))
	assert.Equal(t, MaxLineQuantity, cart.Quantity("p-2", "M"))
	assert.Equal(t, MaxLineQuantity, cart.Quantity("p-3", "L"))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	base := Apply(Cart{}, AddItem{Product: kurta, Size: "M", Quantity: 1})
	_ = Apply(base, SetQuantity{ProductID: "p-1", Size: "M", Quantity: 9})
	_ = Apply(base, RemoveItem{ProductID: "p-1", Size: "M"})

	require.Len(t, base.Items, 1)
	assert.Equal(t, 1, base.Items[0].Quantity)
}

func TestApply_QuantityMatchesSignedDeltas(t *testing.T) {
	deltas := []int{2, 3, -1, 4, -2}
	cart := Cart{}
	expected := 0
	for _, d := range deltas {
		cart = Apply(cart, AddItem{Product: kurta, Size: "M", Quantity: d})
		expected += d
		if expected < 0 {
			expected = 0
		}
		assert.Equal(t, expected, cart.Quantity("p-1", "M"))
	}
	for _, item := range cart.Items {
		assert.Positive(t, item.Quantity, "no zero-quantity lines")
	}
}

func TestCart_Helpers(t *testing.T) {
	cart := Apply(Cart{}, AddItem{Product: kurta, Size: "M", Quantity: 2})
	cart = Apply(cart, AddItem{Product: saree, Size: "Free", Quantity: 1})

	assert.Equal(t, 3, cart.TotalItems())
	assert.True(t, cart.Contains("p-2", "Free"))
	assert.False(t, cart.Contains("p-2", "M"))
}
