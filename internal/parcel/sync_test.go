package parcel

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDistributeDelivered(t *testing.T) {
	items := []NoteItem{
		{ID: 1, ItemCode: "A", Qty: dec("3")},
		{ID: 2, ItemCode: "B", Qty: dec("5")},
		{ID: 3, ItemCode: "A", Qty: dec("4")},
	}
	out := DistributeDelivered(items, map[string]decimal.Decimal{"A": dec("5"), "B": dec("9")})
	assert.True(t, dec("3").Equal(out[0].DeliveredQty))
	assert.True(t, dec("5").Equal(out[1].DeliveredQty), "capped at ordered quantity")
	assert.True(t, dec("2").Equal(out[2].DeliveredQty))
	assert.True(t, items[0].DeliveredQty.IsZero(), "input is not mutated")
}

func TestDistributeDeliveredMissingItem(t *testing.T) {
	out := DistributeDelivered([]NoteItem{{ID: 1, ItemCode: "A", Qty: dec("3")}}, nil)
	assert.True(t, out[0].DeliveredQty.IsZero())
}
