package parcel

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLineRecompute(t *testing.T) {
	cases := []struct {
		total, delivered string
		remaining string
		status    LineStatus
	}{
		{"10", "0", "10", LinePending},
		{"10", "4", "6", LinePartiallyDelivered},
		{"10", "10", "0", LineDelivered},
		{"10", "12", "0", LineDelivered},
		{"0", "0", "0", LinePending},
		{"2.5", "1.25", "1.25", LinePartiallyDelivered},
	}
	for _, c := range cases {
		l := Line{TotalQty: dec(c.total), DeliveredQty: dec(c.delivered)}
		l.Recompute()
		assert.True(t, dec(c.remaining).Equal(l.RemainingQty), "%s/%s remaining %s", c.total, c.delivered, l.RemainingQty)
		assert.Equal(t, c.status, l.Status)
	}
}

func TestLineDeliver(t *testing.T) {
	at := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	l := NewLine("ITEM-A", "Chair", dec("5"))
	require.Equal(t, LinePending, l.Status)

	require.NoError(t, l.Deliver(dec("2"), at))
	assert.True(t, dec("2").Equal(l.DeliveredQty))
	assert.True(t, dec("3").Equal(l.RemainingQty))
	assert.Equal(t, LinePartiallyDelivered, l.Status)
	require.NotNil(t, l.LastDeliveredAt)
	assert.Equal(t, at, *l.LastDeliveredAt)

	err := l.Deliver(dec("4"), at)
	var exceeds *ExceedsRemainingError
	require.ErrorAs(t, err, &exceeds)
	assert.True(t, dec("3").Equal(exceeds.Remaining))
	assert.ErrorIs(t, err, ErrExceedsRemaining)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), "remaining quantity: 3")
	assert.True(t, dec("2").Equal(l.DeliveredQty), "rejected delivery must not change the line")

	assert.ErrorIs(t, l.Deliver(decimal.Zero, at), ErrNonPositiveQuantity)
	assert.ErrorIs(t, l.Deliver(dec("-1"), at), ErrNonPositiveQuantity)

	require.NoError(t, l.DeliverRemaining(at))
	assert.Equal(t, LineDelivered, l.Status)
	assert.True(t, l.RemainingQty.IsZero())
	assert.ErrorIs(t, l.DeliverRemaining(at), ErrNothingRemaining)
}

func TestLineUndeliverableIsSticky(t *testing.T) {
	at := time.Now()
	l := NewLine("ITEM-A", "", dec("4"))
	l.MarkUndeliverable()
	assert.Equal(t, LineUndeliverable, l.Status)

	l.Recompute()
	assert.Equal(t, LineUndeliverable, l.Status, "recompute keeps the override")

	require.NoError(t, l.Deliver(dec("1"), at))
	assert.Equal(t, LinePartiallyDelivered, l.Status, "a new delivery clears the override")
}

func TestExceedsRemainingReportsPreCallRemaining(t *testing.T) {
	l := NewLine("X", "", dec("3"))
	err := l.Deliver(dec("7"), time.Now())
	var exceeds *ExceedsRemainingError
	require.True(t, errors.As(err, &exceeds))
	assert.Equal(t, "cannot deliver 7, remaining quantity: 3", err.Error())
}
