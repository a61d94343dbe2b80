package parcel

import (
	"time"

	"github.com/shopspring/decimal"
)

// NewLine builds a pending line allocating total units of an item.
func NewLine(itemCode, description string, total decimal.Decimal) Line {
	l := Line{ItemCode: itemCode, Description: description, TotalQty: total, DeliveredQty: decimal.Zero}
	l.Recompute()
	return l
}

// Recompute derives remaining quantity and status from total and delivered.
// An Undeliverable line keeps its status until a new delivery is recorded.
func (l *Line) Recompute() {
	l.RemainingQty = decimal.Max(decimal.Zero, l.TotalQty.Sub(l.DeliveredQty))
	if l.Status == LineUndeliverable {
		return
	}
	l.Status = deriveLineStatus(l.TotalQty, l.DeliveredQty)
}

func deriveLineStatus(total, delivered decimal.Decimal) LineStatus {
	switch {
	case !total.IsPositive(), delivered.IsZero():
		return LinePending
	case delivered.GreaterThanOrEqual(total):
		return LineDelivered
	default:
		return LinePartiallyDelivered
	}
}

// Deliver records q delivered units at the given time.
func (l *Line) Deliver(q decimal.Decimal, at time.Time) error {
	if !q.IsPositive() {
		return ErrNonPositiveQuantity
	}
	if l.DeliveredQty.Add(q).GreaterThan(l.TotalQty) {
		return &ExceedsRemainingError{Requested: q, Remaining: decimal.Max(decimal.Zero, l.TotalQty.Sub(l.DeliveredQty))}
	}
	l.DeliveredQty = l.DeliveredQty.Add(q)
	stamp := at
	l.LastDeliveredAt = &stamp
	l.Status = ""
	l.Recompute()
	return nil
}

// DeliverRemaining delivers whatever is left on the line.
func (l *Line) DeliverRemaining(at time.Time) error {
	l.Recompute()
	if !l.RemainingQty.IsPositive() {
		return ErrNothingRemaining
	}
	return l.Deliver(l.RemainingQty, at)
}

// MarkUndeliverable forces the Undeliverable status regardless of quantities.
func (l *Line) MarkUndeliverable() {
	l.Status = LineUndeliverable
	l.Recompute()
}

// Snapshot returns the quantities shown after a line action.
func (l Line) Snapshot() LineSnapshot {
	return LineSnapshot{TotalQty: l.TotalQty, DeliveredQty: l.DeliveredQty, RemainingQty: l.RemainingQty, Status: l.Status}
}
