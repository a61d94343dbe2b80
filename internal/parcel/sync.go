package parcel

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// DistributeDelivered spreads the delivered total of each item code over the
// note rows carrying it, filling rows in order up to their ordered quantity.
func DistributeDelivered(items []NoteItem, delivered map[string]decimal.Decimal) []NoteItem {
	left := make(map[string]decimal.Decimal, len(delivered))
	for code, qty := range delivered {
		left[code] = decimal.Max(decimal.Zero, qty)
	}
	out := make([]NoteItem, len(items))
	for i, item := range items {
		q := decimal.Min(left[item.ItemCode], decimal.Max(decimal.Zero, item.Qty))
		item.DeliveredQty = q
		left[item.ItemCode] = left[item.ItemCode].Sub(q)
		out[i] = item
	}
	return out
}

// syncDelivery copies delivered quantities from the parcels onto the note.
// Failures are logged only.
func (s *Service) syncDelivery(ctx context.Context, noteName string) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.LockNote(ctx, noteName)
		if err != nil {
			return err
		}
		delivered, err := tx.DeliveredByItem(ctx, noteName)
		if err != nil {
			return err
		}
		for i, item := range DistributeDelivered(note.Items, delivered) {
			if item.DeliveredQty.Equal(note.Items[i].DeliveredQty) {
				continue
			}
			if err := tx.SetItemDelivered(ctx, item.ID, item.DeliveredQty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("delivery sync failed", slog.String("delivery_note", noteName), slog.Any("error", err))
	}
}
