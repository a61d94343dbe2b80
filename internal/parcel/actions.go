package parcel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// SetStatus applies a manual transition. Refused transitions and the
// confirmation step are reported in the result, not as errors.
func (s *Service) SetStatus(ctx context.Context, name string, target Status, confirm bool) (shared.ActionResult, error) {
	p, err := s.repo.GetParcel(ctx, name)
	if err != nil {
		return shared.ActionResult{}, err
	}
	if ok, reason := ValidateTransition(p.Status, target); !ok {
		return shared.Failed(reason), nil
	}
	if !confirm {
		return shared.NeedsConfirmation(fmt.Sprintf("change the status of parcel %s from %q to %q?", name, p.Status, target)), nil
	}

	var (
		previous Status
		refusal  string
		saved    Parcel
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.LockNote(ctx, p.DeliveryNote)
		if err != nil {
			return err
		}
		cur, err := tx.GetParcelForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if ok, reason := ValidateTransition(cur.Status, target); !ok {
			refusal = reason
			return nil
		}
		previous = cur.Status
		if previous == StatusCancelled {
			if err := validateQuantities(ctx, tx, note, cur); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, name, target); err != nil {
			return err
		}
		if previous == StatusCancelled || target == StatusCancelled {
			if target == StatusCancelled {
				if err := tx.SetSequence(ctx, name, ""); err != nil {
					return err
				}
			}
			if _, err := recomputeSequence(ctx, tx, note.Name); err != nil {
				return err
			}
		}
		cur.Status = target
		saved = cur
		return nil
	})
	if err != nil {
		if errors.Is(err, httpx.ErrValidation) {
			return shared.Failed(err.Error()), nil
		}
		return shared.ActionResult{}, err
	}
	if refusal != "" {
		return shared.Failed(refusal), nil
	}

	s.afterSave(ctx, saved, "parcel.status", map[string]any{"previous_status": string(previous)})
	return shared.ActionResult{
		Success:        true,
		Message:        fmt.Sprintf("status updated to %q (previous status: %q)", target, previous),
		PreviousStatus: string(previous),
		NewStatus:      string(target),
	}, nil
}

// DeliverLine records qty delivered units on one line.
func (s *Service) DeliverLine(ctx context.Context, name string, lineID int64, qty decimal.Decimal, confirm bool) (shared.ActionResult, error) {
	if !confirm {
		return shared.NeedsConfirmation(fmt.Sprintf("confirm delivery of %s unit(s) of this article?", qty.String())), nil
	}
	return s.applyLine(ctx, name, lineID, "parcel.line.deliver", func(l *Line, at time.Time) (string, error) {
		if err := l.Deliver(qty, at); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s unit(s) of %s delivered", qty.String(), l.ItemCode), nil
	})
}

// DeliverRemaining delivers whatever is left on one line.
func (s *Service) DeliverRemaining(ctx context.Context, name string, lineID int64, confirm bool) (shared.ActionResult, error) {
	if !confirm {
		return shared.NeedsConfirmation("confirm delivery of the remaining quantity of this article?"), nil
	}
	return s.applyLine(ctx, name, lineID, "parcel.line.deliver_remaining", func(l *Line, at time.Time) (string, error) {
		remaining := l.RemainingQty
		if err := l.DeliverRemaining(at); err != nil {
			return "", err
		}
		return fmt.Sprintf("remaining %s unit(s) of %s delivered", remaining.String(), l.ItemCode), nil
	})
}

// MarkUndeliverable flags one line as undeliverable. The reason only appears
// in the returned message.
func (s *Service) MarkUndeliverable(ctx context.Context, name string, lineID int64, reason string, confirm bool) (shared.ActionResult, error) {
	if !confirm {
		return shared.NeedsConfirmation("mark this article as undeliverable?"), nil
	}
	return s.applyLine(ctx, name, lineID, "parcel.line.undeliverable", func(l *Line, _ time.Time) (string, error) {
		l.MarkUndeliverable()
		msg := fmt.Sprintf("article %s marked as undeliverable", l.ItemCode)
		if reason != "" {
			msg += ": " + reason
		}
		return msg, nil
	})
}

// cancelledMessage refuses line actions on a cancelled parcel. Its lines stay
// out of allocation and numbering until SetStatus reactivates it.
const cancelledMessage = "parcel is cancelled"

type lineAction func(l *Line, at time.Time) (string, error)

func (s *Service) applyLine(ctx context.Context, name string, lineID int64, action string, fn lineAction) (shared.ActionResult, error) {
	p, err := s.repo.GetParcel(ctx, name)
	if err != nil {
		return shared.ActionResult{}, err
	}
	var (
		result shared.ActionResult
		saved  Parcel
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockNote(ctx, p.DeliveryNote); err != nil {
			return err
		}
		cur, err := tx.GetParcelForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if cur.Status == StatusCancelled {
			result = shared.Failed(cancelledMessage)
			return nil
		}
		idx := -1
		for i := range cur.Lines {
			if cur.Lines[i].ID == lineID {
				idx = i
				break
			}
		}
		if idx < 0 {
			result = shared.Failed("article not found")
			return nil
		}
		msg, err := fn(&cur.Lines[idx], s.now())
		if err != nil {
			if errors.Is(err, httpx.ErrValidation) {
				result = shared.Failed(err.Error())
				return nil
			}
			return err
		}
		previous := cur.Status
		cur.Status = AggregateStatus(cur.Status, cur.Lines)
		if err := tx.UpdateParcel(ctx, &cur); err != nil {
			return err
		}
		result = shared.ActionResult{
			Success:        true,
			Message:        msg,
			PreviousStatus: string(previous),
			NewStatus:      string(cur.Status),
			Line:           cur.Lines[idx].Snapshot(),
		}
		saved = cur
		return nil
	})
	if err != nil {
		return shared.ActionResult{}, err
	}
	if result.Success {
		s.afterSave(ctx, saved, action, map[string]any{"line": lineID})
	}
	return result, nil
}

// DeliverAll delivers the remaining quantity of every pending or partially
// delivered line.
func (s *Service) DeliverAll(ctx context.Context, name string, confirm bool) (shared.ActionResult, error) {
	if !confirm {
		return shared.NeedsConfirmation("deliver every remaining article of this parcel?"), nil
	}
	p, err := s.repo.GetParcel(ctx, name)
	if err != nil {
		return shared.ActionResult{}, err
	}
	var (
		result shared.ActionResult
		saved  Parcel
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockNote(ctx, p.DeliveryNote); err != nil {
			return err
		}
		cur, err := tx.GetParcelForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if cur.Status == StatusCancelled {
			result = shared.Failed(cancelledMessage)
			return nil
		}
		at := s.now()
		count := 0
		for i := range cur.Lines {
			l := &cur.Lines[i]
			if l.Status != LinePending && l.Status != LinePartiallyDelivered {
				continue
			}
			if !l.RemainingQty.IsPositive() {
				continue
			}
			if err := l.DeliverRemaining(at); err != nil {
				return err
			}
			count++
		}
		if count == 0 {
			result = shared.Failed("no article to deliver")
			return nil
		}
		previous := cur.Status
		cur.Status = AggregateStatus(cur.Status, cur.Lines)
		if err := tx.UpdateParcel(ctx, &cur); err != nil {
			return err
		}
		result = shared.ActionResult{
			Success:        true,
			Message:        fmt.Sprintf("%d article(s) delivered", count),
			PreviousStatus: string(previous),
			NewStatus:      string(cur.Status),
			Count:          count,
		}
		saved = cur
		return nil
	})
	if err != nil {
		return shared.ActionResult{}, err
	}
	if result.Success {
		s.afterSave(ctx, saved, "parcel.deliver_all", map[string]any{"count": result.Count})
	}
	return result, nil
}
