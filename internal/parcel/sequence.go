package parcel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/logistics/internal/shared"
)

// recomputeSequence numbers the non-cancelled parcels of a note "i/N" in
// creation order and stores N on the note. The caller holds the note lock.
func recomputeSequence(ctx context.Context, tx TxRepository, noteName string) (int, error) {
	names, err := tx.ActiveParcelNames(ctx, noteName)
	if err != nil {
		return 0, err
	}
	total := len(names)
	for i, name := range names {
		if err := tx.SetSequence(ctx, name, fmt.Sprintf("%d/%d", i+1, total)); err != nil {
			return 0, err
		}
	}
	if err := tx.SetParcelCount(ctx, noteName, total); err != nil {
		return 0, err
	}
	return total, nil
}

// RecomputeSequence renumbers the parcels of a note from the database and
// refreshes its parcel count. It is idempotent.
func (s *Service) RecomputeSequence(ctx context.Context, noteName string) (int, error) {
	var total int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockNote(ctx, noteName); err != nil {
			return err
		}
		var err error
		total, err = recomputeSequence(ctx, tx, noteName)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, noteName)

	stored, err := s.repo.StoredParcelCount(ctx, noteName)
	switch {
	case err != nil:
		s.logger.Warn("parcel count check failed", slog.String("delivery_note", noteName), slog.Any("error", err))
	case stored != total:
		s.logger.Warn("parcel count mismatch after recompute",
			slog.String("delivery_note", noteName), slog.Int("expected", total), slog.Int("stored", stored))
	}
	return total, nil
}

// ForceRecompute is the manual entry point; failures become a result.
func (s *Service) ForceRecompute(ctx context.Context, noteName string) (shared.ActionResult, error) {
	total, err := s.RecomputeSequence(ctx, noteName)
	if err != nil {
		if errors.Is(err, ErrNoteNotFound) {
			return shared.Failed(fmt.Sprintf("delivery note %s not found", noteName)), nil
		}
		return shared.ActionResult{}, err
	}
	return shared.ActionResult{
		Success: true,
		Message: fmt.Sprintf("sequence recomputed for %d parcel(s)", total),
		Count:   total,
	}, nil
}

// HandleDeleted renumbers the surviving parcels after a deletion. A note that
// no longer exists is skipped.
func (s *Service) HandleDeleted(ctx context.Context, evt Deleted) error {
	_, err := s.RecomputeSequence(ctx, evt.DeliveryNote)
	if errors.Is(err, ErrNoteNotFound) {
		s.logger.Info("delivery note gone, renumbering skipped",
			slog.String("delivery_note", evt.DeliveryNote), slog.String("parcel", evt.Parcel))
		return nil
	}
	return err
}

// SweepSequences recomputes every note that owns parcels and returns how
// many were processed.
func (s *Service) SweepSequences(ctx context.Context) (int, error) {
	notes, err := s.repo.NotesWithParcels(ctx)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, note := range notes {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := s.RecomputeSequence(ctx, note); err != nil {
			s.logger.Warn("sequence sweep failed", slog.String("delivery_note", note), slog.Any("error", err))
			continue
		}
		done++
	}
	return done, nil
}
