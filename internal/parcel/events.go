package parcel

import (
	"context"
	"log/slog"
	"time"
)

// Deleted is announced after a parcel deletion has committed.
type Deleted struct {
	Parcel       string    `json:"parcel"`
	DeliveryNote string    `json:"delivery_note"`
	DeletedAt    time.Time `json:"deleted_at"`
}

// EventPublisher delivers parcel events to a background consumer.
type EventPublisher interface {
	PublishDeleted(ctx context.Context, evt Deleted) error
}

func (s *Service) publishDeleted(ctx context.Context, evt Deleted) {
	if s.publisher == nil {
		if err := s.HandleDeleted(ctx, evt); err != nil {
			s.logger.Warn("inline renumbering failed", slog.String("delivery_note", evt.DeliveryNote), slog.Any("error", err))
		}
		return
	}
	if err := s.publisher.PublishDeleted(ctx, evt); err != nil {
		s.logger.Error("publish parcel deleted", slog.String("parcel", evt.Parcel), slog.Any("error", err))
	}
}
