package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// AuditPort records delivery note changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for delivery notes.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a delivery note service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// ============================================================================
// DELIVERY NOTE OPERATIONS
// ============================================================================

// Create stores a new draft delivery note.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Note, error) {
	if len(req.Items) == 0 {
		return nil, httpx.Invalid("delivery note requires at least one item")
	}
	note := &Note{
		Customer:     strings.TrimSpace(req.Customer),
		CustomerName: strings.TrimSpace(req.CustomerName),
		PostingDate:  s.now().UTC().Truncate(24 * time.Hour),
		Status:       StatusDraft,
	}
	if note.CustomerName == "" {
		note.CustomerName = note.Customer
	}
	if req.PostingDate != nil {
		note.PostingDate = req.PostingDate.UTC().Truncate(24 * time.Hour)
	}
	for _, in := range req.Items {
		item, err := buildItem(in)
		if err != nil {
			return nil, err
		}
		note.Items = append(note.Items, item)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		name, err := tx.NextName(ctx)
		if err != nil {
			return fmt.Errorf("next delivery note name: %w", err)
		}
		note.Name = name
		return tx.InsertNote(ctx, note)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "delivery_note.create", note.Name, map[string]any{"items": len(note.Items)})
	return note, nil
}

func buildItem(in ItemRequest) (Item, error) {
	code := strings.TrimSpace(in.ItemCode)
	if code == "" {
		return Item{}, httpx.Invalid("item code is required")
	}
	if !in.Qty.IsPositive() {
		return Item{}, fmt.Errorf("%s: %w", code, ErrInvalidQuantity)
	}
	item := Item{
		ItemCode:         code,
		Description:      in.Description,
		Qty:              in.Qty,
		DeliveredQty:     decimal.Zero,
		UOM:              in.UOM,
		StockUOM:         in.StockUOM,
		ConversionFactor: in.ConversionFactor,
		Rate:             in.Rate,
	}
	if item.UOM == "" {
		item.UOM = "Unit"
	}
	if item.StockUOM == "" {
		item.StockUOM = item.UOM
	}
	if !item.ConversionFactor.IsPositive() {
		item.ConversionFactor = decimal.NewFromInt(1)
	}
	return item, nil
}

// Get retrieves a delivery note with its items.
func (s *Service) Get(ctx context.Context, name string) (*Note, error) {
	return s.repo.GetNote(ctx, name)
}

// List returns delivery notes matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Note, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, httpx.Invalidf("unknown status %q", filter.Status)
	}
	return s.repo.ListNotes(ctx, filter)
}

// Submit releases a draft note for delivery.
func (s *Service) Submit(ctx context.Context, name string) (*Note, error) {
	return s.transition(ctx, name, StatusToDeliver, "delivery_note.submit", func(n *Note) error {
		if !n.Status.CanSubmit() {
			return ErrInvalidStatus
		}
		return nil
	})
}

// Complete closes a note once it has been delivered.
func (s *Service) Complete(ctx context.Context, name string) (*Note, error) {
	return s.transition(ctx, name, StatusCompleted, "delivery_note.complete", func(n *Note) error {
		if !n.Status.CanComplete() {
			return ErrInvalidStatus
		}
		return nil
	})
}

// Cancel cancels a note unless a submitted transfer batch holds it.
func (s *Service) Cancel(ctx context.Context, name string) (*Note, error) {
	return s.transition(ctx, name, StatusCancelled, "delivery_note.cancel", func(n *Note) error {
		if !n.Status.CanCancel() {
			return ErrInvalidStatus
		}
		if n.Prepared {
			return ErrPrepared
		}
		return nil
	})
}

func (s *Service) transition(ctx context.Context, name string, target Status, action string, check func(*Note) error) (*Note, error) {
	var (
		note     *Note
		previous Status
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.LockNote(ctx, name)
		if err != nil {
			return err
		}
		if err := check(n); err != nil {
			return fmt.Errorf("%s (%s): %w", name, n.Status, err)
		}
		if err := tx.UpdateStatus(ctx, name, target); err != nil {
			return err
		}
		previous = n.Status
		n.Status = target
		note = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, action, name, map[string]any{"previous_status": string(previous), "status": string(target)})
	return note, nil
}

// Delete removes a draft note that owns no parcels.
func (s *Service) Delete(ctx context.Context, name string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.LockNote(ctx, name)
		if err != nil {
			return err
		}
		if !n.Status.CanEdit() {
			return fmt.Errorf("%s (%s): %w", name, n.Status, ErrInvalidStatus)
		}
		count, err := tx.CountParcels(ctx, name)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%s: %w", name, ErrHasParcels)
		}
		return tx.DeleteNote(ctx, name)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "delivery_note.delete", name, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action, name string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "delivery_note",
		EntityID: name,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.String("delivery_note", name), slog.Any("error", err))
	}
}
