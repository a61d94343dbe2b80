package parcel

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/logistics/internal/platform/cache"
	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// ObjectStore abstracts attachment storage.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ListCache abstracts the read cache for parcel lists.
type ListCache interface {
	Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Invalidate(ctx context.Context, keys ...string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// StatusObserver is notified with the status of every saved parcel.
type StatusObserver interface {
	ParcelSaved(status string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	PublicBaseURL string
}

// Service coordinates parcel operations.
type Service struct {
	repo      RepositoryPort
	store     ObjectStore
	cache     ListCache
	audit     AuditPort
	logger    *slog.Logger
	baseURL   string
	publisher EventPublisher
	labels    LabelRenderer
	observer  StatusObserver
	qrFlight  singleflight.Group
	now       func() time.Time
}

// NewService builds Service. store, cache and audit may be nil.
func NewService(repo RepositoryPort, store ObjectStore, listCache ListCache, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		store:   store,
		cache:   listCache,
		audit:   audit,
		logger:  logger,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:     time.Now,
	}
}

// SetPublisher routes deletion events to p instead of handling them inline.
func (s *Service) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// SetLabelRenderer enables PDF labels.
func (s *Service) SetLabelRenderer(r LabelRenderer) {
	s.labels = r
}

// SetStatusObserver registers o for status notifications.
func (s *Service) SetStatusObserver(o StatusObserver) {
	s.observer = o
}

func listKey(note string) string {
	return cache.Key("parcels", note)
}

// CanCreate reports whether any ordered item still has quantity to pack.
func (s *Service) CanCreate(ctx context.Context, noteName string) (bool, error) {
	items, err := s.Unpacked(ctx, noteName)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// Unpacked lists items whose ordered quantity exceeds what non-cancelled
// parcels already hold.
func (s *Service) Unpacked(ctx context.Context, noteName string) ([]UnpackedItem, error) {
	note, err := s.repo.GetNote(ctx, noteName)
	if err != nil {
		return nil, err
	}
	allocated, err := s.repo.Allocations(ctx, noteName, "")
	if err != nil {
		return nil, err
	}
	out := make([]UnpackedItem, 0)
	for _, item := range note.Ordered() {
		packed := allocated[item.ItemCode]
		remaining := item.Qty.Sub(packed)
		if !remaining.IsPositive() {
			continue
		}
		desc := item.Description
		if desc == "" {
			desc = item.ItemCode
		}
		out = append(out, UnpackedItem{
			ItemCode:     item.ItemCode,
			Description:  desc,
			TotalQty:     item.Qty,
			PackedQty:    packed,
			RemainingQty: remaining,
		})
	}
	return out, nil
}

// List returns the parcels of a delivery note from the read cache.
func (s *Service) List(ctx context.Context, noteName string) ([]Summary, error) {
	var out []Summary
	loader := func(ctx context.Context) (any, error) {
		if _, err := s.repo.GetNote(ctx, noteName); err != nil {
			return nil, err
		}
		return s.repo.ListParcels(ctx, noteName)
	}
	if s.cache == nil {
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		return v.([]Summary), nil
	}
	if err := s.cache.Fetch(ctx, listKey(noteName), &out, loader); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

// Create packs everything not yet allocated into one new parcel. An empty
// parcel is created when nothing remains.
func (s *Service) Create(ctx context.Context, noteName string) (string, error) {
	var p Parcel
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.LockNote(ctx, noteName)
		if err != nil {
			return err
		}
		allocated, err := tx.Allocations(ctx, noteName, "")
		if err != nil {
			return err
		}
		name, err := tx.NextParcelName(ctx)
		if err != nil {
			return err
		}
		p = Parcel{
			Name:         name,
			DeliveryNote: note.Name,
			Client:       note.Client(),
			Date:         s.now(),
			Status:       StatusNew,
		}
		for _, item := range note.Ordered() {
			remaining := item.Qty.Sub(allocated[item.ItemCode])
			if remaining.IsPositive() {
				p.Lines = append(p.Lines, NewLine(item.ItemCode, item.Description, remaining))
			}
		}
		if err := tx.InsertParcel(ctx, &p); err != nil {
			return err
		}
		_, err = recomputeSequence(ctx, tx, note.Name)
		return err
	})
	if err != nil {
		return "", err
	}

	s.invalidate(ctx, noteName)
	if _, err := s.IssueQR(ctx, p.Name); err != nil {
		s.logger.Warn("qr issuance failed", slog.String("parcel", p.Name), slog.Any("error", err))
	}
	s.record(ctx, "parcel.create", p.Name, map[string]any{"delivery_note": noteName, "lines": len(p.Lines)})
	return p.Name, nil
}

// Get loads one parcel.
func (s *Service) Get(ctx context.Context, name string) (Parcel, error) {
	return s.repo.GetParcel(ctx, name)
}

// PublicView returns the tracking projection of a parcel.
func (s *Service) PublicView(ctx context.Context, name string) (Tracking, error) {
	p, err := s.repo.GetParcel(ctx, name)
	if err != nil {
		return Tracking{}, err
	}
	t := Tracking{
		Name:     p.Name,
		Status:   p.Status,
		Sequence: p.Sequence,
		Client:   p.Client,
		Date:     p.Date,
		Lines:    make([]TrackingLine, 0, len(p.Lines)),
	}
	for _, l := range p.Lines {
		t.Lines = append(t.Lines, TrackingLine{
			ItemCode:     l.ItemCode,
			Description:  l.Description,
			TotalQty:     l.TotalQty,
			DeliveredQty: l.DeliveredQty,
			RemainingQty: l.RemainingQty,
			Status:       l.Status,
		})
	}
	return t, nil
}

// Update saves header fields and the full line set, then derives the
// aggregate status from the lines. A cancelled parcel stays cancelled.
func (s *Service) Update(ctx context.Context, name string, input UpdateInput) (Parcel, error) {
	current, err := s.repo.GetParcel(ctx, name)
	if err != nil {
		return Parcel{}, err
	}
	var saved Parcel
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.LockNote(ctx, current.DeliveryNote)
		if err != nil {
			return err
		}
		p, err := tx.GetParcelForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if input.Client != nil {
			p.Client = *input.Client
		}
		if input.Date != nil {
			p.Date = *input.Date
		}
		lines, err := mergeLines(p, input.Lines)
		if err != nil {
			return err
		}
		p.Lines = lines
		if p.Status != StatusCancelled {
			if err := validateQuantities(ctx, tx, note, p); err != nil {
				return err
			}
			p.Status = AggregateStatus(p.Status, p.Lines)
		}
		if err := tx.UpdateParcel(ctx, &p); err != nil {
			return err
		}
		saved = p
		return nil
	})
	if err != nil {
		return Parcel{}, err
	}
	s.afterSave(ctx, saved, "parcel.update", nil)
	return saved, nil
}

func mergeLines(p Parcel, inputs []LineInput) ([]Line, error) {
	existing := make(map[int64]Line, len(p.Lines))
	for _, l := range p.Lines {
		existing[l.ID] = l
	}
	out := make([]Line, 0, len(inputs))
	for _, in := range inputs {
		if !in.TotalQty.IsPositive() || in.DeliveredQty.IsNegative() {
			return nil, ErrInvalidLine
		}
		l := Line{
			ID:           in.ID,
			ItemCode:     in.ItemCode,
			Description:  in.Description,
			TotalQty:     in.TotalQty,
			DeliveredQty: in.DeliveredQty,
		}
		if in.ID != 0 {
			prev, ok := existing[in.ID]
			if !ok {
				return nil, httpx.Invalidf("line %d does not belong to parcel %s", in.ID, p.Name)
			}
			l.LastDeliveredAt = prev.LastDeliveredAt
			if prev.Status == LineUndeliverable && !l.DeliveredQty.GreaterThan(prev.DeliveredQty) {
				l.Status = LineUndeliverable
			}
		}
		l.Recompute()
		out = append(out, l)
	}
	return out, nil
}

// validateQuantities checks that p together with the other non-cancelled
// parcels of the note does not exceed the ordered quantity of any item.
func validateQuantities(ctx context.Context, tx TxRepository, note Note, p Parcel) error {
	others, err := tx.Allocations(ctx, note.Name, p.Name)
	if err != nil {
		return err
	}
	ordered := make(map[string]decimal.Decimal)
	for _, item := range note.Ordered() {
		ordered[item.ItemCode] = item.Qty
	}
	here := make(map[string]decimal.Decimal)
	var codes []string
	for _, l := range p.Lines {
		if _, seen := here[l.ItemCode]; !seen {
			codes = append(codes, l.ItemCode)
		}
		here[l.ItemCode] = here[l.ItemCode].Add(l.TotalQty)
	}
	for _, code := range codes {
		if others[code].Add(here[code]).GreaterThan(ordered[code]) {
			return &OverAllocationError{ItemCode: code, Packed: others[code], Here: here[code], Ordered: ordered[code]}
		}
	}
	return nil
}

// Delete removes a parcel, its lines and attachments, then announces the
// deletion so the remaining parcels get renumbered.
func (s *Service) Delete(ctx context.Context, name string) error {
	current, err := s.repo.GetParcel(ctx, name)
	if err != nil {
		return err
	}
	var attachments []Attachment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockNote(ctx, current.DeliveryNote); err != nil && !errors.Is(err, ErrNoteNotFound) {
			return err
		}
		if _, err := tx.GetParcelForUpdate(ctx, name); err != nil {
			return err
		}
		attachments, err = tx.DeleteParcel(ctx, name)
		return err
	})
	if err != nil {
		return err
	}

	for _, att := range attachments {
		s.removeObject(ctx, att)
	}
	s.invalidate(ctx, current.DeliveryNote)
	s.syncDelivery(ctx, current.DeliveryNote)
	s.publishDeleted(ctx, Deleted{Parcel: name, DeliveryNote: current.DeliveryNote, DeletedAt: s.now()})
	s.record(ctx, "parcel.delete", name, map[string]any{"delivery_note": current.DeliveryNote})
	return nil
}

// AvailableActions reports what can be done with the parcel right now.
func (s *Service) AvailableActions(ctx context.Context, name string) (Actions, error) {
	p, err := s.repo.GetParcel(ctx, name)
	if err != nil {
		return Actions{}, err
	}
	return ActionsFor(p.Status), nil
}

func (s *Service) afterSave(ctx context.Context, p Parcel, action string, meta map[string]any) {
	s.syncDelivery(ctx, p.DeliveryNote)
	s.invalidate(ctx, p.DeliveryNote)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["status"] = string(p.Status)
	s.record(ctx, action, p.Name, meta)
	if s.observer != nil {
		s.observer.ParcelSaved(string(p.Status))
	}
}

func (s *Service) invalidate(ctx context.Context, noteName string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, listKey(noteName)); err != nil {
		s.logger.Warn("parcel cache invalidation failed", slog.String("delivery_note", noteName), slog.Any("error", err))
	}
}

func (s *Service) removeObject(ctx context.Context, att Attachment) {
	if s.store == nil || att.ObjectKey == "" {
		return
	}
	if err := s.store.Delete(ctx, att.ObjectKey); err != nil {
		s.logger.Warn("attachment removal failed", slog.String("parcel", att.Parcel), slog.String("key", att.ObjectKey), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action, name string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "parcel",
		EntityID: name,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.String("parcel", name), slog.Any("error", err))
	}
}
