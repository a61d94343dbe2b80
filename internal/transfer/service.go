package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/inventory"
	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// StockPort creates and submits material transfers.
type StockPort interface {
	Transfer(ctx context.Context, input inventory.EntryInput) (string, error)
}

// AuditPort records batch changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards the reversing entry of a cancellation.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service implements the transfer batch lifecycle.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the transfer service.
func NewService(repo RepositoryPort, stock StockPort, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, audit: audit, idempotency: idem, logger: logger, now: time.Now}
}

// Get returns a batch.
func (s *Service) Get(ctx context.Context, name string) (Batch, error) {
	return s.repo.GetBatch(ctx, name)
}

// Create validates and stores a new draft batch.
func (s *Service) Create(ctx context.Context, req SaveRequest) (Batch, error) {
	return s.save(ctx, "", req)
}

// Update validates and replaces a draft batch.
func (s *Service) Update(ctx context.Context, name string, req SaveRequest) (Batch, error) {
	return s.save(ctx, name, req)
}

func (s *Service) save(ctx context.Context, name string, req SaveRequest) (Batch, error) {
	batch := Batch{
		Name:          name,
		FromWarehouse: strings.TrimSpace(req.FromWarehouse),
		ToWarehouse:   strings.TrimSpace(req.ToWarehouse),
		DocStatus:     DocDraft,
		DeliveryNotes: make([]string, 0, len(req.DeliveryNotes)),
	}
	for _, note := range req.DeliveryNotes {
		batch.DeliveryNotes = append(batch.DeliveryNotes, strings.TrimSpace(note))
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if name != "" {
			cur, err := tx.GetBatchForUpdate(ctx, name)
			if err != nil {
				return err
			}
			if cur.DocStatus != DocDraft {
				return fmt.Errorf("%s: %w", name, ErrNotDraft)
			}
			batch.CreatedAt = cur.CreatedAt
		}
		if err := validate(ctx, tx, batch); err != nil {
			return err
		}
		if name != "" {
			return tx.UpdateBatch(ctx, &batch)
		}
		next, err := tx.NextName(ctx)
		if err != nil {
			return err
		}
		batch.Name = next
		return tx.InsertBatch(ctx, &batch)
	})
	if err != nil {
		return Batch{}, err
	}
	action := "transfer.update"
	if name == "" {
		action = "transfer.create"
	}
	s.record(ctx, action, batch.Name, map[string]any{"delivery_notes": batch.DeliveryNotes})
	return batch, nil
}

// validate enforces the batch rules: at least one filled and unique delivery
// note row, none claimed by another active batch and none already prepared.
func validate(ctx context.Context, tx TxRepository, b Batch) error {
	if b.FromWarehouse == b.ToWarehouse {
		return ErrSameWarehouse
	}
	if len(b.DeliveryNotes) == 0 {
		return ErrNoNotes
	}
	seen := make(map[string]struct{}, len(b.DeliveryNotes))
	for _, note := range b.DeliveryNotes {
		if note == "" {
			return ErrEmptyRow
		}
		if _, dup := seen[note]; dup {
			return httpx.Invalidf("delivery note %s is already added to this transfer", note)
		}
		seen[note] = struct{}{}
	}

	states, err := tx.NoteStates(ctx, b.DeliveryNotes)
	if err != nil {
		return err
	}
	for _, note := range b.DeliveryNotes {
		other, err := tx.ActiveBatchFor(ctx, note, b.Name)
		if err != nil {
			return err
		}
		if other != "" {
			return httpx.Invalidf("delivery note %s is already linked to transfer %s", note, other)
		}
		state, ok := states[note]
		if !ok {
			return httpx.Invalidf("delivery note %s not found", note)
		}
		if state.Prepared {
			return httpx.Invalidf("delivery note %s is already marked as transferred for preparation", note)
		}
	}
	return nil
}

// Submit validates the batch again and flags its delivery notes as prepared.
func (s *Service) Submit(ctx context.Context, name string) (Batch, error) {
	var batch Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		batch, err = tx.GetBatchForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if batch.DocStatus != DocDraft {
			return fmt.Errorf("%s: %w", name, ErrNotDraft)
		}
		if err := validate(ctx, tx, batch); err != nil {
			return err
		}
		if err := tx.SetPrepared(ctx, batch.DeliveryNotes, true); err != nil {
			return err
		}
		if err := tx.SetDocStatus(ctx, name, DocSubmitted); err != nil {
			return err
		}
		batch.DocStatus = DocSubmitted
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	for _, note := range batch.DeliveryNotes {
		s.logger.Info("delivery note marked as prepared", slog.String("delivery_note", note), slog.String("batch", name))
	}
	s.record(ctx, "transfer.submit", name, map[string]any{"delivery_notes": batch.DeliveryNotes})
	return batch, nil
}

// Cancel returns the goods of a submitted batch to the source warehouse and
// releases its delivery notes. The reversing stock entry is posted first so
// that a refused movement leaves the batch submitted.
func (s *Service) Cancel(ctx context.Context, name string) (Batch, error) {
	batch, err := s.repo.GetBatch(ctx, name)
	if err != nil {
		return Batch{}, err
	}
	if batch.DocStatus != DocSubmitted {
		return Batch{}, httpx.Invalidf("transfer %s must be submitted to be cancelled", name)
	}
	if len(batch.DeliveryNotes) == 0 {
		return Batch{}, httpx.Invalid("no delivery note in this transfer")
	}

	key := "transfer:cancel:" + name
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "transfer"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Batch{}, fmt.Errorf("transfer %s is already being cancelled: %w", name, httpx.ErrConflict)
			}
			return Batch{}, err
		}
	}
	release := func() {
		if s.idempotency == nil {
			return
		}
		if err := s.idempotency.Delete(ctx, key); err != nil {
			s.logger.Warn("idempotency rollback failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	items, err := s.repo.NoteItems(ctx, batch.DeliveryNotes)
	if err != nil {
		release()
		return Batch{}, err
	}
	entry, err := s.stock.Transfer(ctx, inventory.EntryInput{
		FromWarehouse: batch.ToWarehouse,
		ToWarehouse:   batch.FromWarehouse,
		RefType:       "Transfer Batch",
		RefName:       name,
		Remarks:       "return of cancelled transfer " + name,
		Items:         Consolidate(items),
	})
	if err != nil {
		release()
		return Batch{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.GetBatchForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if cur.DocStatus != DocSubmitted {
			return fmt.Errorf("transfer %s changed while cancelling: %w", name, httpx.ErrConflict)
		}
		if err := tx.SetPrepared(ctx, cur.DeliveryNotes, false); err != nil {
			return err
		}
		if err := tx.SetDocStatus(ctx, name, DocCancelled); err != nil {
			return err
		}
		if err := tx.SetReturnEntry(ctx, name, entry); err != nil {
			return err
		}
		batch = cur
		return nil
	})
	if err != nil {
		s.logger.Error("transfer cancel failed after posting return entry",
			slog.String("batch", name), slog.String("stock_entry", entry), slog.Any("error", err))
		return Batch{}, err
	}
	batch.DocStatus = DocCancelled
	batch.ReturnEntry = entry
	s.logger.Info("transfer returned to source warehouse", slog.String("batch", name), slog.String("stock_entry", entry))
	s.record(ctx, "transfer.cancel", name, map[string]any{"stock_entry": entry})
	return batch, nil
}

// AutoTransferStock moves the consolidated goods of a submitted batch from
// its source to its destination warehouse and returns the stock entry name.
func (s *Service) AutoTransferStock(ctx context.Context, name string) (string, error) {
	batch, err := s.repo.GetBatch(ctx, name)
	if err != nil {
		return "", err
	}
	if batch.DocStatus != DocSubmitted {
		return "", ErrNotSubmitted
	}
	if len(batch.DeliveryNotes) == 0 {
		return "", httpx.Invalid("no delivery note to transfer")
	}
	states, err := s.repo.NoteStates(ctx, batch.DeliveryNotes)
	if err != nil {
		return "", err
	}
	for _, note := range batch.DeliveryNotes {
		if states[note].Status != ReadyStatus {
			return "", httpx.Invalidf("delivery note %s is not ready for transfer", note)
		}
	}
	items, err := s.repo.NoteItems(ctx, batch.DeliveryNotes)
	if err != nil {
		return "", err
	}
	entry, err := s.stock.Transfer(ctx, inventory.EntryInput{
		FromWarehouse: batch.FromWarehouse,
		ToWarehouse:   batch.ToWarehouse,
		RefType:       "Transfer Batch",
		RefName:       name,
		Items:         Consolidate(items),
	})
	if err != nil {
		return "", err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetStockEntry(ctx, name, entry)
	})
	if err != nil {
		s.logger.Warn("record stock entry on transfer failed", slog.String("batch", name), slog.String("stock_entry", entry), slog.Any("error", err))
	}
	s.logger.Info("stock transfer created", slog.String("batch", name), slog.String("stock_entry", entry))
	s.record(ctx, "transfer.stock_transfer", name, map[string]any{"stock_entry": entry})
	return entry, nil
}

// Consolidate sums quantities per (item code, unit) in order of first
// appearance. Stock unit, conversion factor and rate come from the first row.
func Consolidate(items []NoteItem) []inventory.ItemInput {
	type key struct{ code, uom string }
	index := make(map[key]int)
	out := make([]inventory.ItemInput, 0, len(items))
	for _, it := range items {
		k := key{it.ItemCode, it.UOM}
		if i, ok := index[k]; ok {
			out[i].Qty = out[i].Qty.Add(it.Qty)
			continue
		}
		index[k] = len(out)
		out = append(out, inventory.ItemInput{
			ItemCode:         it.ItemCode,
			Qty:              it.Qty,
			UOM:              it.UOM,
			StockUOM:         it.StockUOM,
			ConversionFactor: it.ConversionFactor,
			BasicRate:        decimal.Max(it.Rate, decimal.Zero),
		})
	}
	return out
}

func (s *Service) record(ctx context.Context, action, name string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "transfer_batch",
		EntityID: name,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.String("batch", name), slog.Any("error", err))
	}
}
