package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, name string) (StockEntry, error)
	GetBalance(ctx context.Context, warehouse, itemCode string) (Balance, error)
	Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against posting the same entry twice.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	allowNeg    bool
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		allowNeg:    cfg.AllowNegativeStock,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var stockPrecision int32 = 6

// CreateStockEntry stores a draft material transfer.
func (s *Service) CreateStockEntry(ctx context.Context, input EntryInput) (*StockEntry, error) {
	from := strings.TrimSpace(input.FromWarehouse)
	to := strings.TrimSpace(input.ToWarehouse)
	if from == "" || to == "" {
		return nil, httpx.Invalid("inventory: source and destination warehouse required")
	}
	if from == to {
		return nil, ErrSameWarehouse
	}
	if len(input.Items) == 0 {
		return nil, httpx.Invalid("inventory: at least one item required")
	}
	entry := &StockEntry{
		Purpose:       PurposeMaterialTransfer,
		FromWarehouse: from,
		ToWarehouse:   to,
		DocStatus:     DocDraft,
		RefType:       input.RefType,
		RefName:       input.RefName,
		Remarks:       input.Remarks,
	}
	for i, in := range input.Items {
		if strings.TrimSpace(in.ItemCode) == "" {
			return nil, httpx.Invalidf("inventory: row %d: item code required", i+1)
		}
		if !in.Qty.IsPositive() {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, in.ItemCode, ErrInvalidQuantity)
		}
		item := StockEntryItem{
			Idx:              i + 1,
			ItemCode:         strings.TrimSpace(in.ItemCode),
			Qty:              in.Qty,
			UOM:              in.UOM,
			StockUOM:         in.StockUOM,
			ConversionFactor: in.ConversionFactor,
			BasicRate:        in.BasicRate,
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
		if item.BasicRate.IsNegative() {
			return nil, httpx.Invalidf("inventory: row %d: rate must be >= 0", i+1)
		}
		entry.Items = append(entry.Items, item)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		name, err := tx.NextEntryName(ctx)
		if err != nil {
			return err
		}
		entry.Name = name
		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "stock_entry.create", entry.Name, map[string]any{
		"from_warehouse": entry.FromWarehouse,
		"to_warehouse":   entry.ToWarehouse,
		"ref_name":       entry.RefName,
	})
	return entry, nil
}

// SubmitStockEntry posts an OUT movement on the source and an IN movement on
// the destination warehouse for every item.
func (s *Service) SubmitStockEntry(ctx context.Context, name string) (*StockEntry, error) {
	key := "stock_entry:submit:" + name
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, fmt.Errorf("%s: %w", name, ErrNotDraft)
			}
			return nil, err
		}
		insertedKey = true
	}

	var entry StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntryForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if entry.DocStatus != DocDraft {
			return fmt.Errorf("%s: %w", name, ErrNotDraft)
		}
		postedAt := s.now()
		for _, item := range entry.Items {
			qty := item.StockQty()
			rate, err := s.postMovement(ctx, tx, movement{
				entry:     name,
				warehouse: entry.FromWarehouse,
				itemCode:  item.ItemCode,
				qty:       qty.Neg(),
				at:        postedAt,
			})
			if err != nil {
				return err
			}
			if item.BasicRate.IsPositive() {
				rate = item.BasicRate
			}
			if _, err := s.postMovement(ctx, tx, movement{
				entry:     name,
				warehouse: entry.ToWarehouse,
				itemCode:  item.ItemCode,
				qty:       qty,
				rate:      rate,
				at:        postedAt,
			}); err != nil {
				return err
			}
		}
		if err := tx.MarkSubmitted(ctx, name, postedAt); err != nil {
			return err
		}
		entry.DocStatus = DocSubmitted
		entry.PostedAt = &postedAt
		return nil
	})
	if err != nil {
		if insertedKey {
			if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
				s.logger.Warn("idempotency rollback failed", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return nil, err
	}
	s.record(ctx, "stock_entry.submit", name, map[string]any{"items": len(entry.Items)})
	return &entry, nil
}

// Transfer creates and submits a material transfer, returning its name.
func (s *Service) Transfer(ctx context.Context, input EntryInput) (string, error) {
	entry, err := s.CreateStockEntry(ctx, input)
	if err != nil {
		return "", err
	}
	if _, err := s.SubmitStockEntry(ctx, entry.Name); err != nil {
		return "", fmt.Errorf("submit %s: %w", entry.Name, err)
	}
	return entry.Name, nil
}

// GetStockEntry retrieves a stock entry.
func (s *Service) GetStockEntry(ctx context.Context, name string) (StockEntry, error) {
	return s.repo.GetEntry(ctx, name)
}

// GetBalance returns the balance of an item in a warehouse; an item never
// moved there has a zero balance.
func (s *Service) GetBalance(ctx context.Context, warehouse, itemCode string) (Balance, error) {
	if warehouse == "" || itemCode == "" {
		return Balance{}, httpx.Invalid("inventory: warehouse and item required")
	}
	b, err := s.repo.GetBalance(ctx, warehouse, itemCode)
	if errors.Is(err, ErrBalanceNotFound) {
		return b, nil
	}
	return b, err
}

// Ledger lists ledger entries of an item in a warehouse.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	if filter.Warehouse == "" || filter.ItemCode == "" {
		return nil, httpx.Invalid("inventory: warehouse and item required")
	}
	return s.repo.Ledger(ctx, filter)
}

type movement struct {
	entry     string
	warehouse string
	itemCode  string
	qty       decimal.Decimal
	rate      decimal.Decimal
	at        time.Time
}

// postMovement applies one signed movement to the balance with moving
// average valuation and returns the rate it was valued at.
func (s *Service) postMovement(ctx context.Context, tx TxRepository, m movement) (decimal.Decimal, error) {
	if m.qty.IsZero() {
		return decimal.Zero, ErrInvalidQuantity
	}
	balance, err := tx.GetBalanceForUpdate(ctx, m.warehouse, m.itemCode)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return decimal.Zero, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{Warehouse: m.warehouse, ItemCode: m.itemCode}
	}
	newQty := balance.Qty.Add(m.qty)
	if !s.allowNeg && newQty.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s in %s: have %s, need %s: %w",
			m.itemCode, m.warehouse, balance.Qty.String(), m.qty.Neg().String(), ErrNegativeStock)
	}

	var rate, newRate decimal.Decimal
	if m.qty.IsPositive() {
		rate = m.rate
		if newQty.IsPositive() {
			total := balance.Qty.Mul(balance.ValuationRate).Add(m.qty.Mul(rate))
			newRate = total.DivRound(newQty, stockPrecision)
		}
	} else {
		rate = balance.ValuationRate
		if newQty.IsPositive() {
			newRate = balance.ValuationRate
		}
	}

	balance.Qty = newQty
	balance.ValuationRate = newRate
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return decimal.Zero, err
	}
	entry := LedgerEntry{
		EntryName:     m.entry,
		Movement:      MovementIn,
		Warehouse:     m.warehouse,
		ItemCode:      m.itemCode,
		QtyIn:         decimal.Max(m.qty, decimal.Zero),
		QtyOut:        decimal.Max(m.qty.Neg(), decimal.Zero),
		BalanceQty:    newQty,
		ValuationRate: newRate,
		PostedAt:      m.at,
	}
	if m.qty.IsNegative() {
		entry.Movement = MovementOut
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

func (s *Service) record(ctx context.Context, action, name string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "stock_entry",
		EntityID: name,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.String("stock_entry", name), slog.Any("error", err))
	}
}
