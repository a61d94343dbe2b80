package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
)

// PurposeMaterialTransfer moves stock between two warehouses.
const PurposeMaterialTransfer = "Material Transfer"

// DocStatus follows the draft/submitted/cancelled document lifecycle.
type DocStatus int

const (
	DocDraft     DocStatus = 0
	DocSubmitted DocStatus = 1
	DocCancelled DocStatus = 2
)

// MovementType enumerates ledger movements.
type MovementType string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement.
	MovementOut MovementType = "OUT"
)

// StockEntry is the header of a stock movement document.
type StockEntry struct {
	Name          string           `json:"name"`
	Purpose       string           `json:"purpose"`
	FromWarehouse string           `json:"from_warehouse"`
	ToWarehouse   string           `json:"to_warehouse"`
	DocStatus     DocStatus        `json:"docstatus"`
	RefType       string           `json:"ref_type,omitempty"`
	RefName       string           `json:"ref_name,omitempty"`
	Remarks       string           `json:"remarks,omitempty"`
	PostedAt      *time.Time       `json:"posted_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	Items         []StockEntryItem `json:"items"`
}

// StockEntryItem models each item moved by an entry.
type StockEntryItem struct {
	ID               int64           `json:"id"`
	Idx              int             `json:"idx"`
	ItemCode         string          `json:"item_code"`
	Qty              decimal.Decimal `json:"qty"`
	UOM              string          `json:"uom"`
	StockUOM         string          `json:"stock_uom"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	BasicRate        decimal.Decimal `json:"basic_rate"`
}

// StockQty is the quantity expressed in the stock unit.
func (i StockEntryItem) StockQty() decimal.Decimal {
	cf := i.ConversionFactor
	if !cf.IsPositive() {
		cf = decimal.NewFromInt(1)
	}
	return i.Qty.Mul(cf)
}

// Balance summarises stock of an item in a warehouse.
type Balance struct {
	Warehouse     string          `json:"warehouse"`
	ItemCode      string          `json:"item_code"`
	Qty           decimal.Decimal `json:"qty"`
	ValuationRate decimal.Decimal `json:"valuation_rate"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LedgerEntry describes one posted movement for stock reports.
type LedgerEntry struct {
	EntryName     string          `json:"stock_entry"`
	Movement      MovementType    `json:"movement"`
	Warehouse     string          `json:"warehouse"`
	ItemCode      string          `json:"item_code"`
	QtyIn         decimal.Decimal `json:"qty_in"`
	QtyOut        decimal.Decimal `json:"qty_out"`
	BalanceQty    decimal.Decimal `json:"balance_qty"`
	ValuationRate decimal.Decimal `json:"valuation_rate"`
	PostedAt      time.Time       `json:"posted_at"`
}

// EntryInput describes a stock entry to create.
type EntryInput struct {
	FromWarehouse string      `json:"from_warehouse" validate:"required"`
	ToWarehouse   string      `json:"to_warehouse" validate:"required"`
	RefType       string      `json:"ref_type"`
	RefName       string      `json:"ref_name"`
	Remarks       string      `json:"remarks" validate:"max=500"`
	Items         []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// ItemInput is one row of EntryInput.
type ItemInput struct {
	ItemCode         string          `json:"item_code" validate:"required"`
	Qty              decimal.Decimal `json:"qty"`
	UOM              string          `json:"uom"`
	StockUOM         string          `json:"stock_uom"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	BasicRate        decimal.Decimal `json:"basic_rate"`
}

// LedgerFilter filters ledger entries.
type LedgerFilter struct {
	Warehouse string
	ItemCode  string
	From      time.Time
	To        time.Time
	Limit     int
}

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = fmt.Errorf("inventory: negative stock not allowed: %w", httpx.ErrValidation)

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = httpx.Invalid("inventory: quantity must be positive")

// ErrSameWarehouse rejects a transfer into its own source.
var ErrSameWarehouse = httpx.Invalid("inventory: source and destination warehouse must differ")

// ErrEntryNotFound indicates a missing stock entry.
var ErrEntryNotFound = fmt.Errorf("stock entry: %w", httpx.ErrNotFound)

// ErrNotDraft rejects submitting an entry twice.
var ErrNotDraft = fmt.Errorf("stock entry is not a draft: %w", httpx.ErrConflict)

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("inventory balance not found")
