// Package transfer groups delivery notes into warehouse transfer batches and
// generates the stock entries that move their goods.
package transfer

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
)

// DocStatus follows the draft/submitted/cancelled document lifecycle.
type DocStatus int

const (
	DocDraft     DocStatus = 0
	DocSubmitted DocStatus = 1
	DocCancelled DocStatus = 2
)

// ReadyStatus is the delivery note status required before goods move.
const ReadyStatus = "To Deliver"

// Batch moves the goods of several delivery notes between two warehouses.
type Batch struct {
	Name          string    `json:"name"`
	FromWarehouse string    `json:"from_warehouse"`
	ToWarehouse   string    `json:"to_warehouse"`
	DocStatus     DocStatus `json:"docstatus"`
	StockEntry    string    `json:"stock_entry,omitempty"`
	ReturnEntry   string    `json:"return_entry,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DeliveryNotes []string  `json:"delivery_notes"`
}

// NoteState is what validation needs to know about a delivery note.
type NoteState struct {
	Name     string
	Status   string
	Prepared bool
}

// NoteItem is a delivery note row to be moved.
type NoteItem struct {
	DeliveryNote     string
	ItemCode         string
	Qty              decimal.Decimal
	UOM              string
	StockUOM         string
	ConversionFactor decimal.Decimal
	Rate             decimal.Decimal
}

// SaveRequest creates or updates a draft batch.
type SaveRequest struct {
	FromWarehouse string   `json:"from_warehouse" validate:"required"`
	ToWarehouse   string   `json:"to_warehouse" validate:"required"`
	DeliveryNotes []string `json:"delivery_notes"`
}

var (
	// ErrNotFound indicates the batch does not exist.
	ErrNotFound = fmt.Errorf("transfer batch: %w", httpx.ErrNotFound)
	// ErrNoNotes rejects a batch without delivery notes.
	ErrNoNotes = httpx.Invalid("the delivery note table cannot be empty")
	// ErrEmptyRow rejects a row without a delivery note.
	ErrEmptyRow = httpx.Invalid("every delivery note row must be filled in")
	// ErrSameWarehouse rejects a transfer into its own source.
	ErrSameWarehouse = httpx.Invalid("source and destination warehouse must differ")
	// ErrNotDraft rejects editing or submitting a batch that left draft.
	ErrNotDraft = fmt.Errorf("transfer batch is not a draft: %w", httpx.ErrConflict)
	// ErrNotSubmitted rejects actions that need a submitted batch.
	ErrNotSubmitted = httpx.Invalid("the transfer must be submitted before generating a stock transfer")
)
