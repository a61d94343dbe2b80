// Package delivery manages delivery notes, the documents parcels and
// transfer batches are built from.
package delivery

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
)

// ============================================================================
// DELIVERY NOTE STATUS
// ============================================================================

// Status represents the lifecycle of a delivery note.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusToDeliver Status = "To Deliver"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusToDeliver, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanEdit reports whether items may still change.
func (s Status) CanEdit() bool {
	return s == StatusDraft
}

// CanSubmit reports whether the note may be released for delivery.
func (s Status) CanSubmit() bool {
	return s == StatusDraft
}

// CanComplete reports whether the note may be closed.
func (s Status) CanComplete() bool {
	return s == StatusToDeliver
}

// CanCancel reports whether the note may be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusDraft || s == StatusToDeliver
}

// ============================================================================
// DELIVERY NOTE ENTITY
// ============================================================================

// Note is a delivery document listing what a customer receives.
type Note struct {
	Name         string    `json:"name"`
	Customer     string    `json:"customer"`
	CustomerName string    `json:"customer_name"`
	PostingDate  time.Time `json:"posting_date"`
	Status       Status    `json:"status"`
	Prepared     bool      `json:"prepared"`
	ParcelCount  int       `json:"parcel_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Items        []Item    `json:"items,omitempty"`
}

// Item is one ordered row of a delivery note.
type Item struct {
	ID               int64           `json:"id"`
	Idx              int             `json:"idx"`
	ItemCode         string          `json:"item_code"`
	Description      string          `json:"description"`
	Qty              decimal.Decimal `json:"qty"`
	DeliveredQty     decimal.Decimal `json:"delivered_qty"`
	UOM              string          `json:"uom"`
	StockUOM         string          `json:"stock_uom"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	Rate             decimal.Decimal `json:"rate"`
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateRequest carries a new delivery note.
type CreateRequest struct {
	Customer     string        `json:"customer" validate:"required_without=CustomerName"`
	CustomerName string        `json:"customer_name"`
	PostingDate  *time.Time    `json:"posting_date"`
	Items        []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ItemRequest is one row of CreateRequest.
type ItemRequest struct {
	ItemCode         string          `json:"item_code" validate:"required"`
	Description      string          `json:"description"`
	Qty              decimal.Decimal `json:"qty"`
	UOM              string          `json:"uom"`
	StockUOM         string          `json:"stock_uom"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	Rate             decimal.Decimal `json:"rate"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Status   Status
	Customer string
	Limit    int
}

// ============================================================================
// ERRORS
// ============================================================================

var (
	// ErrNotFound indicates the delivery note does not exist.
	ErrNotFound = fmt.Errorf("delivery note: %w", httpx.ErrNotFound)
	// ErrInvalidStatus rejects a lifecycle change from the current status.
	ErrInvalidStatus = fmt.Errorf("delivery note: invalid status transition: %w", httpx.ErrConflict)
	// ErrPrepared rejects cancelling a note held by a submitted transfer batch.
	ErrPrepared = fmt.Errorf("delivery note is prepared in a transfer batch: %w", httpx.ErrConflict)
	// ErrHasParcels rejects deleting a note that still owns parcels.
	ErrHasParcels = fmt.Errorf("delivery note still has parcels: %w", httpx.ErrConflict)
	// ErrInvalidQuantity rejects non-positive ordered quantities.
	ErrInvalidQuantity = httpx.Invalid("item quantity must be positive")
)
