// Package parcel manages the physical packages ("colis") prepared from a
// delivery note: allocation of ordered quantities, per-line delivery tracking,
// the status machine, QR labels and sequence numbering.
package parcel

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
)

// Status is the lifecycle state of a parcel.
type Status string

const (
	StatusNew                Status = "New"
	StatusPrepared           Status = "Prepared"
	StatusPickedUp           Status = "Picked Up"
	StatusPartiallyDelivered Status = "Partially Delivered"
	StatusDelivered          Status = "Delivered"
	StatusCancelled          Status = "Cancelled"
	StatusNotDelivered       Status = "Not Delivered"
)

// LineStatus is the delivery state of one article inside a parcel.
type LineStatus string

const (
	LinePending            LineStatus = "Pending"
	LinePartiallyDelivered LineStatus = "Partially Delivered"
	LineDelivered          LineStatus = "Delivered"
	LineUndeliverable      LineStatus = "Undeliverable"
)

// Parcel is one physical package derived from a delivery note.
type Parcel struct {
	Name         string    `json:"name"`
	DeliveryNote string    `json:"delivery_note"`
	Client       string    `json:"client"`
	Date         time.Time `json:"date"`
	Status       Status    `json:"status"`
	Sequence     string    `json:"sequence"`
	Image        string    `json:"image,omitempty"`
	Lines        []Line    `json:"lines"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Line is one article allocation within a parcel.
type Line struct {
	ID              int64           `json:"id"`
	Idx             int             `json:"idx"`
	ItemCode        string          `json:"item_code"`
	Description     string          `json:"description"`
	TotalQty        decimal.Decimal `json:"total_qty"`
	DeliveredQty    decimal.Decimal `json:"delivered_qty"`
	RemainingQty    decimal.Decimal `json:"remaining_qty"`
	Status          LineStatus      `json:"status"`
	LastDeliveredAt *time.Time      `json:"last_delivered_at,omitempty"`
}

// Summary is the list representation of a parcel.
type Summary struct {
	Name     string    `json:"name"`
	Status   Status    `json:"status"`
	Date     time.Time `json:"date"`
	Sequence string    `json:"sequence"`
}

// LineSnapshot is returned after a line action so clients can refresh one row.
type LineSnapshot struct {
	TotalQty     decimal.Decimal `json:"total_qty"`
	DeliveredQty decimal.Decimal `json:"delivered_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	Status       LineStatus      `json:"status"`
}

// UnpackedItem reports what is left to pack for one item code.
type UnpackedItem struct {
	ItemCode     string          `json:"item_code"`
	Description  string          `json:"description"`
	TotalQty     decimal.Decimal `json:"total_qty"`
	PackedQty    decimal.Decimal `json:"packed_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
}

// Note is the part of a delivery note that parcels depend on.
type Note struct {
	Name         string
	Customer     string
	CustomerName string
	ParcelCount  int
	Items        []NoteItem
}

// NoteItem is one ordered row of a delivery note.
type NoteItem struct {
	ID           int64
	ItemCode     string
	Description  string
	Qty          decimal.Decimal
	DeliveredQty decimal.Decimal
}

// Client returns the customer reference copied onto new parcels.
func (n Note) Client() string {
	if n.Customer != "" {
		return n.Customer
	}
	return n.CustomerName
}

// Ordered sums ordered quantities per item code, keeping the first-seen order.
func (n Note) Ordered() []NoteItem {
	index := make(map[string]int, len(n.Items))
	out := make([]NoteItem, 0, len(n.Items))
	for _, item := range n.Items {
		if i, ok := index[item.ItemCode]; ok {
			out[i].Qty = out[i].Qty.Add(item.Qty)
			continue
		}
		index[item.ItemCode] = len(out)
		out = append(out, NoteItem{ItemCode: item.ItemCode, Description: item.Description, Qty: item.Qty})
	}
	return out
}

// Attachment is a stored file linked to a parcel.
type Attachment struct {
	ID          string
	Parcel      string
	FileName    string
	ObjectKey   string
	ContentType string
	Size        int64
	Meta        []byte
	CreatedAt   time.Time
}

// UpdateInput carries a full parcel save.
type UpdateInput struct {
	Client *string     `json:"client"`
	Date   *time.Time  `json:"date"`
	Lines  []LineInput `json:"lines" validate:"dive"`
}

// LineInput is one line of a full parcel save. Lines without ID are appended.
type LineInput struct {
	ID           int64           `json:"id"`
	ItemCode     string          `json:"item_code" validate:"required"`
	Description  string          `json:"description"`
	TotalQty     decimal.Decimal `json:"total_qty"`
	DeliveredQty decimal.Decimal `json:"delivered_qty"`
}

// Tracking is the public read-only view reached from the QR code.
type Tracking struct {
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Sequence string         `json:"sequence"`
	Client   string         `json:"client"`
	Date     time.Time      `json:"date"`
	Lines    []TrackingLine `json:"lines"`
}

// TrackingLine hides internal identifiers from the public view.
type TrackingLine struct {
	ItemCode     string          `json:"item_code"`
	Description  string          `json:"description"`
	TotalQty     decimal.Decimal `json:"total_qty"`
	DeliveredQty decimal.Decimal `json:"delivered_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	Status       LineStatus      `json:"status"`
}

var (
	// ErrNotFound indicates the parcel does not exist.
	ErrNotFound = fmt.Errorf("parcel: %w", httpx.ErrNotFound)
	// ErrNoteNotFound indicates the delivery note does not exist.
	ErrNoteNotFound = fmt.Errorf("delivery note: %w", httpx.ErrNotFound)
	// ErrNonPositiveQuantity rejects deliveries of zero or negative quantities.
	ErrNonPositiveQuantity = httpx.Invalid("quantity to deliver must be positive")
	// ErrNothingRemaining rejects deliver-remaining on a fully delivered line.
	ErrNothingRemaining = httpx.Invalid("no remaining quantity to deliver")
	// ErrExceedsRemaining is matched by every ExceedsRemainingError.
	ErrExceedsRemaining = errors.New("delivery exceeds remaining quantity")
	// ErrInvalidLine rejects malformed line input on save.
	ErrInvalidLine = httpx.Invalid("line quantities must be non-negative and total must be positive")
)

// ExceedsRemainingError reports the remaining quantity as it was before the
// rejected delivery.
type ExceedsRemainingError struct {
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *ExceedsRemainingError) Error() string {
	return fmt.Sprintf("cannot deliver %s, remaining quantity: %s", e.Requested.String(), e.Remaining.String())
}

// Is matches ErrExceedsRemaining and httpx.ErrValidation.
func (e *ExceedsRemainingError) Is(target error) bool {
	return target == ErrExceedsRemaining || target == httpx.ErrValidation
}

// OverAllocationError is returned when a save would pack more than ordered.
type OverAllocationError struct {
	ItemCode string
	Packed   decimal.Decimal
	Here     decimal.Decimal
	Ordered  decimal.Decimal
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("quantity too high for item %q: %s already packed + %s here > %s on the delivery note",
		e.ItemCode, e.Packed.String(), e.Here.String(), e.Ordered.String())
}

// Is matches httpx.ErrValidation.
func (e *OverAllocationError) Is(target error) bool {
	return target == httpx.ErrValidation
}
