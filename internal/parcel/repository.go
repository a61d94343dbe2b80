package parcel

import (
	"context"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetNote(ctx context.Context, name string) (Note, error)
	Allocations(ctx context.Context, note, excludeParcel string) (map[string]decimal.Decimal, error)
	ListParcels(ctx context.Context, note string) ([]Summary, error)
	GetParcel(ctx context.Context, name string) (Parcel, error)
	StoredParcelCount(ctx context.Context, note string) (int, error)
	NotesWithParcels(ctx context.Context) ([]string, error)
	ListAttachments(ctx context.Context, parcel, filePrefix string) ([]Attachment, error)
	InsertAttachment(ctx context.Context, att Attachment) error
	DeleteAttachment(ctx context.Context, id string) error
	SetImage(ctx context.Context, parcel, image string) error
}

// TxRepository exposes the operations that must share a transaction. Callers
// lock the delivery note before touching its parcels.
type TxRepository interface {
	LockNote(ctx context.Context, name string) (Note, error)
	Allocations(ctx context.Context, note, excludeParcel string) (map[string]decimal.Decimal, error)
	NextParcelName(ctx context.Context) (string, error)
	InsertParcel(ctx context.Context, p *Parcel) error
	GetParcelForUpdate(ctx context.Context, name string) (Parcel, error)
	UpdateParcel(ctx context.Context, p *Parcel) error
	UpdateStatus(ctx context.Context, name string, status Status) error
	DeleteParcel(ctx context.Context, name string) ([]Attachment, error)
	ActiveParcelNames(ctx context.Context, note string) ([]string, error)
	SetSequence(ctx context.Context, parcel, sequence string) error
	SetParcelCount(ctx context.Context, note string, count int) error
	DeliveredByItem(ctx context.Context, note string) (map[string]decimal.Decimal, error)
	SetItemDelivered(ctx context.Context, itemID int64, qty decimal.Decimal) error
}
