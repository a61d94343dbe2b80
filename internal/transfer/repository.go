package transfer

import (
	"context"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBatch(ctx context.Context, name string) (Batch, error)
	NoteStates(ctx context.Context, notes []string) (map[string]NoteState, error)
	NoteItems(ctx context.Context, notes []string) ([]NoteItem, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextName(ctx context.Context) (string, error)
	InsertBatch(ctx context.Context, batch *Batch) error
	UpdateBatch(ctx context.Context, batch *Batch) error
	GetBatchForUpdate(ctx context.Context, name string) (Batch, error)
	// ActiveBatchFor returns the draft or submitted batch other than exclude
	// that references note, or "".
	ActiveBatchFor(ctx context.Context, note, exclude string) (string, error)
	NoteStates(ctx context.Context, notes []string) (map[string]NoteState, error)
	SetPrepared(ctx context.Context, notes []string, prepared bool) error
	SetDocStatus(ctx context.Context, name string, status DocStatus) error
	SetStockEntry(ctx context.Context, name, entry string) error
	SetReturnEntry(ctx context.Context, name, entry string) error
}
