package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/logistics/internal/inventory"
	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/rbac"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// ============================================================================
// MEMORY REPOSITORY
// ============================================================================

type memoryRepo struct {
	batches map[string]Batch
	notes   map[string]NoteState
	items   map[string][]NoteItem
	seq     int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		batches: make(map[string]Batch),
		notes:   make(map[string]NoteState),
		items:   make(map[string][]NoteItem),
	}
}

func (r *memoryRepo) addNote(name, status string, items ...NoteItem) {
	r.notes[name] = NoteState{Name: name, Status: status}
	for i := range items {
		items[i].DeliveryNote = name
	}
	r.items[name] = items
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	batches := make(map[string]Batch, len(r.batches))
	for k, v := range r.batches {
		batches[k] = v
	}
	notes := make(map[string]NoteState, len(r.notes))
	for k, v := range r.notes {
		notes[k] = v
	}
	if err := fn(ctx, r); err != nil {
		r.batches, r.notes = batches, notes
		return err
	}
	return nil
}

func (r *memoryRepo) GetBatch(_ context.Context, name string) (Batch, error) {
	b, ok := r.batches[name]
	if !ok {
		return Batch{}, ErrNotFound
	}
	b.DeliveryNotes = append([]string(nil), b.DeliveryNotes...)
	return b, nil
}

func (r *memoryRepo) NoteStates(_ context.Context, notes []string) (map[string]NoteState, error) {
	out := make(map[string]NoteState)
	for _, n := range notes {
		if s, ok := r.notes[n]; ok {
			out[n] = s
		}
	}
	return out, nil
}

func (r *memoryRepo) NoteItems(_ context.Context, notes []string) ([]NoteItem, error) {
	var out []NoteItem
	for _, n := range notes {
		out = append(out, r.items[n]...)
	}
	return out, nil
}

func (r *memoryRepo) NextName(context.Context) (string, error) {
	r.seq++
	return fmt.Sprintf("TB-%05d", r.seq), nil
}

func (r *memoryRepo) InsertBatch(_ context.Context, b *Batch) error {
	b.CreatedAt = time.Date(2024, 3, 5, 9, 0, r.seq, 0, time.UTC)
	b.UpdatedAt = b.CreatedAt
	r.batches[b.Name] = *b
	return nil
}

func (r *memoryRepo) UpdateBatch(_ context.Context, b *Batch) error {
	cur, ok := r.batches[b.Name]
	if !ok {
		return ErrNotFound
	}
	cur.FromWarehouse, cur.ToWarehouse, cur.DeliveryNotes = b.FromWarehouse, b.ToWarehouse, b.DeliveryNotes
	r.batches[b.Name] = cur
	return nil
}

func (r *memoryRepo) GetBatchForUpdate(ctx context.Context, name string) (Batch, error) {
	return r.GetBatch(ctx, name)
}

func (r *memoryRepo) ActiveBatchFor(_ context.Context, note, exclude string) (string, error) {
	for i := 1; i <= r.seq; i++ {
		name := fmt.Sprintf("TB-%05d", i)
		b, ok := r.batches[name]
		if !ok || name == exclude || b.DocStatus >= DocCancelled {
			continue
		}
		for _, n := range b.DeliveryNotes {
			if n == note {
				return name, nil
			}
		}
	}
	return "", nil
}

func (r *memoryRepo) SetPrepared(_ context.Context, notes []string, prepared bool) error {
	for _, n := range notes {
		s := r.notes[n]
		s.Prepared = prepared
		r.notes[n] = s
	}
	return nil
}

func (r *memoryRepo) SetDocStatus(_ context.Context, name string, status DocStatus) error {
	b := r.batches[name]
	b.DocStatus = status
	r.batches[name] = b
	return nil
}

func (r *memoryRepo) SetStockEntry(_ context.Context, name, entry string) error {
	b := r.batches[name]
	b.StockEntry = entry
	r.batches[name] = b
	return nil
}

func (r *memoryRepo) SetReturnEntry(_ context.Context, name, entry string) error {
	b := r.batches[name]
	b.ReturnEntry = entry
	r.batches[name] = b
	return nil
}

type recordingStock struct {
	inputs []inventory.EntryInput
	err    error
}

func (s *recordingStock) Transfer(_ context.Context, input inventory.EntryInput) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.inputs = append(s.inputs, input)
	return fmt.Sprintf("STE-%05d", len(s.inputs)), nil
}

// ============================================================================
// HELPERS
// ============================================================================

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func row(code, qty, uom string) NoteItem {
	return NoteItem{ItemCode: code, Qty: dec(qty), UOM: uom, StockUOM: "Unit", ConversionFactor: dec("1"), Rate: dec("2.5")}
}

func newTestService() (*Service, *memoryRepo, *recordingStock) {
	repo := newMemoryRepo()
	repo.addNote("DN-00001", ReadyStatus, row("ART-1", "3", "Unit"), row("ART-2", "1", "Box"))
	repo.addNote("DN-00002", ReadyStatus, row("ART-1", "2", "Unit"), row("ART-1", "4", "Box"))
	repo.addNote("DN-00003", "Draft", row("ART-3", "1", "Unit"))
	stock := &recordingStock{}
	svc := NewService(repo, stock, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, repo, stock
}

func request(notes ...string) SaveRequest {
	return SaveRequest{FromWarehouse: "Stores", ToWarehouse: "Preparation", DeliveryNotes: notes}
}

// ============================================================================
// TESTS
// ============================================================================

func TestSaveValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("empty table", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Create(ctx, request())
		assert.ErrorIs(t, err, ErrNoNotes)
	})

	t.Run("blank row", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Create(ctx, request("DN-00001", " "))
		assert.ErrorIs(t, err, ErrEmptyRow)
	})

	t.Run("duplicate row", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Create(ctx, request("DN-00001", "DN-00001"))
		require.Error(t, err)
		assert.ErrorIs(t, err, httpx.ErrValidation)
		assert.Contains(t, err.Error(), "DN-00001 is already added")
	})

	t.Run("note linked to another active batch", func(t *testing.T) {
		svc, _, _ := newTestService()
		first, err := svc.Create(ctx, request("DN-00001"))
		require.NoError(t, err)
		_, err = svc.Create(ctx, request("DN-00002", "DN-00001"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DN-00001")
		assert.Contains(t, err.Error(), first.Name)
	})

	t.Run("cancelled batch releases note", func(t *testing.T) {
		svc, repo, _ := newTestService()
		first, err := svc.Create(ctx, request("DN-00001"))
		require.NoError(t, err)
		require.NoError(t, repo.SetDocStatus(ctx, first.Name, DocCancelled))
		_, err = svc.Create(ctx, request("DN-00001"))
		assert.NoError(t, err)
	})

	t.Run("prepared note", func(t *testing.T) {
		svc, repo, _ := newTestService()
		require.NoError(t, repo.SetPrepared(ctx, []string{"DN-00002"}, true))
		_, err := svc.Create(ctx, request("DN-00002"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DN-00002 is already marked as transferred")
	})

	t.Run("same warehouse", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Create(ctx, SaveRequest{FromWarehouse: "Stores", ToWarehouse: "Stores", DeliveryNotes: []string{"DN-00001"}})
		assert.ErrorIs(t, err, ErrSameWarehouse)
	})

	t.Run("update excludes itself", func(t *testing.T) {
		svc, _, _ := newTestService()
		b, err := svc.Create(ctx, request("DN-00001"))
		require.NoError(t, err)
		updated, err := svc.Update(ctx, b.Name, request("DN-00001", "DN-00002"))
		require.NoError(t, err)
		assert.Equal(t, []string{"DN-00001", "DN-00002"}, updated.DeliveryNotes)
	})
}

func TestSubmitAndCancel(t *testing.T) {
	ctx := context.Background()
	svc, repo, stock := newTestService()

	b, err := svc.Create(ctx, request("DN-00001", "DN-00002"))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, b.Name)
	require.ErrorIs(t, err, httpx.ErrValidation)

	submitted, err := svc.Submit(ctx, b.Name)
	require.NoError(t, err)
	assert.Equal(t, DocSubmitted, submitted.DocStatus)
	assert.True(t, repo.notes["DN-00001"].Prepared)
	assert.True(t, repo.notes["DN-00002"].Prepared)

	_, err = svc.Update(ctx, b.Name, request("DN-00001"))
	assert.ErrorIs(t, err, ErrNotDraft)

	cancelled, err := svc.Cancel(ctx, b.Name)
	require.NoError(t, err)
	assert.Equal(t, DocCancelled, cancelled.DocStatus)
	assert.Equal(t, "STE-00001", cancelled.ReturnEntry)
	assert.False(t, repo.notes["DN-00001"].Prepared)
	assert.False(t, repo.notes["DN-00002"].Prepared)

	require.Len(t, stock.inputs, 1)
	reversal := stock.inputs[0]
	assert.Equal(t, "Preparation", reversal.FromWarehouse)
	assert.Equal(t, "Stores", reversal.ToWarehouse)
	assert.Equal(t, b.Name, reversal.RefName)
	require.Len(t, reversal.Items, 3)
	assert.Equal(t, "ART-1", reversal.Items[0].ItemCode)
	assert.Equal(t, "Unit", reversal.Items[0].UOM)
	assert.True(t, reversal.Items[0].Qty.Equal(dec("5")))
	assert.Equal(t, "ART-2", reversal.Items[1].ItemCode)
	assert.Equal(t, "ART-1", reversal.Items[2].ItemCode)
	assert.Equal(t, "Box", reversal.Items[2].UOM)
	assert.True(t, reversal.Items[2].Qty.Equal(dec("4")))
}

func TestCancelRefusedStockKeepsBatchSubmitted(t *testing.T) {
	ctx := context.Background()
	svc, repo, stock := newTestService()
	b, err := svc.Create(ctx, request("DN-00001"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, b.Name)
	require.NoError(t, err)

	stock.err = inventory.ErrNegativeStock
	_, err = svc.Cancel(ctx, b.Name)
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	assert.Equal(t, DocSubmitted, repo.batches[b.Name].DocStatus)
	assert.True(t, repo.notes["DN-00001"].Prepared)
}

func TestAutoTransferStock(t *testing.T) {
	ctx := context.Background()

	t.Run("requires submitted batch", func(t *testing.T) {
		svc, _, _ := newTestService()
		b, err := svc.Create(ctx, request("DN-00001"))
		require.NoError(t, err)
		_, err = svc.AutoTransferStock(ctx, b.Name)
		assert.ErrorIs(t, err, ErrNotSubmitted)
	})

	t.Run("rejects note not ready", func(t *testing.T) {
		svc, _, stock := newTestService()
		b, err := svc.Create(ctx, request("DN-00001", "DN-00003"))
		require.NoError(t, err)
		_, err = svc.Submit(ctx, b.Name)
		require.NoError(t, err)
		_, err = svc.AutoTransferStock(ctx, b.Name)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DN-00003 is not ready")
		assert.Empty(t, stock.inputs)
	})

	t.Run("creates consolidated forward entry", func(t *testing.T) {
		svc, repo, stock := newTestService()
		b, err := svc.Create(ctx, request("DN-00001", "DN-00002"))
		require.NoError(t, err)
		_, err = svc.Submit(ctx, b.Name)
		require.NoError(t, err)

		entry, err := svc.AutoTransferStock(ctx, b.Name)
		require.NoError(t, err)
		assert.Equal(t, "STE-00001", entry)
		assert.Equal(t, entry, repo.batches[b.Name].StockEntry)
		require.Len(t, stock.inputs, 1)
		assert.Equal(t, "Stores", stock.inputs[0].FromWarehouse)
		assert.Equal(t, "Preparation", stock.inputs[0].ToWarehouse)
		assert.Len(t, stock.inputs[0].Items, 3)
		assert.True(t, stock.inputs[0].Items[0].BasicRate.Equal(dec("2.5")))
	})
}

func TestConsolidate(t *testing.T) {
	items := Consolidate([]NoteItem{
		row("A", "1", "Unit"),
		row("B", "2", "Unit"),
		row("A", "3", "Unit"),
		row("A", "1", "Box"),
	})
	require.Len(t, items, 3)
	assert.True(t, items[0].Qty.Equal(dec("4")))
	assert.Equal(t, "B", items[1].ItemCode)
	assert.Equal(t, "Box", items[2].UOM)
}

func TestHandlerStockTransfer(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	b, err := svc.Create(ctx, request("DN-00001"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, b.Name)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, rbac.Middleware{Logger: logger})
	router := chi.NewRouter()
	router.Route("/api/transfers", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				perms := strings.Split(r.Header.Get("X-Perms"), ",")
				next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), "tester", perms)))
			})
		})
		h.MountRoutes(r)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/transfers/"+b.Name+"/stock-transfer", nil)
	req.Header.Set("X-Perms", shared.PermStockView)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/transfers/"+b.Name+"/stock-transfer", nil)
	req.Header.Set("X-Perms", shared.PermTransferManage)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"stock_entry":"STE-00001"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/transfers/TB-09999", nil)
	req.Header.Set("X-Perms", shared.PermTransferManage)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
