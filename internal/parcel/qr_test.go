package parcel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestRenderQRGrowsWithPayload(t *testing.T) {
	short, err := RenderQR("https://erp.example.com/frontend/colis/COL-000001")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(short, pngMagic))

	long, err := RenderQR("https://erp.example.com/frontend/colis/" + strings.Repeat("X", 600))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(long, pngMagic))
}

func TestIssueQRReplacesPrevious(t *testing.T) {
	svc, repo := newTestService(t)
	store := newMemoryStore()
	svc.store = store
	repo.addNote("DN-1", "ACME", item("A", 1))
	p := mustCreate(t, svc, "DN-1")

	atts, err := repo.ListAttachments(context.Background(), p.Name, qrFilePrefix)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	first := atts[0]
	assert.Equal(t, "qr_code_"+p.Name+".png", first.FileName)
	assert.Equal(t, first.ObjectKey, repo.parcel(p.Name).Image)

	var info qrInfo
	require.NoError(t, json.Unmarshal(first.Meta, &info))
	assert.Equal(t, "https://erp.example.com/frontend/colis/"+p.Name, info.URL)
	assert.Equal(t, "https://erp.example.com/app/colis/"+p.Name, info.AppURL)
	assert.Equal(t, "ACME", info.Client)
	assert.Equal(t, "2024-03-05", info.Date)

	_, err = svc.IssueQR(context.Background(), p.Name)
	require.NoError(t, err)

	atts, err = repo.ListAttachments(context.Background(), p.Name, qrFilePrefix)
	require.NoError(t, err)
	require.Len(t, atts, 1, "regeneration replaces instead of appending")
	assert.NotEqual(t, first.ID, atts[0].ID)
	assert.Equal(t, 1, store.len())
	assert.Equal(t, atts[0].ObjectKey, repo.parcel(p.Name).Image)
}

func TestIssueQRKeepsCurrentImageWhenUploadFails(t *testing.T) {
	svc, repo := newTestService(t)
	store := newMemoryStore()
	svc.store = store
	repo.addNote("DN-1", "ACME", item("A", 1))
	p := mustCreate(t, svc, "DN-1")
	key := repo.parcel(p.Name).Image
	require.NotEmpty(t, key)

	store.putErr = errors.New("bucket unavailable")
	_, err := svc.IssueQR(context.Background(), p.Name)
	require.ErrorIs(t, err, store.putErr)

	assert.Equal(t, key, repo.parcel(p.Name).Image)
	atts, err := repo.ListAttachments(context.Background(), p.Name, qrFilePrefix)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, key, atts[0].ObjectKey)

	store.putErr = nil
	data, err := svc.DownloadQR(context.Background(), p.Name)
	require.NoError(t, err)
	assert.Equal(t, store.objects[key], data)
}

func TestDownloadQRServesStoredImage(t *testing.T) {
	svc, repo := newTestService(t)
	store := newMemoryStore()
	svc.store = store
	repo.addNote("DN-1", "ACME", item("A", 1))
	p := mustCreate(t, svc, "DN-1")
	key := repo.parcel(p.Name).Image

	data, err := svc.DownloadQR(context.Background(), p.Name)
	require.NoError(t, err)
	assert.Equal(t, store.objects[key], data)
	assert.Equal(t, key, repo.parcel(p.Name).Image)
}

func TestDownloadQRRegeneratesMissingImage(t *testing.T) {
	svc, repo := newTestService(t)
	store := newMemoryStore()
	svc.store = store
	repo.addNote("DN-1", "ACME", item("A", 1))
	p := mustCreate(t, svc, "DN-1")
	oldKey := repo.parcel(p.Name).Image
	require.NoError(t, store.Delete(context.Background(), oldKey))

	data, err := svc.DownloadQR(context.Background(), p.Name)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
	newKey := repo.parcel(p.Name).Image
	assert.NotEqual(t, oldKey, newKey)
	assert.Equal(t, 1, store.len())
}

func TestDownloadQRWithoutStorageRenders(t *testing.T) {
	svc, repo := newTestService(t)
	repo.addNote("DN-1", "ACME", item("A", 1))
	p := mustCreate(t, svc, "DN-1")

	data, err := svc.DownloadQR(context.Background(), p.Name)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
	assert.Empty(t, repo.parcel(p.Name).Image)
}

func TestDownloadQRConcurrent(t *testing.T) {
	svc, repo := newTestService(t)
	store := newMemoryStore()
	svc.store = store
	repo.addNote("DN-1", "ACME", item("A", 1))
	p := mustCreate(t, svc, "DN-1")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.DownloadQR(context.Background(), p.Name)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	atts, err := repo.ListAttachments(context.Background(), p.Name, qrFilePrefix)
	require.NoError(t, err)
	assert.Len(t, atts, 1)
}

func TestDownloadQRUnknownParcel(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.DownloadQR(context.Background(), "COL-404")
	assert.ErrorIs(t, err, ErrNotFound)
}
