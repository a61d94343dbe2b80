package parcel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/platform/storage"
	"github.com/odyssey-erp/logistics/internal/shared"
)

type memoryState struct {
	notes       map[string]Note
	parcels     map[string]Parcel
	attachments []Attachment
	seq         int
	lineID      int64
	tick        int
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		notes:       make(map[string]Note, len(s.notes)),
		parcels:     make(map[string]Parcel, len(s.parcels)),
		attachments: append([]Attachment(nil), s.attachments...),
		seq:         s.seq,
		lineID:      s.lineID,
		tick:        s.tick,
	}
	for k, n := range s.notes {
		n.Items = append([]NoteItem(nil), n.Items...)
		out.notes[k] = n
	}
	for k, p := range s.parcels {
		p.Lines = append([]Line(nil), p.Lines...)
		out.parcels[k] = p
	}
	return out
}

type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
	base  time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: memoryState{notes: map[string]Note{}, parcels: map[string]Parcel{}},
		base:  time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (m *memoryRepo) addNote(name, customer string, items ...NoteItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range items {
		m.state.lineID++
		items[i].ID = m.state.lineID
	}
	m.state.notes[name] = Note{Name: name, Customer: customer, Items: items}
}

func item(code string, qty int64) NoteItem {
	return NoteItem{ItemCode: code, Description: "desc " + code, Qty: decimal.NewFromInt(qty), DeliveredQty: decimal.Zero}
}

func (m *memoryRepo) parcel(name string) Parcel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.parcels[name]
}

func (m *memoryRepo) note(name string) Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.notes[name]
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	working := m.state.clone()
	tx := &memoryTx{repo: m, state: &working}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = working
	return nil
}

func (m *memoryRepo) GetNote(_ context.Context, name string) (Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return getNote(&m.state, name)
}

func (m *memoryRepo) Allocations(_ context.Context, note, exclude string) (map[string]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return allocationsOf(&m.state, note, exclude), nil
}

func (m *memoryRepo) ListParcels(_ context.Context, note string) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Summary{}
	for _, p := range sortedParcels(&m.state, note, true) {
		out = append(out, Summary{Name: p.Name, Status: p.Status, Date: p.Date, Sequence: p.Sequence})
	}
	return out, nil
}

func (m *memoryRepo) GetParcel(_ context.Context, name string) (Parcel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return getParcel(&m.state, name)
}

func (m *memoryRepo) StoredParcelCount(_ context.Context, note string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.state.notes[note]
	if !ok {
		return 0, ErrNoteNotFound
	}
	return n.ParcelCount, nil
}

func (m *memoryRepo) NotesWithParcels(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, p := range m.state.parcels {
		if !seen[p.DeliveryNote] {
			seen[p.DeliveryNote] = true
			out = append(out, p.DeliveryNote)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryRepo) ListAttachments(_ context.Context, parcel, prefix string) ([]Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attachment
	for _, a := range m.state.attachments {
		if a.Parcel == parcel && strings.HasPrefix(a.FileName, prefix) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryRepo) InsertAttachment(_ context.Context, att Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.attachments = append(m.state.attachments, att)
	return nil
}

func (m *memoryRepo) DeleteAttachment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.state.attachments[:0]
	for _, a := range m.state.attachments {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	m.state.attachments = kept
	return nil
}

func (m *memoryRepo) SetImage(_ context.Context, parcel, image string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.parcels[parcel]
	if !ok {
		return ErrNotFound
	}
	p.Image = image
	m.state.parcels[parcel] = p
	return nil
}

type memoryTx struct {
	repo  *memoryRepo
	state *memoryState
}

func (t *memoryTx) LockNote(_ context.Context, name string) (Note, error) {
	return getNote(t.state, name)
}

func (t *memoryTx) Allocations(_ context.Context, note, exclude string) (map[string]decimal.Decimal, error) {
	return allocationsOf(t.state, note, exclude), nil
}

func (t *memoryTx) NextParcelName(context.Context) (string, error) {
	t.state.seq++
	return fmt.Sprintf("COL-%06d", t.state.seq), nil
}

func (t *memoryTx) InsertParcel(_ context.Context, p *Parcel) error {
	if _, exists := t.state.parcels[p.Name]; exists {
		return httpx.ErrDuplicate
	}
	t.state.tick++
	p.CreatedAt = t.repo.base.Add(time.Duration(t.state.tick) * time.Minute)
	p.UpdatedAt = p.CreatedAt
	for i := range p.Lines {
		t.state.lineID++
		p.Lines[i].ID = t.state.lineID
		p.Lines[i].Idx = i + 1
	}
	stored := *p
	stored.Lines = append([]Line(nil), p.Lines...)
	t.state.parcels[p.Name] = stored
	return nil
}

func (t *memoryTx) GetParcelForUpdate(_ context.Context, name string) (Parcel, error) {
	return getParcel(t.state, name)
}

func (t *memoryTx) UpdateParcel(_ context.Context, p *Parcel) error {
	cur, ok := t.state.parcels[p.Name]
	if !ok {
		return ErrNotFound
	}
	for i := range p.Lines {
		if p.Lines[i].ID == 0 {
			t.state.lineID++
			p.Lines[i].ID = t.state.lineID
		}
		p.Lines[i].Idx = i + 1
	}
	stored := *p
	stored.CreatedAt = cur.CreatedAt
	stored.Lines = append([]Line(nil), p.Lines...)
	t.state.parcels[p.Name] = stored
	return nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, name string, status Status) error {
	p, ok := t.state.parcels[name]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	t.state.parcels[name] = p
	return nil
}

func (t *memoryTx) DeleteParcel(_ context.Context, name string) ([]Attachment, error) {
	if _, ok := t.state.parcels[name]; !ok {
		return nil, ErrNotFound
	}
	delete(t.state.parcels, name)
	var removed, kept []Attachment
	for _, a := range t.state.attachments {
		if a.Parcel == name {
			removed = append(removed, a)
		} else {
			kept = append(kept, a)
		}
	}
	t.state.attachments = kept
	return removed, nil
}

func (t *memoryTx) ActiveParcelNames(_ context.Context, note string) ([]string, error) {
	var out []string
	for _, p := range sortedParcels(t.state, note, false) {
		out = append(out, p.Name)
	}
	return out, nil
}

func (t *memoryTx) SetSequence(_ context.Context, parcel, sequence string) error {
	p := t.state.parcels[parcel]
	p.Sequence = sequence
	t.state.parcels[parcel] = p
	return nil
}

func (t *memoryTx) SetParcelCount(_ context.Context, note string, count int) error {
	n, ok := t.state.notes[note]
	if !ok {
		return ErrNoteNotFound
	}
	n.ParcelCount = count
	t.state.notes[note] = n
	return nil
}

func (t *memoryTx) DeliveredByItem(_ context.Context, note string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, p := range sortedParcels(t.state, note, false) {
		for _, l := range p.Lines {
			out[l.ItemCode] = out[l.ItemCode].Add(l.DeliveredQty)
		}
	}
	return out, nil
}

func (t *memoryTx) SetItemDelivered(_ context.Context, itemID int64, qty decimal.Decimal) error {
	for name, n := range t.state.notes {
		for i := range n.Items {
			if n.Items[i].ID == itemID {
				n.Items[i].DeliveredQty = qty
				t.state.notes[name] = n
				return nil
			}
		}
	}
	return ErrNoteNotFound
}

func getNote(s *memoryState, name string) (Note, error) {
	n, ok := s.notes[name]
	if !ok {
		return Note{}, ErrNoteNotFound
	}
	n.Items = append([]NoteItem(nil), n.Items...)
	return n, nil
}

func getParcel(s *memoryState, name string) (Parcel, error) {
	p, ok := s.parcels[name]
	if !ok {
		return Parcel{}, ErrNotFound
	}
	p.Lines = append([]Line(nil), p.Lines...)
	return p, nil
}

func sortedParcels(s *memoryState, note string, includeCancelled bool) []Parcel {
	var out []Parcel
	for _, p := range s.parcels {
		if p.DeliveryNote != note {
			continue
		}
		if !includeCancelled && p.Status == StatusCancelled {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func allocationsOf(s *memoryState, note, exclude string) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, p := range sortedParcels(s, note, false) {
		if p.Name == exclude {
			continue
		}
		for _, l := range p.Lines {
			out[l.ItemCode] = out[l.ItemCode].Add(l.TotalQty)
		}
	}
	return out
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (s *memoryStore) Put(_ context.Context, key, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

type recordingPublisher struct {
	events []Deleted
}

func (p *recordingPublisher) PublishDeleted(_ context.Context, evt Deleted) error {
	p.events = append(p.events, evt)
	return nil
}
