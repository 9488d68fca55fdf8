package service

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"stockledger-api/internal/guard"
	"stockledger-api/internal/model"
	"stockledger-api/internal/product"
	"stockledger-api/internal/repository"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory QuantityStore with hooks for injecting races and failures.
type memStore struct {
	mu      sync.Mutex
	records map[int64]model.QuantityRecord

	// conflicts makes the next N CompareAndSwap calls lose a race.
	conflicts int
	err       error

	gets, creates, swaps int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]model.QuantityRecord)}
}

func (s *memStore) seed(productID, quantity int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.records[productID] = model.QuantityRecord{ProductID: productID, Quantity: quantity, CreatedAt: now, UpdatedAt: now}
}

func (s *memStore) touched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets + s.creates + s.swaps
}

func (s *memStore) Get(_ context.Context, productID int64) (*model.QuantityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (s *memStore) CreateIfAbsent(_ context.Context, productID int64) (*model.QuantityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[productID]
	if !ok {
		now := time.Now().UTC()
		rec = model.QuantityRecord{ProductID: productID, CreatedAt: now, UpdatedAt: now}
		s.records[productID] = rec
	}
	return &rec, nil
}

func (s *memStore) CompareAndSwap(_ context.Context, productID, expectedVersion, newQuantity int64) (*model.QuantityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaps++
	if s.err != nil {
		return nil, s.err
	}
	if newQuantity < 0 {
		return nil, repository.ErrNegativeQuantity
	}
	rec, ok := s.records[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.conflicts > 0 {
		s.conflicts--
		// another writer got there first
		rec.Version++
		s.records[productID] = rec
		return nil, repository.ErrConflict
	}
	if rec.Version != expectedVersion {
		return nil, repository.ErrConflict
	}
	rec.Quantity = newQuantity
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	s.records[productID] = rec
	return &rec, nil
}

func (s *memStore) all() []model.QuantityRecord {
	out := make([]model.QuantityRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity < out[j].Quantity
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

func (s *memStore) Stats(_ context.Context, threshold int64) (*model.InventoryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	st := &model.InventoryStats{LowStockThreshold: threshold}
	for _, r := range s.records {
		st.TotalRecords++
		st.TotalQuantity += r.Quantity
		if r.Quantity == 0 {
			st.OutOfStock++
		}
		if r.Quantity < threshold {
			st.LowStock++
		}
	}
	return st, nil
}

func (s *memStore) ListBelow(_ context.Context, threshold int64) ([]model.QuantityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QuantityRecord
	for _, r := range s.all() {
		if r.Quantity < threshold {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ListOutOfStock(_ context.Context) ([]model.QuantityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QuantityRecord
	for _, r := range s.all() {
		if r.Quantity == 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) Ping(context.Context) error { return s.err }
func (s *memStore) Close() error                { return nil }

// memAudit is an in-memory AuditRepository.
type memAudit struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	err     error
}

func (a *memAudit) Append(_ context.Context, e *model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, *e)
	return nil
}

func (a *memAudit) List(_ context.Context, f repository.AuditFilter) ([]model.AuditEntry, int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var matched []model.AuditEntry
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		if e.ProductID == f.ProductID && (f.Kind == "" || e.Kind == f.Kind) {
			matched = append(matched, e)
		}
	}
	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return []model.AuditEntry{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], total, nil
}

func (a *memAudit) Close() error { return nil }

func (a *memAudit) snapshot() []model.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.AuditEntry(nil), a.entries...)
}

// stubGuard answers existence from a fixed table.
type stubGuard struct {
	existence guard.Existence
	err       error
	batchErr  error
	products  map[int64]*model.Product
}

func (g *stubGuard) Exists(context.Context, int64) (guard.Existence, error) {
	return g.existence, g.err
}

func (g *stubGuard) Fetch(_ context.Context, productID int64) (*model.Product, error) {
	if p, ok := g.products[productID]; ok {
		return p, nil
	}
	return nil, product.ErrProductNotFound
}

func (g *stubGuard) FetchBatch(_ context.Context, productIDs []int64) ([]model.Product, error) {
	if g.batchErr != nil {
		return nil, g.batchErr
	}
	var out []model.Product
	for _, id := range productIDs {
		if p, ok := g.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// downAuthority answers every call with a 503.
type downAuthority struct {
	mu    sync.Mutex
	calls int
}

func (a *downAuthority) fail() error {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return &product.StatusError{StatusCode: http.StatusServiceUnavailable, Op: "exists"}
}

func (a *downAuthority) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *downAuthority) Exists(context.Context, int64) (bool, error) { return false, a.fail() }
func (a *downAuthority) Fetch(context.Context, int64) (*model.Product, error) {
	return nil, a.fail()
}
func (a *downAuthority) FetchBatch(context.Context, []int64) ([]model.Product, error) {
	return nil, a.fail()
}

type countingRecorder struct {
	mu         sync.Mutex
	operations map[string]int
	conflicts  int
	failures   map[string]int
	stats      *model.InventoryStats
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{operations: map[string]int{}, failures: map[string]int{}}
}

func (r *countingRecorder) LedgerOperation(op, outcome string) {
	r.mu.Lock()
	r.operations[op+"/"+outcome]++
	r.mu.Unlock()
}

func (r *countingRecorder) CASConflict(string) {
	r.mu.Lock()
	r.conflicts++
	r.mu.Unlock()
}

func (r *countingRecorder) AuditFailure(sink string) {
	r.mu.Lock()
	r.failures[sink]++
	r.mu.Unlock()
}

func (r *countingRecorder) InventoryStats(s model.InventoryStats) {
	r.mu.Lock()
	r.stats = &s
	r.mu.Unlock()
}

type failingPublisher struct{}

func (failingPublisher) Name() string { return "kafka" }
func (failingPublisher) Publish(context.Context, model.AuditEntry) error {
	return errors.New("broker down")
}
func (failingPublisher) Close() error { return nil }

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
