package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/lock"
)

// Store is an in-memory ledger.Store.
type Store struct {
	mu           sync.RWMutex
	entities     map[string]*ledger.Entity
	byIdentifier map[string]string
	versions     map[string][]ledger.Version
	versionByID  map[string]ledger.Version
	audits       map[string][]ledger.AuditEntry
	batches      map[string]*ledger.Batch
	batchOrder   []string

	locks *lock.Local
	now   func() time.Time
}

// New creates an empty store. lockWait bounds how long a transaction waits for a
// receipt another transaction holds; after that the conflict surfaces as
// ledger.ErrConcurrentModification.
func New(lockWait time.Duration) *Store {
	return &Store{
		entities:     make(map[string]*ledger.Entity),
		byIdentifier: make(map[string]string),
		versions:     make(map[string][]ledger.Version),
		versionByID:  make(map[string]ledger.Version),
		audits:       make(map[string][]ledger.AuditEntry),
		batches:      make(map[string]*ledger.Batch),
		locks:        lock.NewLocal(lockWait),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Begin implements ledger.Store.
func (s *Store) Begin(ctx context.Context) (ledger.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newTx(s), nil
}

// GetEntity implements ledger.Reader.
func (s *Store) GetEntity(_ context.Context, identifier string) (*ledger.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentifier[identifier]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", identifier, ledger.ErrNotFound)
	}
	e := *s.entities[id]
	return &e, nil
}

// GetVersion implements ledger.Reader.
func (s *Store) GetVersion(_ context.Context, versionID string) (*ledger.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versionByID[versionID]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", versionID, ledger.ErrNotFound)
	}
	return &v, nil
}

// ListVersions implements ledger.Reader.
func (s *Store) ListVersions(_ context.Context, entityID string) ([]ledger.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entities[entityID]; !ok {
		return nil, fmt.Errorf("receipt %s: %w", entityID, ledger.ErrNotFound)
	}
	out := make([]ledger.Version, len(s.versions[entityID]))
	copy(out, s.versions[entityID])
	return out, nil
}

// VersionAt implements ledger.Reader.
func (s *Store) VersionAt(_ context.Context, entityID string, at time.Time) (*ledger.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entities[entityID]; !ok {
		return nil, fmt.Errorf("receipt %s: %w", entityID, ledger.ErrNotFound)
	}
	versions := s.versions[entityID]
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].CreatedAt.After(at) {
			v := versions[i]
			return &v, nil
		}
	}
	return nil, fmt.Errorf("receipt %s has no version at %s: %w", entityID, at.Format(time.RFC3339), ledger.ErrNotFound)
}

// ListAuditEntries implements ledger.Reader.
func (s *Store) ListAuditEntries(_ context.Context, entityID string) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entities[entityID]; !ok {
		return nil, fmt.Errorf("receipt %s: %w", entityID, ledger.ErrNotFound)
	}
	out := make([]ledger.AuditEntry, len(s.audits[entityID]))
	copy(out, s.audits[entityID])
	return out, nil
}

// ListEntities implements ledger.Reader.
func (s *Store) ListEntities(_ context.Context, filter ledger.Filter) (ledger.Page[ledger.EntitySummary], error) {
	filter = filter.Normalize()

	s.mu.RLock()
	matched := make([]ledger.EntitySummary, 0)
	for _, e := range s.entities {
		var current *ledger.Version
		if e.CurrentVersionID != nil {
			v := s.versionByID[*e.CurrentVersionID]
			current = &v
		}
		if !matches(filter, e, current) {
			continue
		}
		matched = append(matched, ledger.EntitySummary{Entity: *e, Current: current})
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Identifier < matched[j].Identifier
	})

	page := ledger.Page[ledger.EntitySummary]{
		Total:    len(matched),
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Items:    []ledger.EntitySummary{},
	}
	start := filter.Offset()
	if start < len(matched) {
		end := start + filter.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		page.Items = matched[start:end]
	}
	return page, nil
}

// GetBatch implements ledger.Reader.
func (s *Store) GetBatch(_ context.Context, batchID string) (*ledger.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, ledger.ErrNotFound)
	}
	out := copyBatch(*b)
	return &out, nil
}

// ListBatches implements ledger.Reader.
func (s *Store) ListBatches(_ context.Context, page, pageSize int) (ledger.Page[ledger.Batch], error) {
	f := ledger.Filter{Page: page, PageSize: pageSize}.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := ledger.Page[ledger.Batch]{
		Total:    len(s.batchOrder),
		Page:     f.Page,
		PageSize: f.PageSize,
		Items:    []ledger.Batch{},
	}
	// newest first
	for i := len(s.batchOrder) - 1 - f.Offset(); i >= 0 && len(out.Items) < f.PageSize; i-- {
		out.Items = append(out.Items, copyBatch(*s.batches[s.batchOrder[i]]))
	}
	return out, nil
}

func matches(f ledger.Filter, e *ledger.Entity, v *ledger.Version) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if v == nil {
		// Receipts without a version only match unfiltered searches.
		return f.Query == "" && f.StudentName == "" && f.ClassName == "" &&
			f.PaymentMode == "" && f.DateFrom == nil && f.DateTo == nil
	}
	if f.Query != "" && !containsFold(e.Identifier, f.Query) && !containsFold(v.StudentName, f.Query) {
		return false
	}
	if f.StudentName != "" && !containsFold(v.StudentName, f.StudentName) {
		return false
	}
	if f.ClassName != "" && !containsFold(v.ClassName, f.ClassName) {
		return false
	}
	if f.PaymentMode != "" && v.PaymentMode != f.PaymentMode {
		return false
	}
	if f.DateFrom != nil && v.Date.Before(ledger.CivilDate(*f.DateFrom)) {
		return false
	}
	if f.DateTo != nil && v.Date.After(ledger.CivilDate(*f.DateTo)) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func copyBatch(b ledger.Batch) ledger.Batch {
	if b.Failures != nil {
		failures := make([]ledger.Failure, len(b.Failures))
		copy(failures, b.Failures)
		b.Failures = failures
	}
	if b.FinishedAt != nil {
		at := *b.FinishedAt
		b.FinishedAt = &at
	}
	return b
}
