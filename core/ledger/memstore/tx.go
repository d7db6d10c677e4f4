package memstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/lock"
)

type opKind int

const (
	opPutEntity opKind = iota
	opAppendVersion
	opAppendAudit
	opPutBatch
)

// op is one journaled write. The overlay is rebuilt from the journal after a
// RollbackTo, so ops carry full post-images.
type op struct {
	kind    opKind
	entity  ledger.Entity
	created bool
	version ledger.Version
	audits  []ledger.AuditEntry
	batch   ledger.Batch
}

// overlay is the uncommitted view of one transaction.
type overlay struct {
	entities     map[string]ledger.Entity
	created      map[string]bool
	byIdentifier map[string]string
	versions     map[string][]ledger.Version
	versionByID  map[string]ledger.Version
	audits       []ledger.AuditEntry
	batches      map[string]ledger.Batch
	batchOrder   []string
}

func newOverlay() *overlay {
	return &overlay{
		entities:     make(map[string]ledger.Entity),
		created:      make(map[string]bool),
		byIdentifier: make(map[string]string),
		versions:     make(map[string][]ledger.Version),
		versionByID:  make(map[string]ledger.Version),
		batches:      make(map[string]ledger.Batch),
	}
}

func (o *overlay) apply(p op) {
	switch p.kind {
	case opPutEntity:
		o.entities[p.entity.ID] = p.entity
		if p.created {
			o.created[p.entity.ID] = true
			o.byIdentifier[p.entity.Identifier] = p.entity.ID
		}
	case opAppendVersion:
		o.entities[p.entity.ID] = p.entity
		o.versions[p.version.EntityID] = append(o.versions[p.version.EntityID], p.version)
		o.versionByID[p.version.ID] = p.version
	case opAppendAudit:
		o.audits = append(o.audits, p.audits...)
	case opPutBatch:
		if _, ok := o.batches[p.batch.ID]; !ok {
			o.batchOrder = append(o.batchOrder, p.batch.ID)
		}
		o.batches[p.batch.ID] = p.batch
	}
}

type tx struct {
	s *Store

	held map[string]lock.Lock
	// base records the committed version counter of every entity read under lock.
	base map[string]int

	ops        []op
	view       *overlay
	savepoints map[string]int
	done       bool
}

func newTx(s *Store) *tx {
	return &tx{
		s:          s,
		held:       make(map[string]lock.Lock),
		base:       make(map[string]int),
		view:       newOverlay(),
		savepoints: make(map[string]int),
	}
}

func (t *tx) record(p op) {
	t.ops = append(t.ops, p)
	t.view.apply(p)
}

func (t *tx) lockIdentifier(ctx context.Context, identifier string) error {
	if _, ok := t.held[identifier]; ok {
		return nil
	}
	held, err := t.s.locks.Obtain(ctx, "receipt:"+identifier, 0)
	if errors.Is(err, lock.ErrNotObtained) {
		return fmt.Errorf("receipt %s is locked by another transaction: %w", identifier, ledger.ErrConcurrentModification)
	}
	if err != nil {
		return err
	}
	t.held[identifier] = held
	return nil
}

func (t *tx) releaseLocks() {
	for id, held := range t.held {
		_ = held.Release(context.Background())
		delete(t.held, id)
	}
}

// current returns the entity as this transaction sees it.
func (t *tx) current(entityID string) (ledger.Entity, bool) {
	if e, ok := t.view.entities[entityID]; ok {
		return e, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	e, ok := t.s.entities[entityID]
	if !ok {
		return ledger.Entity{}, false
	}
	return *e, true
}

func (t *tx) FindEntity(ctx context.Context, identifier string) (*ledger.Entity, error) {
	if t.done {
		return nil, ledger.ErrTxDone
	}
	if err := t.lockIdentifier(ctx, identifier); err != nil {
		return nil, err
	}

	if id, ok := t.view.byIdentifier[identifier]; ok {
		e := t.view.entities[id]
		return &e, nil
	}

	t.s.mu.RLock()
	id, ok := t.s.byIdentifier[identifier]
	var committed ledger.Entity
	if ok {
		committed = *t.s.entities[id]
	}
	t.s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", identifier, ledger.ErrNotFound)
	}
	if e, touched := t.view.entities[id]; touched {
		return &e, nil
	}
	t.base[id] = committed.CurrentNumber
	return &committed, nil
}

func (t *tx) CreateEntity(ctx context.Context, identifier string) (*ledger.Entity, error) {
	if t.done {
		return nil, ledger.ErrTxDone
	}
	if err := t.lockIdentifier(ctx, identifier); err != nil {
		return nil, err
	}

	t.s.mu.RLock()
	_, taken := t.s.byIdentifier[identifier]
	t.s.mu.RUnlock()
	if _, inTx := t.view.byIdentifier[identifier]; taken || inTx {
		return nil, fmt.Errorf("receipt %s: %w", identifier, ledger.ErrDuplicateEntity)
	}

	now := t.s.now()
	e := ledger.Entity{
		ID:         uuid.NewString(),
		Identifier: identifier,
		Status:     ledger.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.record(op{kind: opPutEntity, entity: e, created: true})
	return &e, nil
}

func (t *tx) CurrentVersion(_ context.Context, entity *ledger.Entity) (*ledger.Version, error) {
	if t.done {
		return nil, ledger.ErrTxDone
	}
	if entity.CurrentVersionID == nil {
		return nil, fmt.Errorf("receipt %s has no version: %w", entity.Identifier, ledger.ErrNotFound)
	}
	if v, ok := t.view.versionByID[*entity.CurrentVersionID]; ok {
		return &v, nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	v, ok := t.s.versionByID[*entity.CurrentVersionID]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", *entity.CurrentVersionID, ledger.ErrNotFound)
	}
	return &v, nil
}

func (t *tx) AppendVersion(ctx context.Context, entity *ledger.Entity, data ledger.Fields, prov ledger.Provenance) (*ledger.Version, error) {
	if t.done {
		return nil, ledger.ErrTxDone
	}
	if err := t.lockIdentifier(ctx, entity.Identifier); err != nil {
		return nil, err
	}

	actual, ok := t.current(entity.ID)
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", entity.Identifier, ledger.ErrNotFound)
	}
	if actual.CurrentNumber != entity.CurrentNumber {
		return nil, fmt.Errorf("receipt %s: expected version %d, found %d: %w",
			entity.Identifier, entity.CurrentNumber, actual.CurrentNumber, ledger.ErrConcurrentModification)
	}
	if _, seen := t.base[actual.ID]; !seen && !t.view.created[actual.ID] {
		t.base[actual.ID] = actual.CurrentNumber
	}

	at := prov.At
	if at.IsZero() {
		at = t.s.now()
	}
	var batchID *string
	if prov.BatchID != nil {
		id := *prov.BatchID
		batchID = &id
	}
	v := ledger.Version{
		ID:        uuid.NewString(),
		EntityID:  actual.ID,
		Number:    actual.CurrentNumber + 1,
		Fields:    data,
		Origin:    prov.Origin,
		BatchID:   batchID,
		Actor:     prov.Actor,
		CreatedAt: at,
	}

	updated := actual
	versionID := v.ID
	updated.CurrentVersionID = &versionID
	updated.CurrentNumber = v.Number
	updated.UpdatedAt = at

	t.record(op{kind: opAppendVersion, entity: updated, version: v})
	*entity = updated
	return &v, nil
}

func (t *tx) SetStatus(ctx context.Context, entity *ledger.Entity, status ledger.Status) error {
	if t.done {
		return ledger.ErrTxDone
	}
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if err := t.lockIdentifier(ctx, entity.Identifier); err != nil {
		return err
	}

	actual, ok := t.current(entity.ID)
	if !ok {
		return fmt.Errorf("receipt %s: %w", entity.Identifier, ledger.ErrNotFound)
	}
	if _, seen := t.base[actual.ID]; !seen && !t.view.created[actual.ID] {
		t.base[actual.ID] = actual.CurrentNumber
	}

	updated := actual
	updated.Status = status
	updated.UpdatedAt = t.s.now()
	t.record(op{kind: opPutEntity, entity: updated})
	*entity = updated
	return nil
}

func (t *tx) AppendAuditEntries(_ context.Context, entries []ledger.AuditEntry) error {
	if t.done {
		return ledger.ErrTxDone
	}
	if len(entries) == 0 {
		return nil
	}

	stored := make([]ledger.AuditEntry, len(entries))
	for i, entry := range entries {
		if !t.versionExists(entry.VersionID) {
			return fmt.Errorf("audit entry for %s cites unknown version %s: %w", entry.Field, entry.VersionID, ledger.ErrNotFound)
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		stored[i] = entry
	}
	t.record(op{kind: opAppendAudit, audits: stored})
	return nil
}

func (t *tx) versionExists(id string) bool {
	if _, ok := t.view.versionByID[id]; ok {
		return true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	_, ok := t.s.versionByID[id]
	return ok
}

func (t *tx) CreateBatch(_ context.Context, batch *ledger.Batch) error {
	if t.done {
		return ledger.ErrTxDone
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.StartedAt.IsZero() {
		batch.StartedAt = t.s.now()
	}
	if batch.Status == "" {
		batch.Status = ledger.BatchInProgress
	}
	t.record(op{kind: opPutBatch, batch: copyBatch(*batch)})
	return nil
}

func (t *tx) FinishBatch(_ context.Context, batch *ledger.Batch) error {
	if t.done {
		return ledger.ErrTxDone
	}
	if _, ok := t.view.batches[batch.ID]; !ok {
		t.s.mu.RLock()
		_, ok = t.s.batches[batch.ID]
		t.s.mu.RUnlock()
		if !ok {
			return fmt.Errorf("batch %s: %w", batch.ID, ledger.ErrNotFound)
		}
	}
	if batch.FinishedAt == nil {
		at := t.s.now()
		batch.FinishedAt = &at
	}
	t.record(op{kind: opPutBatch, batch: copyBatch(*batch)})
	return nil
}

func (t *tx) Savepoint(_ context.Context, name string) error {
	if t.done {
		return ledger.ErrTxDone
	}
	t.savepoints[name] = len(t.ops)
	return nil
}

func (t *tx) RollbackTo(_ context.Context, name string) error {
	if t.done {
		return ledger.ErrTxDone
	}
	n, ok := t.savepoints[name]
	if !ok {
		return fmt.Errorf("savepoint %s does not exist", name)
	}
	t.ops = t.ops[:n]
	t.view = newOverlay()
	for _, p := range t.ops {
		t.view.apply(p)
	}
	for other, at := range t.savepoints {
		if at > n {
			delete(t.savepoints, other)
		}
	}
	return nil
}

// Commit publishes every journaled write at once. Readers never observe a partial
// transaction because the whole overlay is applied under the store's write lock.
func (t *tx) Commit() error {
	if t.done {
		return ledger.ErrTxDone
	}
	t.done = true
	defer t.releaseLocks()

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range t.view.entities {
		if t.view.created[id] {
			if _, taken := s.byIdentifier[e.Identifier]; taken {
				return fmt.Errorf("receipt %s: %w", e.Identifier, ledger.ErrDuplicateEntity)
			}
			continue
		}
		committed, ok := s.entities[id]
		if !ok {
			return fmt.Errorf("receipt %s: %w", e.Identifier, ledger.ErrNotFound)
		}
		if base, seen := t.base[id]; seen && committed.CurrentNumber != base {
			return fmt.Errorf("receipt %s: %w", e.Identifier, ledger.ErrConcurrentModification)
		}
	}

	for id, e := range t.view.entities {
		stored := e
		s.entities[id] = &stored
		if t.view.created[id] {
			s.byIdentifier[e.Identifier] = id
		}
	}
	for entityID, versions := range t.view.versions {
		s.versions[entityID] = append(s.versions[entityID], versions...)
		for _, v := range versions {
			s.versionByID[v.ID] = v
		}
	}
	for _, entry := range t.view.audits {
		s.audits[entry.EntityID] = append(s.audits[entry.EntityID], entry)
	}
	for _, id := range t.view.batchOrder {
		if _, ok := s.batches[id]; !ok {
			s.batchOrder = append(s.batchOrder, id)
		}
		b := copyBatch(t.view.batches[id])
		s.batches[id] = &b
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return ledger.ErrTxDone
	}
	t.done = true
	t.releaseLocks()
	return nil
}
