package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"receipt-ledger/core/ledger"
)

type tx struct {
	db   *gorm.DB
	done bool
}

func (t *tx) FindEntity(ctx context.Context, identifier string) (*ledger.Entity, error) {
	if t.done {
		return nil, ledger.ErrTxDone
	}
	var m receiptModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("receipt_number = ?", identifier).
		Take(&m).Error
	if err != nil {
		return nil, classify("find receipt "+identifier, err)
	}
	e := m.toEntity()
	return &e, nil
}

func (t *tx) CreateEntity(ctx context.Context, identifier string) (*ledger.Entity, error) {
	if t.done {
		return nil, ledger.ErrTxDone
	}
	now := time.Now().UTC()
	m := receiptModel{
		ID:            uuid.NewString(),
		ReceiptNumber: identifier,
		Status:        string(ledger.StatusActive),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("receipt %s: %w", identifier, ledger.ErrDuplicateEntity)
		}
		return nil, classify("create receipt "+identifier, err)
	}
	e := m.toEntity()
	return &e, nil
}

func (t *tx) CurrentVersion(ctx context.Context, entity *ledger.Entity) (*ledger.Version, error) {
	if t.done {
		return nil, ledger.ErrTxDone
	}
	if entity.CurrentVersionID == nil {
		return nil, fmt.Errorf("receipt %s has no version: %w", entity.Identifier, ledger.ErrNotFound)
	}
	var m versionModel
	if err := t.db.WithContext(ctx).Where("id = ?", *entity.CurrentVersionID).Take(&m).Error; err != nil {
		return nil, classify("get version "+*entity.CurrentVersionID, err)
	}
	v, err := m.toVersion()
	if err != nil {
		return nil, fmt.Errorf("decode version %s: %w", m.ID, err)
	}
	return &v, nil
}

// AppendVersion moves the receipt's counter with a conditional update first, then
// inserts the version. The (receipt_id, version_number) unique index backs the
// counter: a second writer either matches no row or collides on insert.
func (t *tx) AppendVersion(ctx context.Context, entity *ledger.Entity, data ledger.Fields, prov ledger.Provenance) (*ledger.Version, error) {
	if t.done {
		return nil, ledger.ErrTxDone
	}
	at := prov.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	v := ledger.Version{
		ID:        uuid.NewString(),
		EntityID:  entity.ID,
		Number:    entity.CurrentNumber + 1,
		Fields:    data,
		Origin:    prov.Origin,
		BatchID:   prov.BatchID,
		Actor:     prov.Actor,
		CreatedAt: at,
	}

	res := t.db.WithContext(ctx).Model(&receiptModel{}).
		Where("id = ? AND current_number = ?", entity.ID, entity.CurrentNumber).
		Updates(map[string]any{
			"current_version_id": v.ID,
			"current_number":     v.Number,
			"updated_at":         at,
		})
	if res.Error != nil {
		return nil, classify("advance receipt "+entity.Identifier, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("receipt %s: expected version %d: %w", entity.Identifier, entity.CurrentNumber, ledger.ErrConcurrentModification)
	}

	m := newVersionModel(v)
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("receipt %s version %d: %w", entity.Identifier, v.Number, ledger.ErrConcurrentModification)
		}
		return nil, classify("insert version", err)
	}

	versionID := v.ID
	entity.CurrentVersionID = &versionID
	entity.CurrentNumber = v.Number
	entity.UpdatedAt = at
	return &v, nil
}

func (t *tx) SetStatus(ctx context.Context, entity *ledger.Entity, status ledger.Status) error {
	if t.done {
		return ledger.ErrTxDone
	}
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q", status)
	}
	now := time.Now().UTC()
	res := t.db.WithContext(ctx).Model(&receiptModel{}).
		Where("id = ?", entity.ID).
		Updates(map[string]any{"status": string(status), "updated_at": now})
	if res.Error != nil {
		return classify("set status "+entity.Identifier, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("receipt %s: %w", entity.Identifier, ledger.ErrNotFound)
	}
	entity.Status = status
	entity.UpdatedAt = now
	return nil
}

func (t *tx) AppendAuditEntries(ctx context.Context, entries []ledger.AuditEntry) error {
	if t.done {
		return ledger.ErrTxDone
	}
	if len(entries) == 0 {
		return nil
	}
	models := make([]auditModel, len(entries))
	for i, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		models[i] = auditModel{
			ID:            id,
			ReceiptID:     e.EntityID,
			VersionID:     e.VersionID,
			VersionNumber: e.VersionNumber,
			Position:      i,
			FieldName:     e.Field,
			OldValue:      e.Old,
			NewValue:      e.New,
			ChangedBy:     e.Actor,
			ChangedAt:     e.At,
			Reason:        e.Reason,
		}
	}
	if err := t.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return classify("insert audit entries", err)
	}
	return nil
}

func (t *tx) CreateBatch(ctx context.Context, batch *ledger.Batch) error {
	if t.done {
		return ledger.ErrTxDone
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.StartedAt.IsZero() {
		batch.StartedAt = time.Now().UTC()
	}
	if batch.Status == "" {
		batch.Status = ledger.BatchInProgress
	}
	m, err := newBatchModel(*batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		return classify("create batch", err)
	}
	return nil
}

func (t *tx) FinishBatch(ctx context.Context, batch *ledger.Batch) error {
	if t.done {
		return ledger.ErrTxDone
	}
	if batch.FinishedAt == nil {
		at := time.Now().UTC()
		batch.FinishedAt = &at
	}
	m, err := newBatchModel(*batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	res := t.db.WithContext(ctx).Model(&batchModel{}).Where("id = ?", batch.ID).Updates(map[string]any{
		"status":            m.Status,
		"finished_at":       m.FinishedAt,
		"source_object":     m.SourceObject,
		"records_inserted":  m.RecordsInserted,
		"records_updated":   m.RecordsUpdated,
		"records_unchanged": m.RecordsUnchanged,
		"records_failed":    m.RecordsFailed,
		"error_log":         m.ErrorLog,
	})
	if res.Error != nil {
		return classify("finish batch", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("batch %s: %w", batch.ID, ledger.ErrNotFound)
	}
	return nil
}

func (t *tx) Savepoint(_ context.Context, name string) error {
	if t.done {
		return ledger.ErrTxDone
	}
	return classify("savepoint", t.db.SavePoint(name).Error)
}

func (t *tx) RollbackTo(_ context.Context, name string) error {
	if t.done {
		return ledger.ErrTxDone
	}
	return classify("rollback to savepoint", t.db.RollbackTo(name).Error)
}

func (t *tx) Commit() error {
	if t.done {
		return ledger.ErrTxDone
	}
	t.done = true
	return classify("commit", t.db.Commit().Error)
}

func (t *tx) Rollback() error {
	if t.done {
		return ledger.ErrTxDone
	}
	t.done = true
	return classify("rollback", t.db.Rollback().Error)
}
