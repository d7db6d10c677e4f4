package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"receipt-ledger/core/ledger"
)

// Store is a ledger.Store backed by a SQL database through GORM.
type Store struct {
	db *gorm.DB
}

// New wraps an open connection. Use database.Connect to get one with
// TranslateError enabled, which duplicate-key detection relies on.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates the ledger tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return classify("migrate", err)
	}
	return nil
}

// Begin implements ledger.Store.
func (s *Store) Begin(ctx context.Context) (ledger.Tx, error) {
	db := s.db.WithContext(ctx).Begin()
	if db.Error != nil {
		return nil, classify("begin", db.Error)
	}
	return &tx{db: db}, nil
}

// GetEntity implements ledger.Reader.
func (s *Store) GetEntity(ctx context.Context, identifier string) (*ledger.Entity, error) {
	var m receiptModel
	if err := s.db.WithContext(ctx).Where("receipt_number = ?", identifier).Take(&m).Error; err != nil {
		return nil, classify("get receipt "+identifier, err)
	}
	e := m.toEntity()
	return &e, nil
}

// GetVersion implements ledger.Reader.
func (s *Store) GetVersion(ctx context.Context, versionID string) (*ledger.Version, error) {
	var m versionModel
	if err := s.db.WithContext(ctx).Where("id = ?", versionID).Take(&m).Error; err != nil {
		return nil, classify("get version "+versionID, err)
	}
	v, err := m.toVersion()
	if err != nil {
		return nil, fmt.Errorf("decode version %s: %w", versionID, err)
	}
	return &v, nil
}

func (s *Store) requireEntity(ctx context.Context, entityID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&receiptModel{}).Where("id = ?", entityID).Count(&count).Error; err != nil {
		return classify("get receipt "+entityID, err)
	}
	if count == 0 {
		return fmt.Errorf("receipt %s: %w", entityID, ledger.ErrNotFound)
	}
	return nil
}

// ListVersions implements ledger.Reader.
func (s *Store) ListVersions(ctx context.Context, entityID string) ([]ledger.Version, error) {
	if err := s.requireEntity(ctx, entityID); err != nil {
		return nil, err
	}
	var models []versionModel
	if err := s.db.WithContext(ctx).Where("receipt_id = ?", entityID).Order("version_number ASC").Find(&models).Error; err != nil {
		return nil, classify("list versions", err)
	}
	out := make([]ledger.Version, 0, len(models))
	for _, m := range models {
		v, err := m.toVersion()
		if err != nil {
			return nil, fmt.Errorf("decode version %s: %w", m.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// VersionAt implements ledger.Reader.
func (s *Store) VersionAt(ctx context.Context, entityID string, at time.Time) (*ledger.Version, error) {
	if err := s.requireEntity(ctx, entityID); err != nil {
		return nil, err
	}
	var m versionModel
	err := s.db.WithContext(ctx).
		Where("receipt_id = ? AND changed_at <= ?", entityID, at.UTC()).
		Order("version_number DESC").
		Take(&m).Error
	if err != nil {
		return nil, classify("version of "+entityID+" at "+at.Format(time.RFC3339), err)
	}
	v, err := m.toVersion()
	if err != nil {
		return nil, fmt.Errorf("decode version %s: %w", m.ID, err)
	}
	return &v, nil
}

// ListAuditEntries implements ledger.Reader.
func (s *Store) ListAuditEntries(ctx context.Context, entityID string) ([]ledger.AuditEntry, error) {
	if err := s.requireEntity(ctx, entityID); err != nil {
		return nil, err
	}
	var models []auditModel
	err := s.db.WithContext(ctx).Where("receipt_id = ?", entityID).
		Order("version_number ASC").Order("position ASC").
		Find(&models).Error
	if err != nil {
		return nil, classify("list audit entries", err)
	}
	out := make([]ledger.AuditEntry, 0, len(models))
	for _, m := range models {
		out = append(out, m.toEntry())
	}
	return out, nil
}

func (s *Store) searchQuery(ctx context.Context, f ledger.Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Table("receipts").
		Joins("LEFT JOIN receipt_versions ON receipt_versions.id = receipts.current_version_id")

	if f.Status != "" {
		q = q.Where("receipts.status = ?", string(f.Status))
	}
	if f.Query != "" {
		like := likePattern(f.Query)
		q = q.Where("(LOWER(receipts.receipt_number) LIKE ? OR LOWER(receipt_versions.student_name) LIKE ?)", like, like)
	}
	if f.StudentName != "" {
		q = q.Where("LOWER(receipt_versions.student_name) LIKE ?", likePattern(f.StudentName))
	}
	if f.ClassName != "" {
		q = q.Where("LOWER(receipt_versions.class_name) LIKE ?", likePattern(f.ClassName))
	}
	if f.PaymentMode != "" {
		q = q.Where("receipt_versions.payment_mode = ?", string(f.PaymentMode))
	}
	if f.DateFrom != nil {
		q = q.Where("receipt_versions.date >= ?", ledger.FormatDate(*f.DateFrom))
	}
	if f.DateTo != nil {
		q = q.Where("receipt_versions.date <= ?", ledger.FormatDate(*f.DateTo))
	}
	return q
}

func likePattern(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

// ListEntities implements ledger.Reader.
func (s *Store) ListEntities(ctx context.Context, filter ledger.Filter) (ledger.Page[ledger.EntitySummary], error) {
	filter = filter.Normalize()
	page := ledger.Page[ledger.EntitySummary]{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Items:    []ledger.EntitySummary{},
	}

	var total int64
	if err := s.searchQuery(ctx, filter).Count(&total).Error; err != nil {
		return page, classify("count receipts", err)
	}
	page.Total = int(total)
	if total == 0 {
		return page, nil
	}

	var ids []string
	err := s.searchQuery(ctx, filter).
		Order("receipts.created_at DESC").Order("receipts.receipt_number ASC").
		Offset(filter.Offset()).Limit(filter.PageSize).
		Pluck("receipts.id", &ids).Error
	if err != nil {
		return page, classify("search receipts", err)
	}
	if len(ids) == 0 {
		return page, nil
	}

	var receipts []receiptModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&receipts).Error; err != nil {
		return page, classify("load receipts", err)
	}
	byID := make(map[string]receiptModel, len(receipts))
	var versionIDs []string
	for _, r := range receipts {
		byID[r.ID] = r
		if r.CurrentVersionID != nil {
			versionIDs = append(versionIDs, *r.CurrentVersionID)
		}
	}

	versions := make(map[string]ledger.Version, len(versionIDs))
	if len(versionIDs) > 0 {
		var models []versionModel
		if err := s.db.WithContext(ctx).Where("id IN ?", versionIDs).Find(&models).Error; err != nil {
			return page, classify("load versions", err)
		}
		for _, m := range models {
			v, err := m.toVersion()
			if err != nil {
				return page, fmt.Errorf("decode version %s: %w", m.ID, err)
			}
			versions[v.ID] = v
		}
	}

	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			continue
		}
		summary := ledger.EntitySummary{Entity: r.toEntity()}
		if r.CurrentVersionID != nil {
			if v, ok := versions[*r.CurrentVersionID]; ok {
				summary.Current = &v
			}
		}
		page.Items = append(page.Items, summary)
	}
	return page, nil
}

// GetBatch implements ledger.Reader.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*ledger.Batch, error) {
	var m batchModel
	if err := s.db.WithContext(ctx).Where("id = ?", batchID).Take(&m).Error; err != nil {
		return nil, classify("get batch "+batchID, err)
	}
	b, err := m.toBatch()
	if err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", batchID, err)
	}
	return &b, nil
}

// ListBatches implements ledger.Reader.
func (s *Store) ListBatches(ctx context.Context, page, pageSize int) (ledger.Page[ledger.Batch], error) {
	f := ledger.Filter{Page: page, PageSize: pageSize}.Normalize()
	out := ledger.Page[ledger.Batch]{Page: f.Page, PageSize: f.PageSize, Items: []ledger.Batch{}}

	var total int64
	if err := s.db.WithContext(ctx).Model(&batchModel{}).Count(&total).Error; err != nil {
		return out, classify("count batches", err)
	}
	out.Total = int(total)

	var models []batchModel
	err := s.db.WithContext(ctx).Order("uploaded_at DESC").Order("id ASC").
		Offset(f.Offset()).Limit(f.PageSize).Find(&models).Error
	if err != nil {
		return out, classify("list batches", err)
	}
	for _, m := range models {
		b, err := m.toBatch()
		if err != nil {
			return out, fmt.Errorf("decode batch %s: %w", m.ID, err)
		}
		out.Items = append(out.Items, b)
	}
	return out, nil
}
