package gormstore

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"receipt-ledger/core/ledger"
)

// Column sizes follow the limits in package ledger, which Normalize enforces
// before a row reaches the database.
type receiptModel struct {
	ID               string  `gorm:"primaryKey;size:36"`
	ReceiptNumber    string  `gorm:"size:64;not null;uniqueIndex"`
	Status           string  `gorm:"size:16;not null;index"`
	CurrentVersionID *string `gorm:"size:36"`
	CurrentNumber    int     `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (receiptModel) TableName() string { return "receipts" }

type versionModel struct {
	ID            string          `gorm:"primaryKey;size:36"`
	ReceiptID     string          `gorm:"size:36;not null;uniqueIndex:idx_receipt_version,priority:1"`
	VersionNumber int             `gorm:"not null;uniqueIndex:idx_receipt_version,priority:2"`
	StudentName   string          `gorm:"size:255;not null;index"`
	ClassName     string          `gorm:"size:64;not null"`
	PaymentMode   string          `gorm:"size:32;not null"`
	Date          string          `gorm:"size:10;not null;index"`
	AnnualFee     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TuitionFee    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	KitBooksFee   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ActivityFee   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	UniformFee    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Source        string          `gorm:"size:16;not null"`
	BatchID       *string         `gorm:"size:36;index"`
	ChangedBy     string          `gorm:"size:128"`
	ChangedAt     time.Time
}

func (versionModel) TableName() string { return "receipt_versions" }

type auditModel struct {
	ID            string  `gorm:"primaryKey;size:36"`
	ReceiptID     string  `gorm:"size:36;not null;index"`
	VersionID     string  `gorm:"size:36;not null;index"`
	VersionNumber int     `gorm:"not null"`
	Position      int     `gorm:"not null"`
	FieldName     string  `gorm:"size:32;not null"`
	OldValue      *string `gorm:"type:text"`
	NewValue      string  `gorm:"type:text"`
	ChangedBy     string  `gorm:"size:128"`
	ChangedAt     time.Time
	Reason        string `gorm:"type:text"`
}

func (auditModel) TableName() string { return "audit_logs" }

type batchModel struct {
	ID               string `gorm:"primaryKey;size:36"`
	FileName         string `gorm:"size:255"`
	UploadedBy       string `gorm:"size:128"`
	SourceObject     string `gorm:"size:512"`
	Status           string `gorm:"size:16;not null;index"`
	UploadedAt       time.Time
	FinishedAt       *time.Time
	RecordsInserted  int
	RecordsUpdated   int
	RecordsUnchanged int
	RecordsFailed    int
	ErrorLog         string `gorm:"type:text"`
}

func (batchModel) TableName() string { return "upload_batches" }

// Models lists every table of the ledger, in migration order.
func Models() []any {
	return []any{&receiptModel{}, &versionModel{}, &auditModel{}, &batchModel{}}
}

// Columns maps each ledger table to the columns the store reads and writes.
var Columns = map[string][]string{
	"receipts": {"id", "receipt_number", "status", "current_version_id", "current_number", "created_at", "updated_at"},
	"receipt_versions": {
		"id", "receipt_id", "version_number", "student_name", "class_name", "payment_mode", "date",
		"annual_fee", "tuition_fee", "kit_books_fee", "activity_fee", "uniform_fee",
		"source", "batch_id", "changed_by", "changed_at",
	},
	"audit_logs": {
		"id", "receipt_id", "version_id", "version_number", "position", "field_name",
		"old_value", "new_value", "changed_by", "changed_at", "reason",
	},
	"upload_batches": {
		"id", "file_name", "uploaded_by", "source_object", "status", "uploaded_at", "finished_at",
		"records_inserted", "records_updated", "records_unchanged", "records_failed", "error_log",
	},
}

func (m receiptModel) toEntity() ledger.Entity {
	return ledger.Entity{
		ID:               m.ID,
		Identifier:       m.ReceiptNumber,
		Status:           ledger.Status(m.Status),
		CurrentVersionID: m.CurrentVersionID,
		CurrentNumber:    m.CurrentNumber,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

func (m versionModel) toVersion() (ledger.Version, error) {
	date, err := ledger.ParseDate(m.Date)
	if err != nil {
		return ledger.Version{}, err
	}
	return ledger.Version{
		ID:       m.ID,
		EntityID: m.ReceiptID,
		Number:   m.VersionNumber,
		Fields: ledger.Fields{
			StudentName: m.StudentName,
			ClassName:   m.ClassName,
			PaymentMode: ledger.PaymentMode(m.PaymentMode),
			Date:        date,
			AnnualFee:   m.AnnualFee.Round(ledger.MoneyPlaces),
			TuitionFee:  m.TuitionFee.Round(ledger.MoneyPlaces),
			KitBooksFee: m.KitBooksFee.Round(ledger.MoneyPlaces),
			ActivityFee: m.ActivityFee.Round(ledger.MoneyPlaces),
			UniformFee:  m.UniformFee.Round(ledger.MoneyPlaces),
		},
		Origin:    ledger.Origin(m.Source),
		BatchID:   m.BatchID,
		Actor:     m.ChangedBy,
		CreatedAt: m.ChangedAt.UTC(),
	}, nil
}

func newVersionModel(v ledger.Version) versionModel {
	return versionModel{
		ID:            v.ID,
		ReceiptID:     v.EntityID,
		VersionNumber: v.Number,
		StudentName:   v.StudentName,
		ClassName:     v.ClassName,
		PaymentMode:   string(v.PaymentMode),
		Date:          ledger.FormatDate(v.Date),
		AnnualFee:     v.AnnualFee.Round(ledger.MoneyPlaces),
		TuitionFee:    v.TuitionFee.Round(ledger.MoneyPlaces),
		KitBooksFee:   v.KitBooksFee.Round(ledger.MoneyPlaces),
		ActivityFee:   v.ActivityFee.Round(ledger.MoneyPlaces),
		UniformFee:    v.UniformFee.Round(ledger.MoneyPlaces),
		Source:        string(v.Origin),
		BatchID:       v.BatchID,
		ChangedBy:     v.Actor,
		ChangedAt:     v.CreatedAt,
	}
}

func (m auditModel) toEntry() ledger.AuditEntry {
	return ledger.AuditEntry{
		ID:            m.ID,
		EntityID:      m.ReceiptID,
		VersionID:     m.VersionID,
		VersionNumber: m.VersionNumber,
		Field:         m.FieldName,
		Old:           m.OldValue,
		New:           m.NewValue,
		Actor:         m.ChangedBy,
		At:            m.ChangedAt.UTC(),
		Reason:        m.Reason,
	}
}

func newBatchModel(b ledger.Batch) (batchModel, error) {
	failures := b.Failures
	if failures == nil {
		failures = []ledger.Failure{}
	}
	log, err := json.Marshal(failures)
	if err != nil {
		return batchModel{}, err
	}
	return batchModel{
		ID:               b.ID,
		FileName:         b.Label,
		UploadedBy:       b.Actor,
		SourceObject:     b.SourceObject,
		Status:           string(b.Status),
		UploadedAt:       b.StartedAt,
		FinishedAt:       b.FinishedAt,
		RecordsInserted:  b.Inserted,
		RecordsUpdated:   b.Updated,
		RecordsUnchanged: b.Unchanged,
		RecordsFailed:    b.Failed,
		ErrorLog:         string(log),
	}, nil
}

func (m batchModel) toBatch() (ledger.Batch, error) {
	b := ledger.Batch{
		ID:           m.ID,
		Label:        m.FileName,
		Actor:        m.UploadedBy,
		SourceObject: m.SourceObject,
		Status:       ledger.BatchStatus(m.Status),
		StartedAt:    m.UploadedAt.UTC(),
		Inserted:     m.RecordsInserted,
		Updated:      m.RecordsUpdated,
		Unchanged:    m.RecordsUnchanged,
		Failed:       m.RecordsFailed,
		Failures:     []ledger.Failure{},
	}
	if m.FinishedAt != nil {
		at := m.FinishedAt.UTC()
		b.FinishedAt = &at
	}
	if m.ErrorLog != "" {
		if err := json.Unmarshal([]byte(m.ErrorLog), &b.Failures); err != nil {
			return ledger.Batch{}, err
		}
	}
	return b, nil
}
