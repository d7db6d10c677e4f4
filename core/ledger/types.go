package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle status of a receipt.
type Status string

const (
	// StatusActive is the status of every newly created receipt.
	StatusActive Status = "active"
	// StatusVoided marks a receipt as voided. Versions and audit data are kept.
	StatusVoided Status = "voided"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusVoided
}

// Origin records where a version came from.
type Origin string

const (
	// OriginBatchUpload marks versions produced by a spreadsheet batch.
	OriginBatchUpload Origin = "batch_upload"
	// OriginManualEdit marks versions produced by a single manual correction.
	OriginManualEdit Origin = "manual_edit"
)

// BatchStatus is the lifecycle status of a reconciliation batch.
type BatchStatus string

const (
	// BatchInProgress is the status of a batch whose transaction is still open.
	BatchInProgress BatchStatus = "in_progress"
	// BatchCompleted is the status of a committed batch.
	BatchCompleted BatchStatus = "completed"
	// BatchFailed is the status of a rolled back batch.
	BatchFailed BatchStatus = "failed"
)

// Entity is the logical receipt.
type Entity struct {
	// ID is the internal identifier of the receipt.
	ID string `json:"id"`

	// Identifier is the stable external receipt number.
	Identifier string `json:"receipt_number"`

	// Status is the lifecycle status.
	Status Status `json:"status"`

	// CurrentVersionID points at the latest version. Nil until the first version exists.
	CurrentVersionID *string `json:"current_version_id"`

	// CurrentNumber is the number of the latest version (0 when there is none).
	// AppendVersion uses it as the expected value of its compare-and-set.
	CurrentNumber int `json:"current_version_number"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fields is the set of versioned receipt fields.
type Fields struct {
	StudentName string          `json:"student_name"`
	ClassName   string          `json:"class_name"`
	PaymentMode PaymentMode     `json:"payment_mode"`
	Date        time.Time       `json:"date"`
	AnnualFee   decimal.Decimal `json:"annual_fee"`
	TuitionFee  decimal.Decimal `json:"tuition_fee"`
	KitBooksFee decimal.Decimal `json:"kit_books_fee"`
	ActivityFee decimal.Decimal `json:"activity_fee"`
	UniformFee  decimal.Decimal `json:"uniform_fee"`
}

// Total returns the sum of all fee components.
func (f Fields) Total() decimal.Decimal {
	return f.AnnualFee.Add(f.TuitionFee).Add(f.KitBooksFee).Add(f.ActivityFee).Add(f.UniformFee)
}

// Provenance describes who produced a version and how.
type Provenance struct {
	Origin Origin
	// BatchID is nil for manual edits.
	BatchID *string
	Actor   string
	At      time.Time
}

// Version is one immutable snapshot of a receipt.
type Version struct {
	ID       string `json:"id"`
	EntityID string `json:"receipt_id"`
	Number   int    `json:"version_number"`
	Fields
	Origin    Origin    `json:"source"`
	BatchID   *string   `json:"batch_id"`
	Actor     string    `json:"changed_by"`
	CreatedAt time.Time `json:"changed_at"`
}

// FieldChange is one (field, old, new) triple.
type FieldChange struct {
	Field string `json:"field_name"`
	// Old is nil when the field had no prior value (first version).
	Old *string `json:"old_value"`
	New string  `json:"new_value"`
}

// AuditEntry records one field change that took effect in one version.
type AuditEntry struct {
	ID            string    `json:"id"`
	EntityID      string    `json:"receipt_id"`
	VersionID     string    `json:"version_id"`
	VersionNumber int       `json:"version_number"`
	Field         string    `json:"field_name"`
	Old           *string   `json:"old_value"`
	New           string    `json:"new_value"`
	Actor         string    `json:"changed_by"`
	At            time.Time `json:"changed_at"`
	Reason        string    `json:"reason,omitempty"`
}

// Failure is one record that could not be applied.
type Failure struct {
	// Identifier is the receipt number of the record, empty if it had none.
	Identifier string `json:"receipt_number"`
	// Line is the source line of the record (spreadsheet row), zero when unknown.
	Line   int    `json:"line,omitempty"`
	Reason string `json:"error"`
}

// Batch is one reconciliation run.
type Batch struct {
	ID           string      `json:"id"`
	Label        string      `json:"file_name"`
	Actor        string      `json:"uploaded_by"`
	SourceObject string      `json:"source_object,omitempty"`
	Status       BatchStatus `json:"status"`
	StartedAt    time.Time   `json:"uploaded_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	Inserted     int         `json:"records_inserted"`
	Updated      int         `json:"records_updated"`
	Unchanged    int         `json:"records_unchanged"`
	Failed       int         `json:"records_failed"`
	Failures     []Failure   `json:"error_log"`
}

// EntitySummary is a receipt joined with its current version, used by search.
type EntitySummary struct {
	Entity
	Current *Version `json:"current_version"`
}

// Filter narrows ListEntities.
type Filter struct {
	// Query matches the receipt number or the student name (substring).
	Query       string
	StudentName string
	ClassName   string
	PaymentMode PaymentMode
	DateFrom    *time.Time
	DateTo      *time.Time
	Status      Status
	Page        int
	PageSize    int
}

// Normalize applies pagination defaults and bounds.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 50
	}
	if f.PageSize > 200 {
		f.PageSize = 200
	}
	return f
}

// Offset returns the row offset of the filter page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Page is a slice of results plus the total count before pagination.
type Page[T any] struct {
	Items    []T `json:"results"`
	Total    int `json:"total_count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// TotalPages returns the number of pages for the page size.
func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}
