package integrity

import (
	"context"
	"errors"
	"time"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/ledger/gormstore"
	"receipt-ledger/core/storage"
	"receipt-ledger/feature/integrity/checks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrStorageDisabled is returned by storage checks when no archive is configured.
var ErrStorageDisabled = errors.New("upload archive is disabled")

// Service handles integrity checks.
type Service struct {
	db      *gorm.DB
	reader  ledger.Reader
	archive *storage.Archive
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new integrity service. db is nil for the in-memory
// store and archive is nil when uploads are not archived.
func NewService(db *gorm.DB, reader ledger.Reader, archive *storage.Archive, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      db,
		reader:  reader,
		archive: archive,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckSchema verifies the ledger tables and their columns.
func (s *Service) CheckSchema() (*checks.SchemaReport, error) {
	return checks.CheckSchema(s.db, gormstore.Columns)
}

// CheckLedger verifies the version history and audit trail of every receipt.
func (s *Service) CheckLedger(ctx context.Context) (*checks.LedgerReport, error) {
	return checks.CheckLedger(ctx, s.reader)
}

// CheckStorage compares archived uploads with the batch history.
func (s *Service) CheckStorage(ctx context.Context) (*checks.StorageReport, error) {
	if s.archive == nil {
		return nil, ErrStorageDisabled
	}
	return checks.CheckStorage(ctx, s.archive, s.reader, s.now())
}

// FixStorage removes orphaned uploads.
func (s *Service) FixStorage(ctx context.Context, orphans []string) error {
	if s.archive == nil {
		return ErrStorageDisabled
	}
	return checks.FixStorage(ctx, s.archive, s.logger, orphans)
}

// Report is the combined result of every check.
type Report struct {
	Schema  any `json:"schema"`
	Ledger  any `json:"ledger"`
	Storage any `json:"storage"`
}

// RunAll runs every check. A failing check is reported in place and does not
// stop the others.
func (s *Service) RunAll(ctx context.Context) Report {
	var report Report

	if r, err := s.CheckSchema(); err != nil {
		report.Schema = errorEntry(err)
	} else {
		report.Schema = r
	}

	if r, err := s.CheckLedger(ctx); err != nil {
		report.Ledger = errorEntry(err)
	} else {
		report.Ledger = r
	}

	switch r, err := s.CheckStorage(ctx); {
	case errors.Is(err, ErrStorageDisabled):
		report.Storage = map[string]any{"status": "disabled"}
	case err != nil:
		report.Storage = errorEntry(err)
	default:
		report.Storage = r
	}
	return report
}

func errorEntry(err error) map[string]any {
	return map[string]any{"status": "error", "error": err.Error()}
}
