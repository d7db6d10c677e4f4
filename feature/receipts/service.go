package receipts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/reconcile"
	"receipt-ledger/core/server"
	"receipt-ledger/core/spreadsheet"
	"receipt-ledger/core/storage"
)

var (
	// ErrInvalidFile is returned for uploads that are not .xlsx workbooks.
	ErrInvalidFile = errors.New("invalid file type, upload an Excel workbook (.xlsx)")
	// ErrFileTooLarge is returned for uploads above the configured limit.
	ErrFileTooLarge = errors.New("file exceeds the upload limit")
	// ErrArchiveDisabled is returned when a batch source is requested without an archive.
	ErrArchiveDisabled = errors.New("upload archive is disabled")
)

// Service exposes the receipt ledger to the HTTP layer.
type Service struct {
	engine  *reconcile.Engine
	archive *storage.Archive
	logger  *zap.Logger
	cfg     server.Config
	lookups singleflight.Group
}

// NewService creates a receipts service. archive may be nil, in which case
// uploads are not archived.
func NewService(engine *reconcile.Engine, archive *storage.Archive, logger *zap.Logger, cfg server.Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:  engine,
		archive: archive,
		logger:  logger,
		cfg:     cfg,
	}
}

// UploadInput is one uploaded workbook.
type UploadInput struct {
	Filename string
	// Label names the batch. Defaults to the base name of Filename.
	Label    string
	Size     int64
	Body     io.Reader
	Actor    string
	DryRun   bool
}

// Upload parses a workbook, archives it and reconciles its rows as one batch.
// A rolled back batch returns both the failed result and the cause.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*reconcile.BatchResult, error) {
	if !strings.EqualFold(filepath.Ext(in.Filename), ".xlsx") {
		return nil, ErrInvalidFile
	}
	limit := s.cfg.MaxUploadBytes()
	if in.Size > limit {
		return nil, fmt.Errorf("%w (%d MB)", ErrFileTooLarge, limit>>20)
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d MB)", ErrFileTooLarge, limit>>20)
	}

	rows, err := spreadsheet.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &reconcile.ValidationError{Field: "file", Reason: err.Error()}
	}

	actor := in.Actor
	if actor == "" {
		actor = s.cfg.DefaultActor
	}

	label := in.Label
	if label == "" {
		label = filepath.Base(in.Filename)
	}
	req := reconcile.BatchRequest{
		Label:  label,
		Actor:  actor,
		Rows:   rows,
		DryRun: in.DryRun,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.archive != nil && !in.DryRun {
		key, err := s.archive.Put(ctx, filepath.Base(in.Filename), bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("archive upload: %w", err)
		}
		req.SourceObject = key
	}

	return s.engine.ReconcileBatch(ctx, req)
}

// Get returns a receipt with its current version. Concurrent lookups of the
// same receipt share one store read, which runs without the callers' cancellation.
func (s *Service) Get(ctx context.Context, number string) (*ledger.EntitySummary, error) {
	v, err, _ := s.lookups.Do(number, func() (any, error) {
		return s.engine.GetEntity(context.WithoutCancel(ctx), number)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ledger.EntitySummary), nil
}

// Search lists receipts.
func (s *Service) Search(ctx context.Context, filter ledger.Filter) (ledger.Page[ledger.EntitySummary], error) {
	return s.engine.Search(ctx, filter)
}

// Versions returns the version history of a receipt.
func (s *Service) Versions(ctx context.Context, number string) ([]ledger.Version, error) {
	return s.engine.ListVersions(ctx, number)
}

// VersionAt returns the version of a receipt that was current at an instant.
func (s *Service) VersionAt(ctx context.Context, number string, at time.Time) (*ledger.Version, error) {
	return s.engine.VersionAt(ctx, number, at)
}

// Audit returns the audit trail of a receipt.
func (s *Service) Audit(ctx context.Context, number string) ([]ledger.AuditEntry, error) {
	return s.engine.ListAuditEntries(ctx, number)
}

// Amend applies a manual correction.
func (s *Service) Amend(ctx context.Context, number string, patch map[string]any, actor, reason string) (*reconcile.AmendResult, error) {
	if actor == "" {
		actor = s.cfg.DefaultActor
	}
	return s.engine.Amend(ctx, reconcile.AmendRequest{
		Identifier: number,
		Patch:      patch,
		Actor:      actor,
		Reason:     reason,
	})
}

// Void marks a receipt as voided.
func (s *Service) Void(ctx context.Context, number, actor string) (*ledger.Entity, error) {
	return s.engine.SetStatus(ctx, number, ledger.StatusVoided, s.actor(actor))
}

// Restore marks a voided receipt as active again.
func (s *Service) Restore(ctx context.Context, number, actor string) (*ledger.Entity, error) {
	return s.engine.SetStatus(ctx, number, ledger.StatusActive, s.actor(actor))
}

func (s *Service) actor(actor string) string {
	if actor == "" {
		return s.cfg.DefaultActor
	}
	return actor
}

// Stats summarizes the ledger.
type Stats struct {
	Active        int            `json:"active_receipts"`
	Voided        int            `json:"voided_receipts"`
	RecentUploads []ledger.Batch `json:"recent_uploads"`
}

// Stats counts receipts by status and lists the latest batches.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	active, err := s.engine.Search(ctx, ledger.Filter{Status: ledger.StatusActive, PageSize: 1})
	if err != nil {
		return nil, err
	}
	voided, err := s.engine.Search(ctx, ledger.Filter{Status: ledger.StatusVoided, PageSize: 1})
	if err != nil {
		return nil, err
	}
	recent, err := s.engine.ListBatches(ctx, 1, 5)
	if err != nil {
		return nil, err
	}
	return &Stats{Active: active.Total, Voided: voided.Total, RecentUploads: recent.Items}, nil
}

// Batches lists batches, newest first.
func (s *Service) Batches(ctx context.Context, page, pageSize int) (ledger.Page[ledger.Batch], error) {
	return s.engine.ListBatches(ctx, page, pageSize)
}

// Batch returns one batch.
func (s *Service) Batch(ctx context.Context, id string) (*ledger.Batch, error) {
	return s.engine.GetBatch(ctx, id)
}

// BatchSource opens the archived workbook of a batch.
func (s *Service) BatchSource(ctx context.Context, id string) (io.ReadCloser, *ledger.Batch, error) {
	if s.archive == nil {
		return nil, nil, ErrArchiveDisabled
	}
	batch, err := s.engine.GetBatch(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if batch.SourceObject == "" {
		return nil, nil, fmt.Errorf("batch %s has no archived source: %w", id, ledger.ErrNotFound)
	}
	rc, err := s.archive.Open(ctx, batch.SourceObject)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", batch.SourceObject, err)
	}
	return rc, batch, nil
}
