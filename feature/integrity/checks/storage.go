package checks

import (
	"context"
	"fmt"
	"time"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/storage"

	"go.uber.org/zap"
)

// OrphanGrace keeps recent uploads out of the orphan list. An upload is
// archived before its batch commits.
const OrphanGrace = 10 * time.Minute

// StorageReport strictly types the result of a storage check.
type StorageReport struct {
	Bucket string `json:"bucket"`
	// Objects is the number of archived uploads.
	Objects int `json:"objects"`
	// Orphans are archived uploads no batch refers to.
	Orphans []string `json:"orphans"`
	// MissingSources are batch IDs whose archived upload is gone.
	MissingSources []string `json:"missing_sources"`
}

// Matched reports whether the archive and the batch history agree.
func (r *StorageReport) Matched() bool {
	return len(r.Orphans) == 0 && len(r.MissingSources) == 0
}

// CheckStorage compares the archived uploads with the batches that reference them.
func CheckStorage(ctx context.Context, archive *storage.Archive, r ledger.Reader, now time.Time) (*StorageReport, error) {
	exists, err := archive.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", archive.Bucket())
	}

	objects, err := archive.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived uploads: %w", err)
	}
	archived := make(map[string]bool, len(objects))
	for _, obj := range objects {
		archived[obj.Key] = true
	}

	report := &StorageReport{
		Bucket:         archive.Bucket(),
		Objects:        len(objects),
		Orphans:        []string{},
		MissingSources: []string{},
	}

	referenced := make(map[string]bool)
	for page := 1; ; page++ {
		res, err := r.ListBatches(ctx, page, ledgerPageSize)
		if err != nil {
			return nil, fmt.Errorf("list batches: %w", err)
		}
		for _, b := range res.Items {
			if b.SourceObject == "" {
				continue
			}
			referenced[b.SourceObject] = true
			if !archived[b.SourceObject] {
				report.MissingSources = append(report.MissingSources, b.ID)
			}
		}
		if page >= res.TotalPages() {
			break
		}
	}

	for _, obj := range objects {
		if referenced[obj.Key] || now.Sub(obj.LastModified) < OrphanGrace {
			continue
		}
		report.Orphans = append(report.Orphans, obj.Key)
	}
	return report, nil
}

// FixStorage removes orphaned uploads.
func FixStorage(ctx context.Context, archive *storage.Archive, logger *zap.Logger, orphans []string) error {
	if len(orphans) == 0 {
		return nil
	}
	if err := archive.Remove(ctx, orphans); err != nil {
		logger.Error("Failed to remove orphaned uploads", zap.Error(err))
		return err
	}
	logger.Info("Removed orphaned uploads", zap.Strings("keys", orphans))
	return nil
}
