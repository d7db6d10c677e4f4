package reconcile

import (
	"context"
	"time"

	"receipt-ledger/core/ledger"
)

// GetEntity returns a receipt together with its current version.
func (e *Engine) GetEntity(ctx context.Context, identifier string) (*ledger.EntitySummary, error) {
	entity, err := e.store.GetEntity(ctx, identifier)
	if err != nil {
		return nil, err
	}
	summary := &ledger.EntitySummary{Entity: *entity}
	if entity.CurrentVersionID != nil {
		if summary.Current, err = e.store.GetVersion(ctx, *entity.CurrentVersionID); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

// CurrentVersion returns the latest version of a receipt.
func (e *Engine) CurrentVersion(ctx context.Context, identifier string) (*ledger.Version, error) {
	summary, err := e.GetEntity(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if summary.Current == nil {
		return nil, ledger.ErrNotFound
	}
	return summary.Current, nil
}

// ListVersions returns every version of a receipt, oldest first.
func (e *Engine) ListVersions(ctx context.Context, identifier string) ([]ledger.Version, error) {
	entity, err := e.store.GetEntity(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return e.store.ListVersions(ctx, entity.ID)
}

// VersionAt returns the version of a receipt that was current at the given instant.
func (e *Engine) VersionAt(ctx context.Context, identifier string, at time.Time) (*ledger.Version, error) {
	entity, err := e.store.GetEntity(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return e.store.VersionAt(ctx, entity.ID, at)
}

// ListAuditEntries returns the audit trail of a receipt, oldest version first.
func (e *Engine) ListAuditEntries(ctx context.Context, identifier string) ([]ledger.AuditEntry, error) {
	entity, err := e.store.GetEntity(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return e.store.ListAuditEntries(ctx, entity.ID)
}

// Search lists receipts matching filter, newest first.
func (e *Engine) Search(ctx context.Context, filter ledger.Filter) (ledger.Page[ledger.EntitySummary], error) {
	return e.store.ListEntities(ctx, filter)
}

// GetBatch returns one batch.
func (e *Engine) GetBatch(ctx context.Context, batchID string) (*ledger.Batch, error) {
	return e.store.GetBatch(ctx, batchID)
}

// ListBatches lists batches, newest first.
func (e *Engine) ListBatches(ctx context.Context, page, pageSize int) (ledger.Page[ledger.Batch], error) {
	return e.store.ListBatches(ctx, page, pageSize)
}
