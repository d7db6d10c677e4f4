package checks

import (
	"context"
	"time"

	"receipt-ledger/core/ledger"
)

// fakeReader serves fixed ledger state, including states the stores never produce.
type fakeReader struct {
	entities []ledger.Entity
	versions map[string][]ledger.Version
	audits   map[string][]ledger.AuditEntry
	batches  []ledger.Batch
}

func (f *fakeReader) GetEntity(_ context.Context, identifier string) (*ledger.Entity, error) {
	for i := range f.entities {
		if f.entities[i].Identifier == identifier {
			return &f.entities[i], nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (f *fakeReader) GetVersion(_ context.Context, versionID string) (*ledger.Version, error) {
	for _, vs := range f.versions {
		for i := range vs {
			if vs[i].ID == versionID {
				return &vs[i], nil
			}
		}
	}
	return nil, ledger.ErrNotFound
}

func (f *fakeReader) VersionAt(_ context.Context, entityID string, at time.Time) (*ledger.Version, error) {
	vs := f.versions[entityID]
	for i := len(vs) - 1; i >= 0; i-- {
		if !vs[i].CreatedAt.After(at) {
			return &vs[i], nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (f *fakeReader) ListVersions(_ context.Context, entityID string) ([]ledger.Version, error) {
	return f.versions[entityID], nil
}

func (f *fakeReader) ListAuditEntries(_ context.Context, entityID string) ([]ledger.AuditEntry, error) {
	return f.audits[entityID], nil
}

func (f *fakeReader) ListEntities(_ context.Context, filter ledger.Filter) (ledger.Page[ledger.EntitySummary], error) {
	filter = filter.Normalize()
	page := ledger.Page[ledger.EntitySummary]{Total: len(f.entities), Page: filter.Page, PageSize: filter.PageSize}
	for i := filter.Offset(); i < len(f.entities) && len(page.Items) < filter.PageSize; i++ {
		page.Items = append(page.Items, ledger.EntitySummary{Entity: f.entities[i]})
	}
	return page, nil
}

func (f *fakeReader) GetBatch(_ context.Context, batchID string) (*ledger.Batch, error) {
	for i := range f.batches {
		if f.batches[i].ID == batchID {
			return &f.batches[i], nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (f *fakeReader) ListBatches(_ context.Context, page, pageSize int) (ledger.Page[ledger.Batch], error) {
	out := ledger.Page[ledger.Batch]{Total: len(f.batches), Page: page, PageSize: pageSize}
	for i := (page - 1) * pageSize; i >= 0 && i < len(f.batches) && len(out.Items) < pageSize; i++ {
		out.Items = append(out.Items, f.batches[i])
	}
	return out, nil
}
