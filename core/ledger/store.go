package ledger

import (
	"context"
	"time"
)

// Reader exposes committed ledger state.
type Reader interface {
	// GetEntity looks a receipt up by its receipt number.
	GetEntity(ctx context.Context, identifier string) (*Entity, error)

	// GetVersion returns a single version by id.
	GetVersion(ctx context.Context, versionID string) (*Version, error)

	// ListVersions returns every version of a receipt, oldest first.
	ListVersions(ctx context.Context, entityID string) ([]Version, error)

	// VersionAt returns the latest version of a receipt created at or before at.
	// Returns ErrNotFound if the receipt had no version yet.
	VersionAt(ctx context.Context, entityID string, at time.Time) (*Version, error)

	// ListAuditEntries returns every audit entry of a receipt, oldest version first.
	ListAuditEntries(ctx context.Context, entityID string) ([]AuditEntry, error)

	// ListEntities searches receipts by their current version, newest first.
	ListEntities(ctx context.Context, filter Filter) (Page[EntitySummary], error)

	// GetBatch returns a batch by id.
	GetBatch(ctx context.Context, batchID string) (*Batch, error)

	// ListBatches returns batches, newest first.
	ListBatches(ctx context.Context, page, pageSize int) (Page[Batch], error)
}

// AuditWriter persists audit entries. There is no update or delete.
type AuditWriter interface {
	AppendAuditEntries(ctx context.Context, entries []AuditEntry) error
}

// Tx is one all-or-nothing unit of work.
type Tx interface {
	AuditWriter

	// FindEntity looks a receipt up by receipt number and locks the identifier for the
	// rest of the transaction. Returns ErrNotFound if it does not exist.
	FindEntity(ctx context.Context, identifier string) (*Entity, error)

	// CreateEntity creates an active receipt without versions.
	// Returns ErrDuplicateEntity if the identifier is taken.
	CreateEntity(ctx context.Context, identifier string) (*Entity, error)

	// CurrentVersion returns the version the entity's pointer references.
	// Returns ErrNotFound if the entity has no version yet.
	CurrentVersion(ctx context.Context, entity *Entity) (*Version, error)

	// AppendVersion stores the next version of entity and repoints its current version.
	// entity.CurrentNumber is the expected counter value; on success entity is updated in place.
	// Returns ErrConcurrentModification if the counter moved.
	AppendVersion(ctx context.Context, entity *Entity, data Fields, prov Provenance) (*Version, error)

	// SetStatus changes the lifecycle status of entity. Versions are untouched.
	SetStatus(ctx context.Context, entity *Entity, status Status) error

	// CreateBatch stores a new batch row.
	CreateBatch(ctx context.Context, batch *Batch) error

	// FinishBatch stores the final tally and status of a batch.
	FinishBatch(ctx context.Context, batch *Batch) error

	// Savepoint marks a point the transaction can roll back to.
	Savepoint(ctx context.Context, name string) error

	// RollbackTo undoes every write made after the named savepoint.
	RollbackTo(ctx context.Context, name string) error

	Commit() error
	Rollback() error
}

// Store is a transactional ledger backend.
type Store interface {
	Reader

	// Begin opens a transaction.
	Begin(ctx context.Context) (Tx, error)
}
