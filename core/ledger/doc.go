// Package ledger defines the versioned receipt ledger: its data model, the tracked
// field descriptors and the contract every storage backend must uphold.
//
// # Data Model
//
//   - Entity: the logical receipt, keyed by its stable receipt number. Mutable only in
//     status and in its current-version pointer.
//   - Version: an immutable snapshot of the receipt fields. Numbers run 1..N per entity
//     with no gaps and no duplicates.
//   - Batch: one reconciliation run (one spreadsheet upload) and its final tally.
//   - AuditEntry: one changed field of one version. Write-once.
//
// # Store Contract
//
// A Store hands out transactions (Tx). Within a transaction:
//
//   - FindEntity is a locking read. The identifier stays locked for the rest of the
//     transaction, so two transactions touching the same receipt serialize.
//   - AppendVersion is a compare-and-set on the entity's version counter. If the counter
//     moved since the entity was read, ErrConcurrentModification is returned.
//   - Savepoint/RollbackTo undo the writes of a single record without abandoning the batch.
//
// Readers (the Reader half of Store) only ever observe committed state: either the state
// before a batch or the state after it, never anything in between.
//
// Two implementations ship with the module: memstore (in-process, used for development
// and tests) and gormstore (MySQL or SQLite through GORM).
package ledger
