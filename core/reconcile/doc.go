// Package reconcile applies spreadsheet batches and manual edits to the receipt ledger.
//
// A batch flows through four stages:
//
// 1. Normalize: every incoming row is turned into a typed Record. Rows are
//    normalized concurrently by a small worker pool; a row that fails
//    validation becomes a failed record and never reaches the store.
//
// 2. Resolve: inside one ledger transaction, each record looks its receipt up
//    (locking it until the transaction ends) or creates it.
//
// 3. Diff: the record is compared field by field with the receipt's current
//    version. Equal records are counted as unchanged.
//
// 4. Append: a changed record becomes the next version of its receipt, and one
//    audit entry per changed field is written in the same transaction.
//
// # Atomicity
//
// The whole batch commits or rolls back as one unit. Each record runs inside
// its own savepoint: a conflicting record (lock timeout, moved version
// counter, duplicate creation) is rolled back to the savepoint and retried up
// to Config.MaxRetries times, then reported as failed. Any other storage error,
// or cancellation of the context, rolls back everything and records the batch
// as failed.
//
// Rows sharing a receipt number are applied in input order, each against the
// version the previous row produced.
//
// # Usage
//
//	engine := reconcile.NewEngine(store, log, cfg.Reconcile)
//	result, err := engine.ReconcileBatch(ctx, reconcile.BatchRequest{
//		Label: "fees-march.xlsx",
//		Actor: "accounts",
//		Rows:  rows,
//	})
package reconcile
