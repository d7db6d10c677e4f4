// Package memstore is an in-process ledger.Store.
//
// Transactions journal their writes into a private overlay and publish them in one step
// on Commit. Savepoints are positions in the journal; RollbackTo truncates the journal and
// replays it. Receipts are locked per identifier with a lock.Local for the lifetime of the
// transaction, which gives the same serialization a locking read gives in SQL.
//
// Nothing is persisted. Use it for development (database.driver = "memory") and tests.
package memstore
