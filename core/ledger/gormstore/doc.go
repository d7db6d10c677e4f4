// Package gormstore implements ledger.Store on MySQL or SQLite through GORM.
//
// Tables: receipts, receipt_versions, upload_batches and audit_logs. Dates are stored as
// YYYY-MM-DD strings and amounts as DECIMAL(12,2).
//
// FindEntity is a SELECT ... FOR UPDATE, so the row lock is held until the transaction
// ends. AppendVersion advances receipts.current_number with a conditional UPDATE and then
// inserts the version under a unique (receipt_id, version_number) index. On MySQL lock
// wait timeouts and deadlocks surface as ledger.ErrConcurrentModification; every other
// driver error is wrapped in ledger.ErrStorageUnavailable.
//
// SQLite does not lock rows. The connection pool is capped at one connection instead,
// which serializes transactions.
package gormstore
