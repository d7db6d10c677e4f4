// Package integrity provides consistency checks over the receipt ledger.
//
// Reconciliation keeps the ledger consistent as it writes. This package checks
// that the stored state still agrees with itself and with the upload archive.
//
// # Checks Provided
//
//   - Schema: Checks that the ledger tables exist with every column the store uses.
//   - Ledger: Per receipt, versions run 1..N without gaps, the current pointer references
//     version N, and the audit entries of each version equal its recomputed diff.
//   - Storage: Archived uploads no batch refers to (orphans) and batches whose upload
//     is missing from the bucket. Orphans younger than OrphanGrace are ignored.
//
// # HTTP Endpoints
//
//   - GET /integrity : Runs all checks.
//   - GET /integrity/schema : Runs the schema check.
//   - GET /integrity/ledger : Runs the ledger check.
//   - GET /integrity/storage : Runs the storage check (supports ?fix=true).
package integrity
