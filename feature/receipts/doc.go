// Package receipts exposes the receipt ledger over HTTP.
//
// Uploaded workbooks are parsed by core/spreadsheet, optionally archived in the
// object store and handed to the reconcile engine as one batch. Every other
// endpoint reads from or corrects the ledger through the same engine.
//
// # Components
//
//   - Service: upload pipeline, lookups and corrections.
//   - Handler: HTTP endpoints and error mapping.
//   - Loader: Registers the feature with the application.
//
// # HTTP Endpoints
//
//   - POST /receipts/upload : Reconcile a workbook (supports ?dry_run=true).
//   - GET /receipts : Search receipts.
//   - GET /receipts/stats : Receipt counts and recent uploads.
//   - GET /receipts/:number : Receipt with its current version.
//   - PUT /receipts/:number : Manual correction.
//   - DELETE /receipts/:number : Void a receipt.
//   - POST /receipts/:number/restore : Restore a voided receipt.
//   - GET /receipts/:number/versions : Version history.
//   - GET /receipts/:number/audit : Audit trail.
//   - GET /batches : Upload history.
//   - GET /batches/:id : One batch with its error log.
//   - GET /batches/:id/source : Download the archived workbook.
package receipts
