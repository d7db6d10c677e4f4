// Package loader provides the plugin-like feature loading system.
//
// Each feature bundles a service and its HTTP handler behind the Feature interface.
//
// # Feature Interface
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// # Manager
//
// Manager keeps the registered features in order. LoadAll mounts every enabled
// one on the router and stops at the first error.
//
// Features in this service are 'receipts' (uploads, edits, history and batches)
// and 'integrity' (schema, ledger and archive checks).
package loader
