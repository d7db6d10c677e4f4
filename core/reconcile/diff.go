package reconcile

import "receipt-ledger/core/ledger"

// DiffResult is the outcome of comparing a record with the current version.
type DiffResult struct {
	// Changed is false when every tracked field is equal.
	Changed bool
	// Changes lists the differing fields in TrackedFields order.
	Changes []ledger.FieldChange
}

// Diff compares incoming fields with the current version of an entity. A nil current
// version marks a new entity: every tracked field changes, with no old value.
// Diff never touches the store.
func Diff(incoming ledger.Fields, current *ledger.Version) DiffResult {
	var changes []ledger.FieldChange
	for _, d := range ledger.TrackedFields {
		if current == nil {
			changes = append(changes, ledger.FieldChange{Field: d.Name, New: d.Format(&incoming)})
			continue
		}
		if d.Equal(&current.Fields, &incoming) {
			continue
		}
		old := d.Format(&current.Fields)
		changes = append(changes, ledger.FieldChange{Field: d.Name, Old: &old, New: d.Format(&incoming)})
	}
	return DiffResult{Changed: len(changes) > 0, Changes: changes}
}
