package reconcile

import (
	"context"
	"time"

	"receipt-ledger/core/ledger"
)

// AuditLogger turns field changes into audit entries.
type AuditLogger struct{}

// Record writes one entry per change, all citing version. It must run in the
// transaction that created version so neither is visible without the other.
func (AuditLogger) Record(ctx context.Context, w ledger.AuditWriter, entity *ledger.Entity, version *ledger.Version, changes []ledger.FieldChange, actor string, at time.Time, reason string) error {
	if len(changes) == 0 {
		return nil
	}
	entries := make([]ledger.AuditEntry, 0, len(changes))
	for _, c := range changes {
		entries = append(entries, ledger.AuditEntry{
			EntityID:      entity.ID,
			VersionID:     version.ID,
			VersionNumber: version.Number,
			Field:         c.Field,
			Old:           c.Old,
			New:           c.New,
			Actor:         actor,
			At:            at,
			Reason:        reason,
		})
	}
	return w.AppendAuditEntries(ctx, entries)
}
