package checks

import (
	"context"
	"fmt"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/reconcile"
)

// ledgerPageSize is how many receipts are read per page while scanning.
const ledgerPageSize = 200

// LedgerIssue is one inconsistency found on one receipt.
type LedgerIssue struct {
	Identifier string `json:"receipt_number"`
	Problem    string `json:"problem"`
}

// LedgerReport strictly types the result of a ledger check.
type LedgerReport struct {
	Matched  bool          `json:"matched"`
	Receipts int           `json:"receipts"`
	Versions int           `json:"versions"`
	Issues   []LedgerIssue `json:"issues"`
}

// CheckLedger walks every receipt and verifies its history:
// version numbers run 1..N without gaps, the current pointer references
// version N, and the audit entries of every version equal the diff against
// the version before it.
func CheckLedger(ctx context.Context, r ledger.Reader) (*LedgerReport, error) {
	report := &LedgerReport{Matched: true, Issues: []LedgerIssue{}}

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.ListEntities(ctx, ledger.Filter{Page: page, PageSize: ledgerPageSize})
		if err != nil {
			return nil, fmt.Errorf("list receipts: %w", err)
		}
		for _, summary := range res.Items {
			issues, versions, err := checkReceipt(ctx, r, summary.Entity)
			if err != nil {
				return nil, err
			}
			report.Receipts++
			report.Versions += versions
			report.Issues = append(report.Issues, issues...)
		}
		if page >= res.TotalPages() {
			break
		}
	}

	report.Matched = len(report.Issues) == 0
	return report, nil
}

func checkReceipt(ctx context.Context, r ledger.Reader, entity ledger.Entity) ([]LedgerIssue, int, error) {
	versions, err := r.ListVersions(ctx, entity.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("list versions of %s: %w", entity.Identifier, err)
	}
	entries, err := r.ListAuditEntries(ctx, entity.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries of %s: %w", entity.Identifier, err)
	}

	var issues []LedgerIssue
	report := func(format string, args ...any) {
		issues = append(issues, LedgerIssue{Identifier: entity.Identifier, Problem: fmt.Sprintf(format, args...)})
	}

	for i, v := range versions {
		if v.Number != i+1 {
			report("version %d found at position %d", v.Number, i+1)
			break
		}
	}

	switch n := len(versions); {
	case n == 0:
		if entity.CurrentVersionID != nil || entity.CurrentNumber != 0 {
			report("points at version %d but has no versions", entity.CurrentNumber)
		}
	default:
		last := versions[n-1]
		if entity.CurrentNumber != last.Number {
			report("current number is %d, latest version is %d", entity.CurrentNumber, last.Number)
		}
		if entity.CurrentVersionID == nil || *entity.CurrentVersionID != last.ID {
			report("current pointer does not reference version %d", last.Number)
		}
	}

	byVersion := make(map[string][]ledger.AuditEntry, len(versions))
	for _, e := range entries {
		byVersion[e.VersionID] = append(byVersion[e.VersionID], e)
	}
	var prev *ledger.Version
	for i := range versions {
		v := &versions[i]
		want := reconcile.Diff(v.Fields, prev).Changes
		if !sameChanges(want, byVersion[v.ID]) {
			report("audit entries of version %d do not match its changes (%d expected, %d recorded)",
				v.Number, len(want), len(byVersion[v.ID]))
		}
		delete(byVersion, v.ID)
		prev = v
	}
	for versionID, orphaned := range byVersion {
		report("%d audit entries reference unknown version %s", len(orphaned), versionID)
	}
	return issues, len(versions), nil
}

func sameChanges(want []ledger.FieldChange, got []ledger.AuditEntry) bool {
	if len(want) != len(got) {
		return false
	}
	recorded := make(map[string]bool, len(got))
	for _, e := range got {
		recorded[changeKey(e.Field, e.Old, e.New)] = true
	}
	for _, c := range want {
		if !recorded[changeKey(c.Field, c.Old, c.New)] {
			return false
		}
	}
	return true
}

func changeKey(field string, old *string, value string) string {
	if old == nil {
		return field + "\x00<nil>\x00" + value
	}
	return field + "\x00" + *old + "\x00" + value
}
