package checks

import (
	"fmt"
	"sort"

	"receipt-ledger/core/database"

	"gorm.io/gorm"
)

// SchemaReport strictly types the result of a schema check.
type SchemaReport struct {
	Matched bool                   `json:"matched"`
	Tables  map[string]TableReport `json:"tables"`
	Errors  []string               `json:"errors"`
}

type TableReport struct {
	MissingColumns []string `json:"missing_columns"`
	Status         string   `json:"status"` // "ok", "error"
}

// CheckSchema verifies that every expected table carries its expected columns.
// A table that cannot be inspected is reported in Errors, not returned.
func CheckSchema(db *gorm.DB, expected map[string][]string) (*SchemaReport, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	report := &SchemaReport{
		Matched: true,
		Tables:  make(map[string]TableReport, len(expected)),
		Errors:  []string{},
	}

	tables := make([]string, 0, len(expected))
	for table := range expected {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		missing, err := database.MissingColumns(db, table, expected[table])
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Failed to inspect table %s: %v", table, err))
			report.Matched = false
			continue
		}

		tbl := TableReport{MissingColumns: []string{}, Status: "ok"}
		if len(missing) > 0 {
			tbl.MissingColumns = missing
			tbl.Status = "error"
			report.Matched = false
		}
		report.Tables[table] = tbl
	}
	return report, nil
}
