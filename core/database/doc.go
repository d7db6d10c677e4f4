// Package database opens the SQL connection behind the receipt ledger.
//
// Connect supports MySQL for deployments and SQLite for local runs and tests.
// Every connection is opened with GORM's TranslateError so duplicate keys
// surface as gorm.ErrDuplicatedKey, which the ledger store relies on to detect
// racing receipt creation. Timestamps are stored in UTC.
//
// # Schema Inspection
//
// GetTableColumns and MissingColumns read the live schema of a table. The
// integrity feature uses them to compare the database with the ledger models.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	missing, err := database.MissingColumns(db, "receipts", []string{"id", "receipt_number"})
package database
