// Package config loads the service configuration.
//
// Values come from environment variables, optionally seeded from a .env file.
// Every field declares its key with a mapstructure tag and its fallback with a
// default tag; nested sections become prefixes, so reconcile.max_retries is
// read from RECONCILE_MAX_RETRIES.
//
// # Sections
//
//   - Server: HTTP port, API key, upload limit, default actor
//   - Database: ledger backend (mysql, sqlite, memory) and connection details
//   - Storage: MinIO/S3 archive for uploaded workbooks
//   - Log: level and format
//   - Reconcile: retry budget, normalizer workers, in-memory lock wait
//   - Lock: optional Redis lock shared by several instances
//
// Validate checks the loaded values with the validate struct tags.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
