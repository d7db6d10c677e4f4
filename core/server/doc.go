// Package server holds the HTTP server configuration.
//
// The main application entry point (cmd/start.go) builds the Fiber app; this package
// only defines the listening port, the API key and the upload limits.
package server
