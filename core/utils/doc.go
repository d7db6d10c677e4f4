// Package utils holds small conversion helpers shared by the spreadsheet parser,
// the normalizer and the HTTP handlers.
package utils
