// Package spreadsheet reads receipt workbooks into reconcile rows.
//
// Only the first sheet is read. Its first row holds the headers, which are
// matched case-insensitively against the field names and a table of common
// aliases ("Receipt No.", "Grade", "Mode", "Tuition", ...). Unknown columns are
// ignored. Every following row that has at least one non-blank cell becomes a
// reconcile.Row tagged with its sheet line number.
//
// The parser does no value validation. Cells are passed on as text, except in
// the date column where numeric cells are Excel serial dates and are converted
// to time.Time.
package spreadsheet
