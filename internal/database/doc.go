// Package database provides SQLite-based storage for cookieaudit.
//
// The AuditDB stores:
//   - Audit runs as JSON documents, used as the run cache
//   - The evidence buffer of the live scan, one row per page submission
//   - The option table the static analyzer searches for tracking ids
//
// SQLite (via modernc.org/sqlite) keeps the whole state in one CGO-free
// file under the data directory. WAL mode lets the evidence sink append
// while a report reads.
package database
