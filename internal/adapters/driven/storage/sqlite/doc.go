// Package sqlite provides a unified SQLite-based implementation of the
// Content-side driven ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. It implements multiple store interfaces through a single database connection:
//
//   - FieldStore: Record-Set field values, stored as JSON arrays
//   - FieldCatalog: which fields a record carries and the kind each mirrors
//   - EntityResolver: parent Entity to Content record mappings
//   - MetadataStore: the attachment cross-reference side table
//   - FileStore: local file registry, with imports pulled through a Fetcher
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.fieldsync/data/fieldsync.db and
// imported files under ~/.fieldsync/data/files.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
