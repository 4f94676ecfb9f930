// Package domain defines the core entities for fieldsync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Row / FieldValue: a Content record's Record-Set field and its child rows
//   - RemoteRecord: a CRM child record belonging to one parent Entity
//   - Plan / Action: the create/update/delete work produced by a diff
//   - RawEvent / ChildEvent: notifications before and after normalisation
//   - RecordEvent: notifications emitted after a CRM write
//   - Origin: the request-scoped marker used by the reverse-edit guard
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
