// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - CRMClient: get/create/update/delete of CRM child records
//   - FieldStore: Content field value persistence
//   - FieldCatalog: which Record-Set fields a Content record carries
//   - EntityResolver: parent Entity to Content record mapping, both ways
//   - ConfigStore: Application configuration
//
// # Attachment Interfaces
//
// Only the attachment kind needs these:
//
//   - MetadataStore: the local/remote path cross-reference side table
//   - FileStore: Content-side binary resources
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
