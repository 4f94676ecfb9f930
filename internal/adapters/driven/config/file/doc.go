// Package file provides the file-based ConfigStore.
//
// Configuration lives in config.toml inside the fieldsync config directory.
// Nested tables are read as dot-notation keys ([crm] base_url becomes
// "crm.base_url") and written back as tables.
package file
