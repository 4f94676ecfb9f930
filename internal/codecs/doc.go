// Package codecs converts CRM child records to Content field rows and back.
//
// There is one Codec per entity kind, selected once through a Registry.
// Codecs are pure: they never call the network and never fail. Missing
// sub-fields default to empty or zero.
//
// Conventions on every kind:
//
//   - strings are trimmed
//   - id and foreign-key sub-fields are coerced to int64
//   - the CRM empty sentinel "null" reads as "" on the Content side
//   - a sub-field cleared on an existing record is sent as "null"
//   - flags are "0"/"1" towards the CRM and bool on the Content side
//   - ToRemote only emits sub-fields present in the row, so a partial
//     row never clears data it does not mention
package codecs
