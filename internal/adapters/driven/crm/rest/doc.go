// Package rest implements driven.CRMClient against a JSON/REST CRM API.
//
// Each entity kind maps to a collection named after its CRM object
// (Address, Phone, Email, Multiset, Attachment). Requests are
// rate limited, authenticated with a bearer token and guarded by a
// circuit breaker. An open breaker or an unreachable server reports
// domain.ErrNotInitialized so reconciliation passes abort before writing.
//
// Wire format:
//
//	GET    {base}/{object}?k=v      -> {"values": [{...}, ...]}
//	POST   {base}/{object}          -> {"values": [{...}]}
//	PATCH  {base}/{object}/{id}     -> {"values": [{...}]}
//	DELETE {base}/{object}/{id}
//	GET    {base}/files/{path}      -> raw bytes
//
// Attachment creates carrying a file_path are sent as multipart/form-data
// with the binary in the "file" part.
package rest
