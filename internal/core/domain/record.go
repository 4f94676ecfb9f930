package domain

import "sort"

// RemoteRecord is a CRM child record belonging to exactly one parent Entity.
type RemoteRecord struct {
	// ID is unique within the record's table.
	ID int64

	// ParentID is the owning Entity's ID.
	ParentID int64

	// Fields is the domain payload as returned by the CRM.
	Fields map[string]any
}

// Clone returns a copy of the record with its own Fields map.
func (r RemoteRecord) Clone() RemoteRecord {
	out := r
	if r.Fields != nil {
		out.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Payload is the body of a CRM create or update call.
type Payload map[string]any

// Clone returns a copy of the payload.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into p, overwriting existing keys.
func (p Payload) Merge(other map[string]any) Payload {
	for k, v := range other {
		p[k] = v
	}
	return p
}

// Filter narrows a CRM get call. It always carries the parent key.
type Filter map[string]any

// Matches reports whether every filter entry equals the record's field.
// Values are compared in their string form so "1" matches 1.
func (f Filter) Matches(fields map[string]any) bool {
	for k, want := range f {
		if ToString(fields[k]) != ToString(want) {
			return false
		}
	}
	return true
}

// Keys returns the filter keys in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FieldDef describes one Record-Set field on a Content record.
type FieldDef struct {
	// Selector is the field's storage key.
	Selector string

	// Kind is the entity kind the field mirrors.
	Kind EntityKind

	// Filter holds discriminators (location_type_id, phone_type_id, ...) that
	// narrow which CRM records belong to this field. Merged into create payloads.
	Filter Filter

	// Label is the human-readable name.
	Label string
}

// FieldRef points at one stored field.
type FieldRef struct {
	RecordID int64
	Selector string
}

// Accepts reports whether a CRM record belongs in this field.
func (d FieldDef) Accepts(rec RemoteRecord) bool {
	if len(d.Filter) == 0 {
		return true
	}
	return d.Filter.Matches(rec.Fields)
}

// FileMeta is the Metadata Bridge cross-reference for one local file.
type FileMeta struct {
	// LocalPath is the path the file had when the CRM last saw it.
	LocalPath string

	// RemotePath is where the CRM holds its copy.
	RemotePath string
}
