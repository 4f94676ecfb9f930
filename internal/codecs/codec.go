package codecs

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// EmptySentinel is the value the CRM uses to clear a field.
const EmptySentinel = "null"

// Codec converts between one kind's CRM records and Content rows.
type Codec interface {
	// Kind returns the entity kind handled.
	Kind() domain.EntityKind

	// ParentKey is the CRM field holding the parent Entity ID.
	ParentKey() string

	// ToContent converts a CRM record to a Content row carrying remote_id.
	ToContent(rec domain.RemoteRecord) domain.Row

	// ToRemote converts a Content row to a CRM payload. When existingID is
	// non-zero the payload carries it as "id".
	ToRemote(row domain.Row, existingID int64) domain.Payload
}

// Registry selects a Codec by kind.
type Registry struct {
	mu     sync.RWMutex
	codecs map[domain.EntityKind]Codec
}

// NewRegistry creates a registry holding the built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[domain.EntityKind]Codec)}
	r.Register(NewAddressCodec())
	r.Register(NewPhoneCodec())
	r.Register(NewSinglePhoneCodec())
	r.Register(NewEmailCodec())
	r.Register(NewMultisetCodec())
	r.Register(NewAttachmentCodec())
	return r
}

// Register adds or replaces the codec for its kind.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.Kind()] = c
}

// Get returns the codec for kind.
func (r *Registry) Get(kind domain.EntityKind) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no codec for %q", domain.ErrUnsupportedKind, kind)
	}
	return c, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []domain.EntityKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]domain.EntityKind, 0, len(r.codecs))
	for k := range r.codecs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Changed reports whether pushing row would alter current.
// Only the sub-fields present in row are compared.
func Changed(c Codec, row domain.Row, current domain.RemoteRecord) bool {
	want := c.ToRemote(row, current.ID)
	have := c.ToRemote(c.ToContent(current), current.ID)
	for k, v := range want {
		if k == "id" {
			continue
		}
		if domain.ToString(v) != domain.ToString(have[k]) {
			return true
		}
	}
	return false
}

// RecordFromPayload reads a payload back as if the CRM had stored it.
func RecordFromPayload(c Codec, p domain.Payload) domain.RemoteRecord {
	fields := make(map[string]any, len(p))
	for k, v := range p {
		fields[k] = v
	}
	return domain.RemoteRecord{
		ID:       domain.ToInt(p["id"]),
		ParentID: domain.ToInt(p[c.ParentKey()]),
		Fields:   fields,
	}
}

// fieldType is how a sub-field is encoded.
type fieldType int

const (
	textField fieldType = iota
	intField
	flagField
)

// subField maps one Content sub-field to one CRM field.
type subField struct {
	content string
	remote  string
	typ     fieldType
}

// schemaCodec is a Codec driven by a fixed sub-field table.
type schemaCodec struct {
	kind      domain.EntityKind
	parentKey string
	fields    []subField
}

func (c *schemaCodec) Kind() domain.EntityKind { return c.kind }
func (c *schemaCodec) ParentKey() string       { return c.parentKey }

// ToContent converts a CRM record to a Content row.
func (c *schemaCodec) ToContent(rec domain.RemoteRecord) domain.Row {
	row := domain.Row{domain.FieldRemoteID: remoteIDValue(rec.ID)}
	for _, f := range c.fields {
		v := rec.Fields[f.remote]
		switch f.typ {
		case textField:
			row[f.content] = fromRemoteText(v)
		case intField:
			row[f.content] = fromRemoteInt(v)
		case flagField:
			row[f.content] = domain.ToBool(v)
		}
	}
	return row
}

// ToRemote converts a Content row to a CRM payload.
func (c *schemaCodec) ToRemote(row domain.Row, existingID int64) domain.Payload {
	p := domain.Payload{}
	if existingID > 0 {
		p["id"] = existingID
	}
	for _, f := range c.fields {
		v, ok := row[f.content]
		if !ok {
			continue
		}
		switch f.typ {
		case textField:
			setRemoteText(p, f.remote, v, existingID > 0)
		case intField:
			setRemoteInt(p, f.remote, v, existingID > 0)
		case flagField:
			p[f.remote] = flag(v)
		}
	}
	return p
}

func remoteIDValue(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

func fromRemoteText(v any) string {
	s := domain.ToString(v)
	if s == EmptySentinel {
		return ""
	}
	return s
}

func fromRemoteInt(v any) any {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == EmptySentinel {
		return ""
	}
	n := domain.ToInt(v)
	if n == 0 {
		return ""
	}
	return n
}

func setRemoteText(p domain.Payload, key string, v any, existing bool) {
	s := domain.ToString(v)
	if s == EmptySentinel {
		s = ""
	}
	switch {
	case s != "":
		p[key] = s
	case existing:
		p[key] = EmptySentinel
	}
}

func setRemoteInt(p domain.Payload, key string, v any, existing bool) {
	n := domain.ToInt(v)
	switch {
	case n != 0:
		p[key] = n
	case existing:
		p[key] = EmptySentinel
	}
}

func flag(v any) string {
	if domain.ToBool(v) {
		return "1"
	}
	return "0"
}
