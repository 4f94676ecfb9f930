package codecs

import (
	"math"
	"strings"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// multisetCodec passes every sub-field through. Keys ending in "_id" are
// treated as foreign keys and coerced to integers. Keys starting with "is_"
// are flags: booleans go out as "1" or "0" and come back as booleans.
type multisetCodec struct{}

// NewMultisetCodec returns the codec for generic custom-entity records.
func NewMultisetCodec() Codec {
	return multisetCodec{}
}

func (multisetCodec) Kind() domain.EntityKind { return domain.KindMultiset }
func (multisetCodec) ParentKey() string       { return "entity_id" }

// ToContent converts a CRM record to a Content row.
func (c multisetCodec) ToContent(rec domain.RemoteRecord) domain.Row {
	row := domain.Row{domain.FieldRemoteID: remoteIDValue(rec.ID)}
	for k, v := range rec.Fields {
		if k == "id" || k == c.ParentKey() {
			continue
		}
		switch {
		case isForeignKey(k):
			row[k] = fromRemoteInt(v)
		case isFlag(k):
			row[k] = fromRemoteFlag(v)
		default:
			row[k] = fromRemoteScalar(v)
		}
	}
	return row
}

// ToRemote converts a Content row to a CRM payload.
func (c multisetCodec) ToRemote(row domain.Row, existingID int64) domain.Payload {
	p := domain.Payload{}
	if existingID > 0 {
		p["id"] = existingID
	}
	for k, v := range row {
		if k == domain.FieldRemoteID || k == "id" || k == c.ParentKey() {
			continue
		}
		switch x := v.(type) {
		case bool:
			p[k] = flag(x)
		default:
			if isForeignKey(k) {
				setRemoteInt(p, k, v, existingID > 0)
				continue
			}
			if n, ok := integral(v); ok {
				p[k] = n
				continue
			}
			setRemoteText(p, k, v, existingID > 0)
		}
	}
	return p
}

func isForeignKey(k string) bool {
	return strings.HasSuffix(k, "_id")
}

func isFlag(k string) bool {
	return strings.HasPrefix(k, "is_")
}

// fromRemoteFlag maps "1" and "0" to booleans. Other values pass through.
func fromRemoteFlag(v any) any {
	switch domain.ToString(v) {
	case "1":
		return true
	case "0":
		return false
	}
	return fromRemoteScalar(v)
}

func fromRemoteScalar(v any) any {
	switch x := v.(type) {
	case string:
		return fromRemoteText(x)
	case nil:
		return ""
	default:
		if n, ok := integral(x); ok {
			return n
		}
		return domain.ToString(x)
	}
}

// integral reports whether v is a whole number and returns it.
func integral(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return int64(n), true
		}
	}
	return 0, false
}
