package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Well-known row sub-fields.
const (
	// FieldRemoteID links a content row to its CRM record. Empty until the record exists.
	FieldRemoteID = "remote_id"

	// FieldIsPrimary marks the primary row of a set.
	FieldIsPrimary = "is_primary"
)

// Row is one child row of a Record-Set field: sub-field name to scalar value.
type Row map[string]any

// FieldValue is the ordered value of a Record-Set field.
// Order carries no meaning but is preserved across read-modify-write.
type FieldValue []Row

// RemoteID returns the row's CRM record ID, if it has one.
func (r Row) RemoteID() (int64, bool) {
	id := ToInt(r[FieldRemoteID])
	return id, id > 0
}

// SetRemoteID stores the CRM record ID on the row.
func (r Row) SetRemoteID(id int64) {
	r[FieldRemoteID] = id
}

// IsPrimary reports whether the row carries the primary flag.
func (r Row) IsPrimary() bool {
	return ToBool(r[FieldIsPrimary])
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the sub-field as a trimmed string.
func (r Row) String(key string) string {
	return ToString(r[key])
}

// Clone returns a copy of the value with every row cloned.
func (v FieldValue) Clone() FieldValue {
	if v == nil {
		return nil
	}
	out := make(FieldValue, len(v))
	for i, row := range v {
		out[i] = row.Clone()
	}
	return out
}

// IndexOf returns the position of the row linked to remoteID, or -1.
func (v FieldValue) IndexOf(remoteID int64) int {
	if remoteID <= 0 {
		return -1
	}
	for i, row := range v {
		if id, ok := row.RemoteID(); ok && id == remoteID {
			return i
		}
	}
	return -1
}

// PrimaryCount returns how many rows carry the primary flag.
func (v FieldValue) PrimaryCount() int {
	n := 0
	for _, row := range v {
		if row.IsPrimary() {
			n++
		}
	}
	return n
}

// Equal reports whether both values hold the same rows in the same order.
// Sub-fields compare by their string form, so 1, "1" and true are equal.
func (v FieldValue) Equal(other FieldValue) bool {
	if len(v) != len(other) {
		return false
	}
	for i, row := range v {
		if len(row) != len(other[i]) {
			return false
		}
		for k, a := range row {
			b, ok := other[i][k]
			if !ok || ToString(a) != ToString(b) {
				return false
			}
		}
	}
	return true
}

// ToInt coerces a scalar to int64. Anything unparseable is zero.
func ToInt(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return 0
		}
		return int64(n)
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return 0
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// ToBool coerces a scalar to bool. "1", "true", "yes" and non-zero numbers are true.
func ToBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "yes", "on":
			return true
		default:
			return false
		}
	default:
		return ToInt(v) != 0
	}
}

// ToString coerces a scalar to a trimmed string. nil is empty.
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case bool:
		if s {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		if s == math.Trunc(s) && math.Abs(s) < 1e15 {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case interface{ String() string }:
		return strings.TrimSpace(s.String())
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}
