package services

import (
	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// EnforcePrimary demotes every other row when incoming is primary.
// The row linked to the same remote_id as incoming is left alone since
// incoming is about to replace it. existing is not modified.
func EnforcePrimary(existing domain.FieldValue, incoming domain.Row) domain.FieldValue {
	out := existing.Clone()
	if !incoming.IsPrimary() {
		return out
	}
	incomingID, linked := incoming.RemoteID()
	for _, row := range out {
		if id, ok := row.RemoteID(); linked && ok && id == incomingID {
			continue
		}
		if _, has := row[domain.FieldIsPrimary]; has || row.IsPrimary() {
			row[domain.FieldIsPrimary] = false
		}
	}
	return out
}

// ApplyChange applies one CRM change to a field value and reports whether
// anything changed. An edit for a record the value does not hold becomes a
// create. The input value is never modified.
func ApplyChange(value domain.FieldValue, op domain.Operation, row domain.Row, enforcePrimary bool) (domain.FieldValue, bool) {
	id, _ := row.RemoteID()
	idx := value.IndexOf(id)

	if op == domain.OpEdit && idx < 0 {
		op = domain.OpCreate
	}

	switch op {
	case domain.OpDelete:
		if idx < 0 {
			return value, false
		}
		out := make(domain.FieldValue, 0, len(value)-1)
		out = append(out, value[:idx]...)
		out = append(out, value[idx+1:]...)
		return out.Clone(), true

	case domain.OpCreate:
		if idx >= 0 {
			// Already present: the create notification raced a patch. Treat as edit.
			return replaceRow(value, idx, row, enforcePrimary)
		}
		out := value.Clone()
		if enforcePrimary {
			out = EnforcePrimary(out, row)
		}
		return append(out, row.Clone()), true

	default:
		return replaceRow(value, idx, row, enforcePrimary)
	}
}

// replaceRow overlays row onto value[idx]. Nil sub-fields in row keep the
// existing value so Content-only sub-fields survive.
func replaceRow(value domain.FieldValue, idx int, row domain.Row, enforcePrimary bool) (domain.FieldValue, bool) {
	out := value.Clone()
	if enforcePrimary {
		out = EnforcePrimary(out, row)
	}
	merged := out[idx].Clone()
	for k, v := range row {
		if v == nil {
			continue
		}
		merged[k] = v
	}
	changed := !sameRow(value[idx], merged) || !sameValue(value, out)
	out[idx] = merged
	return out, changed
}

func sameRow(a, b domain.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || domain.ToString(v) != domain.ToString(w) {
			return false
		}
	}
	return true
}

func sameValue(a, b domain.FieldValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameRow(a[i], b[i]) {
			return false
		}
	}
	return true
}
