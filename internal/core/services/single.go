package services

import (
	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/logger"
)

// singleValueHook keeps a single-value field bound to the one CRM record
// its filter selects. valueKey is the sub-field whose emptiness means
// the value was cleared.
func singleValueHook(valueKey string) PlanHook {
	return func(p *Pass, rows domain.FieldValue, current []domain.RemoteRecord) domain.FieldValue {
		if len(rows) == 0 {
			return rows
		}
		if len(rows) > 1 {
			logger.Warn("Field %s holds %d rows, only the first is synced", p.Field.Selector, len(rows))
		}

		row := rows[0]
		if row.String(valueKey) == "" {
			return nil
		}
		if len(current) == 0 {
			return domain.FieldValue{row}
		}

		id, linked := row.RemoteID()
		if !linked || !holds(current, id) {
			row = row.Clone()
			row.SetRemoteID(current[0].ID)
		}
		return domain.FieldValue{row}
	}
}

func holds(recs []domain.RemoteRecord, id int64) bool {
	for _, rec := range recs {
		if rec.ID == id {
			return true
		}
	}
	return false
}

// replaceSingle makes row the field's whole value.
func replaceSingle(value domain.FieldValue, row domain.Row) (domain.FieldValue, bool, error) {
	if len(value) == 1 {
		merged := value[0].Clone()
		for k, v := range row {
			if v != nil {
				merged[k] = v
			}
		}
		row = merged
	}
	out := domain.FieldValue{row}
	return out, !sameValue(value, out), nil
}
