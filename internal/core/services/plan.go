package services

import (
	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// BuildPlan buckets incoming rows against the current CRM records.
//
// The algorithm:
//  1. Index current records by ID
//  2. For each incoming row, in order:
//     - no remote_id → Create
//     - remote_id already claimed by an earlier row → Duplicate
//     - remote_id found in current → Update
//     - remote_id not found → Create (the CRM lost it, recreate)
//  3. For each current record whose ID no row references → Delete
//
// Deletion is a set difference on IDs, so row order never matters.
// Creates and updates keep incoming order, deletes keep current order.
func BuildPlan(current []domain.RemoteRecord, rows domain.FieldValue) *domain.Plan {
	byID := make(map[int64]*domain.RemoteRecord, len(current))
	for i := range current {
		byID[current[i].ID] = &current[i]
	}

	plan := &domain.Plan{}
	claimed := make(map[int64]bool, len(rows))

	for key, row := range rows {
		id, linked := row.RemoteID()
		if !linked {
			plan.Creates = append(plan.Creates, domain.Action{Type: domain.ActionCreate, Key: key, Row: row})
			continue
		}
		if claimed[id] {
			plan.Duplicates = append(plan.Duplicates, domain.Action{Type: domain.ActionUpdate, Key: key, RemoteID: id, Row: row})
			continue
		}
		claimed[id] = true

		rec, ok := byID[id]
		if !ok {
			plan.Creates = append(plan.Creates, domain.Action{Type: domain.ActionCreate, Key: key, Row: row})
			continue
		}
		plan.Updates = append(plan.Updates, domain.Action{
			Type:     domain.ActionUpdate,
			Key:      key,
			RemoteID: id,
			Row:      row,
			Current:  rec,
		})
	}

	for i := range current {
		if claimed[current[i].ID] {
			continue
		}
		plan.Deletes = append(plan.Deletes, domain.Action{
			Type:     domain.ActionDelete,
			Key:      -1,
			RemoteID: current[i].ID,
			Current:  &current[i],
		})
	}

	return plan
}
