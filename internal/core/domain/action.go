package domain

// ActionType is the kind of reconciliation work.
type ActionType string

const (
	// ActionCreate creates a CRM record from a row.
	ActionCreate ActionType = "create"

	// ActionUpdate updates a CRM record from a row.
	ActionUpdate ActionType = "update"

	// ActionDelete deletes a CRM record.
	ActionDelete ActionType = "delete"
)

// Action is one unit of reconciliation work.
type Action struct {
	// Type is create, update or delete.
	Type ActionType

	// Key is the row's position in the incoming value. -1 for deletes.
	Key int

	// RemoteID is the target CRM record for update and delete.
	RemoteID int64

	// Row is the content row for create and update.
	Row Row

	// Current is the CRM record being updated or deleted, when known.
	Current *RemoteRecord
}

// Plan buckets incoming rows against the current CRM records.
type Plan struct {
	// Creates are rows with no remote_id, or one the CRM no longer has.
	Creates []Action

	// Updates are rows whose remote_id matches a current record.
	Updates []Action

	// Deletes are current records whose ID no incoming row references.
	Deletes []Action

	// Duplicates are rows claiming a remote_id an earlier row already claimed.
	// They are neither created nor updated.
	Duplicates []Action
}

// IsEmpty reports whether the plan has no work in any bucket.
func (p *Plan) IsEmpty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// DeleteIDs returns the IDs scheduled for deletion, in plan order.
func (p *Plan) DeleteIDs() []int64 {
	ids := make([]int64, 0, len(p.Deletes))
	for _, a := range p.Deletes {
		ids = append(ids, a.RemoteID)
	}
	return ids
}

// UpdateIDs returns the IDs scheduled for update, in plan order.
func (p *Plan) UpdateIDs() []int64 {
	ids := make([]int64, 0, len(p.Updates))
	for _, a := range p.Updates {
		ids = append(ids, a.RemoteID)
	}
	return ids
}

// Result is the outcome of one Content to CRM reconciliation pass.
type Result struct {
	// Records are the CRM records touched, in bucket order.
	Records []RemoteRecord

	// Assigned maps an incoming row position to the record now backing it.
	// Filled by creates and by attachment delete-then-recreate.
	Assigned map[int]RemoteRecord

	// Removed lists the IDs that were deleted.
	Removed []int64

	// Failures are rows whose CRM call failed. They are non-fatal.
	Failures []*RowFailure

	// Skipped counts updates dropped because nothing changed.
	Skipped int

	// Stats counts successful writes per bucket.
	Stats Stats
}

// NewResult returns an empty result.
func NewResult() *Result {
	return &Result{Assigned: make(map[int]RemoteRecord)}
}

// Touched reports whether any CRM record was written.
func (r *Result) Touched() bool {
	return r != nil && (len(r.Records) > 0 || len(r.Removed) > 0)
}

// Stats summarises a pass for logging and status output.
type Stats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
