package domain

// RawEvent is a create/update/delete notification as it arrives from either system.
type RawEvent struct {
	// System is where the change happened.
	System System `json:"system"`

	// Op is the raw operation name ("create", "edit", "update", "delete").
	Op string `json:"op"`

	// Object is the raw entity name ("Address", "Phone", "EntityFile", "address", ...).
	Object string `json:"object"`

	// ObjectID is the child record's ID.
	ObjectID int64 `json:"object_id"`

	// Payload is the record's fields, possibly partial for deletes.
	Payload map[string]any `json:"payload"`
}

// ChildEvent is a normalised notification about one CRM child record.
type ChildEvent struct {
	Op       Operation
	Kind     EntityKind
	EntityID int64
	ParentID int64
	Record   RemoteRecord
	System   System
}

// EventType names the notifications emitted after CRM writes.
type EventType string

const (
	// EventChildCreated fires after a CRM create succeeds.
	EventChildCreated EventType = "child_record.created"

	// EventChildUpdated fires after a CRM update succeeds.
	EventChildUpdated EventType = "child_record.updated"

	// EventChildDeleted fires after a CRM delete succeeds.
	EventChildDeleted EventType = "child_record.deleted"
)

// RecordEvent is emitted once per successful CRM write, in bucket order.
type RecordEvent struct {
	Type EventType
	Kind EntityKind

	// Key is the row position in the pushed field value, -1 for deletes.
	Key int

	// Value is the content row as pushed.
	Value Row

	// Record is the CRM record after the write (before it, for deletes).
	Record *RemoteRecord

	// RemoteID is set for deletes.
	RemoteID int64

	ParentID int64
	RecordID int64
	Field    string
}

// Origin marks which system and identifier started the current request.
type Origin struct {
	System   System
	Kind     EntityKind
	EntityID int64
	RecordID int64
}

// IsZero reports whether no origin is set.
func (o Origin) IsZero() bool {
	return o.System == ""
}
