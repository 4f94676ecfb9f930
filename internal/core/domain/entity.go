package domain

import (
	"fmt"
	"strings"
)

// EntityKind identifies a family of CRM child records.
type EntityKind string

const (
	// KindAddress is a contact's postal address.
	KindAddress EntityKind = "address"

	// KindPhone is a contact's phone number, held as a set.
	KindPhone EntityKind = "phone"

	// KindEmail is a contact's email address.
	KindEmail EntityKind = "email"

	// KindMultiset is a generic child record of a custom entity.
	KindMultiset EntityKind = "multiset"

	// KindAttachment is a file attached to an activity.
	KindAttachment EntityKind = "attachment"

	// KindPhoneSingle is one phone record selected by location and phone type.
	// Its field value holds at most one row.
	KindPhoneSingle EntityKind = "phone_single"
)

// Parent entity types.
const (
	ParentContact  = "contact"
	ParentActivity = "activity"
	ParentEntity   = "entity"
)

// AllKinds lists every supported kind in registration order.
func AllKinds() []EntityKind {
	return []EntityKind{
		KindAddress,
		KindPhone,
		KindEmail,
		KindMultiset,
		KindAttachment,
		KindPhoneSingle,
	}
}

// IsValid reports whether k is a supported kind.
func (k EntityKind) IsValid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ParentType returns the type of Entity that owns records of this kind.
func (k EntityKind) ParentType() string {
	switch k {
	case KindAttachment:
		return ParentActivity
	case KindMultiset:
		return ParentEntity
	default:
		return ParentContact
	}
}

// HasPrimary reports whether records of this kind carry an is_primary flag.
func (k EntityKind) HasPrimary() bool {
	switch k {
	case KindAddress, KindPhone, KindEmail, KindPhoneSingle:
		return true
	default:
		return false
	}
}

// IsSingle reports whether fields of this kind hold at most one row.
func (k EntityKind) IsSingle() bool {
	return k == KindPhoneSingle
}

// ParseKind converts a string to an EntityKind.
func ParseKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
	return k, nil
}

// Operation is the change reported by either system.
type Operation string

const (
	// OpCreate indicates a new record.
	OpCreate Operation = "create"

	// OpEdit indicates a modified record.
	OpEdit Operation = "edit"

	// OpDelete indicates a removed record.
	OpDelete Operation = "delete"
)

// ParseOperation normalises an operation name. "update" is accepted for "edit".
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create", "created":
		return OpCreate, nil
	case "edit", "update", "updated":
		return OpEdit, nil
	case "delete", "deleted":
		return OpDelete, nil
	default:
		return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, s)
	}
}

// System identifies one side of the synchronisation.
type System string

const (
	// SystemContent is the system holding records with named typed fields.
	SystemContent System = "content"

	// SystemCRM is the relational system of record.
	SystemCRM System = "crm"
)

// Object returns the CRM entity name records of this kind live in.
// Set and single-value phones share one table.
func (k EntityKind) Object() string {
	switch k {
	case KindAddress:
		return "Address"
	case KindPhone, KindPhoneSingle:
		return "Phone"
	case KindEmail:
		return "Email"
	case KindAttachment:
		return "Attachment"
	case KindMultiset:
		return "Multiset"
	default:
		return string(k)
	}
}

// KindsForObject returns every kind stored in the named CRM entity.
// Matching is case-insensitive; kind names are accepted as aliases.
func KindsForObject(object string) []EntityKind {
	name := strings.ToLower(strings.TrimSpace(object))
	switch name {
	case "entityfile", "file":
		name = "attachment"
	}
	var kinds []EntityKind
	for _, k := range AllKinds() {
		if strings.ToLower(k.Object()) == name || string(k) == name {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
