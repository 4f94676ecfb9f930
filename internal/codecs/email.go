package codecs

import "github.com/custodia-labs/fieldsync/internal/core/domain"

// NewEmailCodec returns the codec for contact email addresses.
func NewEmailCodec() Codec {
	return &schemaCodec{
		kind:      domain.KindEmail,
		parentKey: "contact_id",
		fields: []subField{
			{"location_type", "location_type_id", intField},
			{"email", "email", textField},
			{domain.FieldIsPrimary, "is_primary", flagField},
			{"on_hold", "on_hold", flagField},
			{"is_bulkmail", "is_bulkmail", flagField},
		},
	}
}
