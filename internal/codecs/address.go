package codecs

import "github.com/custodia-labs/fieldsync/internal/core/domain"

// NewAddressCodec returns the codec for contact addresses.
func NewAddressCodec() Codec {
	return &schemaCodec{
		kind:      domain.KindAddress,
		parentKey: "contact_id",
		fields: []subField{
			{"location_type", "location_type_id", intField},
			{domain.FieldIsPrimary, "is_primary", flagField},
			{"is_billing", "is_billing", flagField},
			{"street_address", "street_address", textField},
			{"supplemental_address_1", "supplemental_address_1", textField},
			{"supplemental_address_2", "supplemental_address_2", textField},
			{"city", "city", textField},
			{"postal_code", "postal_code", textField},
			{"state_province_id", "state_province_id", intField},
			{"country_id", "country_id", intField},
		},
	}
}
