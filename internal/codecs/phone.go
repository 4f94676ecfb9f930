package codecs

import "github.com/custodia-labs/fieldsync/internal/core/domain"

func phoneFields() []subField {
	return []subField{
		{"location_type", "location_type_id", intField},
		{"phone_type", "phone_type_id", intField},
		{"phone", "phone", textField},
		{"phone_ext", "phone_ext", textField},
		{domain.FieldIsPrimary, "is_primary", flagField},
	}
}

// NewPhoneCodec returns the codec for phone sets.
func NewPhoneCodec() Codec {
	return &schemaCodec{
		kind:      domain.KindPhone,
		parentKey: "contact_id",
		fields:    phoneFields(),
	}
}

// NewSinglePhoneCodec returns the codec for single-value phone fields.
// Same shape as NewPhoneCodec; the field's filter picks the record.
func NewSinglePhoneCodec() Codec {
	return &schemaCodec{
		kind:      domain.KindPhoneSingle,
		parentKey: "contact_id",
		fields:    phoneFields(),
	}
}
