package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRow_RemoteID(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		wantID int64
		wantOK bool
	}{
		{"missing", nil, 0, false},
		{"empty string", "", 0, false},
		{"whitespace", "  ", 0, false},
		{"string", "12", 12, true},
		{"padded string", " 12 ", 12, true},
		{"int", 7, 7, true},
		{"int64", int64(9), 9, true},
		{"float from json", float64(11), 11, true},
		{"json number", json.Number("15"), 15, true},
		{"zero", 0, 0, false},
		{"garbage", "abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := Row{}
			if tt.value != nil {
				row[FieldRemoteID] = tt.value
			}
			id, ok := row.RemoteID()
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestRow_IsPrimary(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{"1", true},
		{"0", false},
		{"", false},
		{"true", true},
		{1, true},
		{0, false},
		{float64(1), true},
	}

	for _, tt := range tests {
		row := Row{FieldIsPrimary: tt.value}
		assert.Equal(t, tt.want, row.IsPrimary(), "value %#v", tt.value)
	}
}

func TestRow_Clone(t *testing.T) {
	row := Row{"city": "Leeds", FieldRemoteID: int64(3)}
	clone := row.Clone()
	clone["city"] = "York"

	assert.Equal(t, "Leeds", row["city"])
	assert.Nil(t, Row(nil).Clone())
}

func TestFieldValue_IndexOfAndPrimaryCount(t *testing.T) {
	value := FieldValue{
		{FieldRemoteID: ""},
		{FieldRemoteID: "11", FieldIsPrimary: "1"},
		{FieldRemoteID: int64(12), FieldIsPrimary: true},
	}

	assert.Equal(t, 1, value.IndexOf(11))
	assert.Equal(t, 2, value.IndexOf(12))
	assert.Equal(t, -1, value.IndexOf(13))
	assert.Equal(t, -1, value.IndexOf(0))
	assert.Equal(t, 2, value.PrimaryCount())
}

func TestFieldValue_CloneIsDeep(t *testing.T) {
	value := FieldValue{{"city": "Leeds"}}
	clone := value.Clone()
	clone[0]["city"] = "York"

	assert.Equal(t, "Leeds", value[0]["city"])
	assert.Nil(t, FieldValue(nil).Clone())
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "abc", ToString("  abc "))
	assert.Equal(t, "1", ToString(true))
	assert.Equal(t, "0", ToString(false))
	assert.Equal(t, "42", ToString(float64(42)))
	assert.Equal(t, "4.5", ToString(4.5))
	assert.Equal(t, "7", ToString(int64(7)))
}
