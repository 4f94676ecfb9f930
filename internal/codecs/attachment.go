package codecs

import "github.com/custodia-labs/fieldsync/internal/core/domain"

// Attachment sub-fields.
const (
	// AttachmentFile holds the Content-side file ID.
	AttachmentFile = "file"

	// AttachmentPath is the CRM field holding the stored binary's path.
	AttachmentPath = "path"

	// AttachmentUpload is the payload field naming the local file to upload.
	AttachmentUpload = "file_path"
)

// attachmentCodec converts activity attachments. The binary itself is
// handled by the reconciler's attachment strategy: ToContent leaves the
// file sub-field empty and ToRemote never sends a path.
type attachmentCodec struct {
	schemaCodec
}

// NewAttachmentCodec returns the codec for activity file attachments.
func NewAttachmentCodec() Codec {
	return &attachmentCodec{schemaCodec{
		kind:      domain.KindAttachment,
		parentKey: "entity_id",
		fields: []subField{
			{"description", "description", textField},
			{"mime_type", "mime_type", textField},
		},
	}}
}

// ToContent converts a CRM attachment, leaving the file sub-field empty.
func (c *attachmentCodec) ToContent(rec domain.RemoteRecord) domain.Row {
	row := c.schemaCodec.ToContent(rec)
	row[AttachmentFile] = nil
	return row
}

// RemotePath returns the CRM-side path of an attachment record.
func RemotePath(rec domain.RemoteRecord) string {
	return fromRemoteText(rec.Fields[AttachmentPath])
}

// FileID returns the Content-side file ID of an attachment row.
func FileID(row domain.Row) int64 {
	return domain.ToInt(row[AttachmentFile])
}
