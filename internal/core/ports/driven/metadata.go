package driven

import (
	"context"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

// MetadataStore is the Metadata Bridge side table for attachments.
type MetadataStore interface {
	// SetFileMeta stores the cross-reference for a local file.
	SetFileMeta(ctx context.Context, fileID int64, meta domain.FileMeta) error

	// GetFileMeta returns the cross-reference, or domain.ErrNotFound.
	GetFileMeta(ctx context.Context, fileID int64) (*domain.FileMeta, error)

	// DeleteFileMeta removes the cross-reference.
	DeleteFileMeta(ctx context.Context, fileID int64) error
}

// FileStore holds the Content system's binary resources.
type FileStore interface {
	// Path returns the file's current resolved path, or domain.ErrNotFound.
	Path(ctx context.Context, fileID int64) (string, error)

	// Import copies a CRM-held binary into the Content system.
	Import(ctx context.Context, remotePath string) (fileID int64, localPath string, err error)
}
