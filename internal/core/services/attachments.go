package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/fieldsync/internal/codecs"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
	"github.com/custodia-labs/fieldsync/internal/logger"
)

// Ensure AttachmentStrategy plugs into the reconciler both ways.
var (
	_ UpdateStrategy = (*AttachmentStrategy)(nil)
	_ ApplyHook      = (*AttachmentStrategy)(nil)
)

// AttachmentStrategy syncs activity file attachments.
//
// The CRM cannot update an attachment's binary in place. Whether the
// binary changed is decided by comparing the file's current local path
// with the path recorded when the CRM last received it; a changed binary
// is deleted and created again. The metadata store keeps that record.
type AttachmentStrategy struct {
	meta  driven.MetadataStore
	files driven.FileStore
}

// NewAttachmentStrategy creates an attachment strategy.
func NewAttachmentStrategy(meta driven.MetadataStore, files driven.FileStore) *AttachmentStrategy {
	return &AttachmentStrategy{meta: meta, files: files}
}

// Create uploads the row's file and records where it went.
func (s *AttachmentStrategy) Create(ctx context.Context, p *Pass, row domain.Row) (*domain.RemoteRecord, domain.Payload, error) {
	fileID, local, err := s.localPath(ctx, row)
	if err != nil {
		return nil, nil, err
	}

	payload := p.Payload(row, 0)
	payload[codecs.AttachmentUpload] = local

	rec, err := p.Create(ctx, payload)
	if err != nil {
		return nil, payload, err
	}
	s.remember(ctx, fileID, local, *rec)
	return rec, payload, nil
}

// Update replaces the attachment when its binary changed, otherwise
// updates its description and mime type if those differ.
func (s *AttachmentStrategy) Update(ctx context.Context, p *Pass, a domain.Action) (Outcome, error) {
	fileID, local, err := s.localPath(ctx, a.Row)
	if err != nil {
		return Outcome{}, err
	}

	if !s.binaryChanged(ctx, fileID, local) {
		return fieldStrategy{}.Update(ctx, p, a)
	}

	if err := p.Delete(ctx, a.RemoteID); err != nil {
		return Outcome{}, fmt.Errorf("replace attachment %d: %w", a.RemoteID, err)
	}
	rec, payload, err := s.Create(ctx, p, a.Row)
	if err != nil {
		return Outcome{Payload: payload}, fmt.Errorf("replace attachment %d: %w", a.RemoteID, err)
	}
	return Outcome{Record: rec, Replaced: true, Payload: payload}, nil
}

// Prepare links a CRM attachment to a local file, importing the binary
// unless the row already holds the file the CRM points at.
func (s *AttachmentStrategy) Prepare(
	ctx context.Context,
	existing domain.Row,
	ev domain.ChildEvent,
	row domain.Row,
) (domain.Row, error) {
	remote := codecs.RemotePath(ev.Record)

	if fileID := codecs.FileID(existing); fileID != 0 {
		meta, err := s.meta.GetFileMeta(ctx, fileID)
		if err == nil && (remote == "" || meta.RemotePath == remote) {
			row[codecs.AttachmentFile] = fileID
			return row, nil
		}
	}
	if remote == "" {
		return row, nil
	}

	fileID, local, err := s.files.Import(ctx, remote)
	if err != nil {
		return row, fmt.Errorf("import %s: %w", remote, err)
	}
	row[codecs.AttachmentFile] = fileID
	if err := s.meta.SetFileMeta(ctx, fileID, domain.FileMeta{LocalPath: local, RemotePath: remote}); err != nil {
		logger.Error(err, "Failed to record metadata for file %d", fileID)
	}
	return row, nil
}

// Forget drops the metadata of a removed row's file.
func (s *AttachmentStrategy) Forget(ctx context.Context, row domain.Row) {
	fileID := codecs.FileID(row)
	if fileID == 0 {
		return
	}
	if err := s.meta.DeleteFileMeta(ctx, fileID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Error(err, "Failed to drop metadata for file %d", fileID)
	}
}

func (s *AttachmentStrategy) localPath(ctx context.Context, row domain.Row) (int64, string, error) {
	fileID := codecs.FileID(row)
	if fileID == 0 {
		return 0, "", fmt.Errorf("%w: attachment row has no file", domain.ErrInvalidInput)
	}
	path, err := s.files.Path(ctx, fileID)
	if err != nil {
		return fileID, "", fmt.Errorf("resolve file %d: %w", fileID, err)
	}
	return fileID, path, nil
}

// binaryChanged reports whether the file moved since the CRM last saw it.
// A file with no metadata has never been seen.
func (s *AttachmentStrategy) binaryChanged(ctx context.Context, fileID int64, local string) bool {
	meta, err := s.meta.GetFileMeta(ctx, fileID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("Metadata lookup for file %d failed: %v", fileID, err)
		}
		return true
	}
	return meta.LocalPath != local
}

func (s *AttachmentStrategy) remember(ctx context.Context, fileID int64, local string, rec domain.RemoteRecord) {
	meta := domain.FileMeta{LocalPath: local, RemotePath: codecs.RemotePath(rec)}
	if err := s.meta.SetFileMeta(ctx, fileID, meta); err != nil {
		logger.Error(err, "Failed to record metadata for file %d", fileID)
	}
}
