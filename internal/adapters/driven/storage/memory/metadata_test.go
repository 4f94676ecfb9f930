package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

func TestMetadataStore_Lifecycle(t *testing.T) {
	store := NewMetadataStore()
	ctx := context.Background()

	_, err := store.GetFileMeta(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	meta := domain.FileMeta{LocalPath: "files/a.pdf", RemotePath: "crm/1/a.pdf"}
	require.NoError(t, store.SetFileMeta(ctx, 1, meta))

	got, err := store.GetFileMeta(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, meta, *got)

	require.NoError(t, store.DeleteFileMeta(ctx, 1))
	_, err = store.GetFileMeta(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileStore_AddMovePath(t *testing.T) {
	files := NewFileStore()
	ctx := context.Background()

	id := files.Add("files/a.pdf")
	p, err := files.Path(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "files/a.pdf", p)

	files.Move(id, "files/a_0.pdf")
	p, err = files.Path(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "files/a_0.pdf", p)

	_, err = files.Path(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileStore_Import(t *testing.T) {
	files := NewFileStore()
	ctx := context.Background()

	id, local, err := files.Import(ctx, "crm/9/scan.png")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "imported/1-scan.png", local)
	assert.Equal(t, []string{"crm/9/scan.png"}, files.Imports())

	_, _, err = files.Import(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
