package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postdrop/backend/internal/storage"
	"postdrop/backend/internal/storage/filesystem"
	"postdrop/backend/internal/storage/memory"
)

func newAttachmentService(t *testing.T, maxSize int64) (*AttachmentService, *memory.Store, string) {
	t.Helper()
	root := t.TempDir()
	blobs, err := filesystem.NewStore(root, zap.NewNop())
	require.NoError(t, err)
	store := memory.NewStore()
	return NewAttachmentService(store, blobs, maxSize, zap.NewNop()), store, root
}

func TestAttachmentServiceSaveAndRead(t *testing.T) {
	svc, store, root := newAttachmentService(t, 5<<20)

	content := make([]byte, 2048)
	for i := range content {
		content[i] = byte(i % 251)
	}

	att, err := svc.Save("msg-1", "report final.pdf", "application/pdf", content)
	require.NoError(t, err)

	assert.Equal(t, "report final.pdf", att.Filename)
	assert.Equal(t, int64(2048), att.Size)
	assert.Equal(t, "application/pdf", att.ContentType)

	// The blob lives directly under the root under an opaque name.
	_, err = os.Stat(filepath.Join(root, att.BlobLocation))
	require.NoError(t, err)

	got, err := svc.Read(att)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	row, err := store.GetAttachment(att.ID)
	require.NoError(t, err)
	assert.Equal(t, att.BlobLocation, row.BlobLocation)
}

func TestAttachmentServiceSaveSanitizesFilename(t *testing.T) {
	svc, _, _ := newAttachmentService(t, 5<<20)

	att, err := svc.Save("msg-1", "../../etc/passwd", "text/plain", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "____etc_passwd", att.Filename)
	assert.NotContains(t, att.BlobLocation, "..")
}

func TestAttachmentServiceSaveTooLarge(t *testing.T) {
	svc, store, root := newAttachmentService(t, 16)

	_, err := svc.Save("msg-1", "big.bin", "application/octet-stream", make([]byte, 17))
	assert.ErrorIs(t, err, ErrAttachmentTooLarge)

	// No partial state: no row, no file.
	rows, err := store.ListAttachmentsByMessage("msg-1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAttachmentServiceReadTamperedLocation(t *testing.T) {
	svc, _, _ := newAttachmentService(t, 5<<20)

	att, err := svc.Save("msg-1", "note.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)

	att.BlobLocation = "../outside.txt"
	_, err = svc.Read(att)
	assert.ErrorIs(t, err, filesystem.ErrInvalidPath)
}

func TestAttachmentServiceReadMissingBlob(t *testing.T) {
	svc, _, root := newAttachmentService(t, 5<<20)

	att, err := svc.Save("msg-1", "note.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, att.BlobLocation)))

	_, err = svc.Read(att)
	assert.ErrorIs(t, err, storage.ErrAttachmentNotFound)
}

func TestAttachmentServiceDelete(t *testing.T) {
	svc, store, root := newAttachmentService(t, 5<<20)

	att, err := svc.Save("msg-1", "note.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(att.ID))

	_, err = store.GetAttachment(att.ID)
	assert.ErrorIs(t, err, storage.ErrAttachmentNotFound)
	_, err = os.Stat(filepath.Join(root, att.BlobLocation))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is a no-op.
	assert.NoError(t, svc.Delete(att.ID))
}

func TestAttachmentServiceDeleteByMessage(t *testing.T) {
	svc, store, _ := newAttachmentService(t, 5<<20)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := svc.Save("msg-1", name, "text/plain", []byte(name))
		require.NoError(t, err)
	}
	_, err := svc.Save("msg-2", "other.txt", "text/plain", []byte("keep"))
	require.NoError(t, err)

	count, err := svc.DeleteByMessage("msg-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	rows, err := store.ListAttachmentsByMessage("msg-2")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
