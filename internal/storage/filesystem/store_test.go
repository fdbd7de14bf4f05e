package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestSaveAndRead(t *testing.T) {
	store := newTestStore(t)

	loc, err := store.Save("blob-1", "report.pdf", []byte("content"))
	require.NoError(t, err)
	assert.Equal(t, "blob-1.pdf", loc)

	content, err := store.Read(loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), content)
}

func TestSaveWithoutExtension(t *testing.T) {
	store := newTestStore(t)

	loc, err := store.Save("blob-2", "README", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "blob-2", loc)
}

func TestReadMissingBlob(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Read("nope.bin")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestReadRejectsEscapingLocations(t *testing.T) {
	store := newTestStore(t)

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	for _, loc := range []string{
		"",
		"../secret.txt",
		"../../etc/passwd",
		outside,
		"/etc/passwd",
		"a/../../secret.txt",
	} {
		_, err := store.Read(loc)
		assert.ErrorIs(t, err, ErrInvalidPath, "location %q must be rejected", loc)
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)

	loc, err := store.Save("blob-3", "a.txt", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(loc))
	_, err = store.Read(loc)
	assert.ErrorIs(t, err, ErrBlobNotFound)

	// Removing again is a no-op.
	assert.NoError(t, store.Remove(loc))

	// Removal is containment-checked too.
	assert.ErrorIs(t, store.Remove("../escape.txt"), ErrInvalidPath)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"path separators", "a/b\\c.txt", "a_b_c.txt"},
		{"parent traversal", "../../etc/passwd", "____etc_passwd"},
		{"hostile characters", `a<b>c:d"e|f?g*h.txt`, "a_b_c_d_e_f_g_h.txt"},
		{"dots and spaces trimmed", "  ..name..  ", "_name_"},
		{"empty", "", "unnamed"},
		{"dots and spaces only", " . . ", "unnamed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeFilename(tt.input)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, "\\")
			assert.NotContains(t, got, "..")
		})
	}
}

func TestSanitizeFilenameLength(t *testing.T) {
	long := strings.Repeat("a", 300) + ".pdf"
	got := SanitizeFilename(long)
	assert.LessOrEqual(t, len(got), 255)
	assert.True(t, strings.HasSuffix(got, ".pdf"), "extension must be preserved")

	control := "na\x01me\x02.txt"
	assert.Equal(t, "name.txt", SanitizeFilename(control))
}

func TestSanitizeFilenameTruncatesOnRuneBoundary(t *testing.T) {
	// 90 three-byte runes put the byte cap mid-rune; the cut must back off
	// instead of leaving broken UTF-8 behind.
	long := strings.Repeat("日", 90) + ".txt"
	got := SanitizeFilename(long)

	assert.LessOrEqual(t, len(got), 255)
	assert.True(t, utf8.ValidString(got), "truncation must not split a rune")
	assert.True(t, strings.HasSuffix(got, ".txt"))
}
