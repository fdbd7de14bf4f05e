package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

var (
	// ErrInvalidPath is returned when a blob location resolves outside the
	// attachment root, however the record was obtained.
	ErrInvalidPath = errors.New("invalid blob path")
	// ErrBlobNotFound is returned when the backing file is absent.
	ErrBlobNotFound = errors.New("blob not found")
)

// placeholderName substitutes for filenames that sanitize down to nothing.
const placeholderName = "unnamed"

// Store persists attachment blobs under a single root directory. Blobs are
// named by an opaque identifier plus the original extension, never by the
// original filename; every read and unlink re-verifies containment.
type Store struct {
	root string
	log  *zap.Logger
}

// NewStore resolves the root to an absolute path and makes sure it exists.
func NewStore(root string, log *zap.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve attachment root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment root: %w", err)
	}
	return &Store{root: abs, log: log}, nil
}

// Root returns the absolute attachment root.
func (s *Store) Root() string {
	return s.root
}

// Save writes content as {id}{ext} under the root and returns the relative
// blob location. The extension is taken from the already-sanitized filename.
func (s *Store) Save(id, sanitizedFilename string, content []byte) (string, error) {
	name := id + filepath.Ext(sanitizedFilename)
	path := filepath.Join(s.root, name)

	resolved, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(resolved, content, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", path, err)
	}
	return name, nil
}

// Read returns the blob's bytes after verifying that the location resolves
// inside the root.
func (s *Store) Read(blobLocation string) ([]byte, error) {
	resolved, err := s.resolve(blobLocation)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(resolved)
	if os.IsNotExist(err) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", resolved, err)
	}
	return content, nil
}

// Remove unlinks the blob. A missing file is not an error; containment is
// verified the same way as on read.
func (s *Store) Remove(blobLocation string) error {
	resolved, err := s.resolve(blobLocation)
	if err != nil {
		return err
	}

	if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob %s: %w", resolved, err)
	}
	return nil
}

// resolve turns a stored location into an absolute path and enforces
// string-prefix containment within the root after resolution. This guards
// against tampered rows pointing at absolute or parent-relative paths.
func (s *Store) resolve(blobLocation string) (string, error) {
	if blobLocation == "" {
		return "", ErrInvalidPath
	}

	path := blobLocation
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	resolved, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", ErrInvalidPath
	}

	if resolved != s.root && !strings.HasPrefix(resolved, s.root+string(filepath.Separator)) {
		if s.log != nil {
			s.log.Warn("blob location escapes attachment root",
				zap.String("location", blobLocation),
				zap.String("resolved", resolved),
			)
		}
		return "", ErrInvalidPath
	}
	if resolved == s.root {
		return "", ErrInvalidPath
	}
	return resolved, nil
}

// SanitizeFilename strips path separators, parent-directory sequences and
// filesystem-hostile characters from a client-supplied filename, truncates
// to 255 bytes preserving the extension, and falls back to a placeholder
// when nothing survives.
func SanitizeFilename(filename string) string {
	sanitized := filename
	for _, seq := range []string{"/", "\\", ".."} {
		sanitized = strings.ReplaceAll(sanitized, seq, "_")
	}
	for _, c := range []string{"<", ">", ":", "\"", "|", "?", "*", "\x00"} {
		sanitized = strings.ReplaceAll(sanitized, c, "_")
	}
	sanitized = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, sanitized)
	sanitized = strings.Trim(sanitized, " .")

	if len(sanitized) > 255 {
		ext := filepath.Ext(sanitized)
		if len(ext) >= 255 {
			ext = ""
		}
		base := sanitized[:len(sanitized)-len(ext)]
		// Back the cut off to a rune boundary so a multi-byte character is
		// never split in half.
		cut := 255 - len(ext)
		for cut > 0 && !utf8.RuneStart(base[cut]) {
			cut--
		}
		sanitized = base[:cut] + ext
	}

	if sanitized == "" {
		return placeholderName
	}
	return sanitized
}
