// Package blob stores sticker images and jar snapshots on the local
// filesystem and hands back stable file:// references.
package blob

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hpungsan/stickerjar/internal/errors"
)

// allowedExts are the blob types the jar writes.
var allowedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// FileStore writes blobs under a root directory.
// Uploading the same key twice replaces the content atomically.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed and returns a store rooted there.
func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("invalid blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	_ = os.Chmod(abs, 0700)
	return &FileStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FileStore) Root() string {
	return s.root
}

// Upload writes data at key (a slash-separated relative path such as
// "stickers/<user>/<id>.png") and returns its file:// URL.
func (s *FileStore) Upload(ctx context.Context, data []byte, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.NewRemoteFailure("upload", err)
	}
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", errors.NewRemoteFailure("upload", fmt.Errorf("failed to create blob directory: %w", err))
	}

	// Write to temp file first, then atomic rename so readers never see a
	// partial blob.
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := full + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", errors.NewRemoteFailure("upload", err)
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return "", errors.NewRemoteFailure("upload", err)
	}
	if err := file.Sync(); err != nil {
		return "", errors.NewRemoteFailure("upload", err)
	}
	if err := file.Close(); err != nil {
		return "", errors.NewRemoteFailure("upload", fmt.Errorf("failed to close blob: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination
	if info, err := os.Lstat(full); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", errors.NewInvalidRequest("blob path is a symlink")
	}
	if err := os.Rename(tempPath, full); err != nil {
		return "", errors.NewRemoteFailure("upload", fmt.Errorf("failed to finalize blob: %w", err))
	}

	success = true
	return FileURL(full), nil
}

// Open returns a reader for the blob at key.
func (s *FileStore) Open(key string) (io.ReadCloser, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return openFileNoFollowRead(full)
}

// KeyForURL maps a file:// URL produced by Upload back to its key.
func (s *FileStore) KeyForURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	rel, err := filepath.Rel(s.root, filepath.FromSlash(u.Path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// resolve validates key and joins it onto the root.
func (s *FileStore) resolve(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// ValidateKey rejects empty, absolute, traversing and non-image keys.
func ValidateKey(key string) error {
	if key == "" {
		return errors.NewInvalidRequest("blob path is required")
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") || filepath.IsAbs(key) {
		return errors.NewInvalidRequest("blob path must be relative")
	}
	if containsTraversal(key) {
		return errors.NewInvalidRequest("blob path must not contain directory traversal (..)")
	}
	for _, r := range key {
		if r < 32 || r == 127 {
			return errors.NewInvalidRequest("blob path must not contain control characters")
		}
	}
	if !allowedExts[strings.ToLower(path.Ext(key))] {
		return errors.NewInvalidRequest("blob path must have an image extension")
	}
	return nil
}

// FileURL returns the file:// URL for an absolute path.
func FileURL(abs string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

// containsTraversal checks if key contains ".." in any component.
func containsTraversal(key string) bool {
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return true
		}
	}
	if filepath.Separator != '/' {
		for _, part := range strings.Split(key, string(filepath.Separator)) {
			if part == ".." {
				return true
			}
		}
	}
	return false
}

// SanitizeSegment makes s safe to use as a single path component
// (user ids end up in blob keys).
func SanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if s == "" {
		s = "unnamed"
	}
	return s
}
