package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/stickerjar/internal/errors"
)

func TestUpload_WritesAndReturnsFileURL(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	u, err := store.Upload(context.Background(), []byte("png-bytes"), "stickers/local/01A.png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "file://"))

	data, err := os.ReadFile(filepath.Join(store.Root(), "stickers", "local", "01A.png"))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))

	key, ok := store.KeyForURL(u)
	require.True(t, ok)
	require.Equal(t, "stickers/local/01A.png", key)

	rc, err := store.Open(key)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(got))
}

func TestUpload_SamePathReplaces(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	u1, err := store.Upload(ctx, []byte("one"), "jar_thumbnails/local/j.png")
	require.NoError(t, err)
	u2, err := store.Upload(ctx, []byte("two"), "jar_thumbnails/local/j.png")
	require.NoError(t, err)
	require.Equal(t, u1, u2)

	entries, err := os.ReadDir(filepath.Join(store.Root(), "jar_thumbnails", "local"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestUpload_CancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Upload(ctx, []byte("x"), "stickers/local/a.png")
	require.True(t, errors.IsRemote(err))
}

func TestValidateKey(t *testing.T) {
	bad := []string{
		"",
		"/etc/passwd.png",
		"stickers/../../escape.png",
		"..",
		"stickers/local/a.txt",
		"stickers/local/a\x00.png",
	}
	for _, key := range bad {
		err := ValidateKey(key)
		require.Error(t, err, "key %q", key)
		require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	}

	require.NoError(t, ValidateKey("originals/local/01A.jpg"))
	require.NoError(t, ValidateKey("stickers/local/01A_thumb.PNG"))
}

func TestUpload_RejectsSymlinkDestination(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "target.png")
	require.NoError(t, os.WriteFile(target, []byte("keep"), 0600))
	dir := filepath.Join(store.Root(), "stickers")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "link.png")))

	_, err = store.Upload(context.Background(), []byte("evil"), "stickers/link.png")
	require.Error(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
}

func TestOpen_Missing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open("stickers/none.png")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSanitizeSegment(t *testing.T) {
	require.Equal(t, "a-b", SanitizeSegment("a/../b"))
	require.Equal(t, "unnamed", SanitizeSegment("///"))
	require.Equal(t, "user-1", SanitizeSegment("user-1"))
}
