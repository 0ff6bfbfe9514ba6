//go:build windows

package blob

import (
	"os"

	"github.com/hpungsan/stickerjar/internal/errors"
)

// openFileNoFollow opens a file for writing.
// O_NOFOLLOW is not available on Windows; Upload still rejects symlinked
// destinations before the rename.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// openFileNoFollowRead opens a blob for reading.
func openFileNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("blob", path)
		}
		return nil, err
	}
	return f, nil
}
