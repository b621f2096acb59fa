package mirror

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bolasblack/stylesync/internal/util"
)

// MirrorName returns the scratch-relative file name for a real path.
// The name is derived from the path, never the content, and keeps the
// original extension so the checker accepts the file. A non-zero salt yields
// a different name for the same path; it is bumped after a failed write.
func MirrorName(realPath string, salt int) string {
	key := realPath
	if salt > 0 {
		key = fmt.Sprintf("%s\x00%d", realPath, salt)
	}
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:]) + filepath.Ext(realPath)
}

// ScratchDir returns the scratch directory to use under storage.
// An empty storage selects a fresh directory under the OS temp dir.
func ScratchDir(storage string) string {
	if storage != "" {
		return filepath.Join(storage, util.ScratchDirName)
	}
	return filepath.Join(os.TempDir(), util.ScratchDirPrefix+uuid.New().String()[:8])
}

// PrepareScratchDir creates dir on fs and verifies it can be written.
func PrepareScratchDir(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create scratch directory %s: %w", dir, err)
	}
	if _, ok := fs.(*afero.OsFs); ok {
		if err := checkWritable(dir); err != nil {
			return fmt.Errorf("scratch directory %s is not writable: %w", dir, err)
		}
	}
	return nil
}
