package schedstore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// staleLockAge is how old a lock file must be before it is assumed to belong
// to a crashed process and is broken.
const staleLockAge = 2 * time.Minute

const lockPollInterval = 20 * time.Millisecond

// withFileLock runs fn while holding an O_EXCL lock file
func withFileLock(lockPath string, timeout time.Duration, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return errors.Mark(errors.Wrapf(err, "creating lock dir for %s", lockPath), domain.ErrStoreIO)
	}

	start := time.Now()
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			break
		}
		if !os.IsExist(err) {
			return errors.Mark(errors.Wrapf(err, "acquiring lock %s", lockPath), domain.ErrStoreIO)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
			continue
		}
		if timeout > 0 && time.Since(start) > timeout {
			return errors.Mark(errors.Newf("timed out acquiring lock %s", lockPath), domain.ErrStoreIO)
		}
		time.Sleep(lockPollInterval)
	}
	defer os.Remove(lockPath)

	return fn()
}
