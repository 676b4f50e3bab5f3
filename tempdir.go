package camview

import (
	"os"
)

// TempDir returns a new temporary directory in /dev/shm if it exists,
// otherwise in the OS default temporary directory. Frames written by external
// tools then stay in memory.
func TempDir() (string, error) {
	// Check /dev/shm is a directory first, MkdirTemp would otherwise create
	// one under /dev when running as root.
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		dir, err := os.MkdirTemp("/dev/shm", "camview")
		if err == nil {
			return dir, nil
		}
	}
	return os.MkdirTemp("", "camview")
}
