package apply

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// checkFreeSpace verifies the filesystem holding dir has room for the bytes
// an apply may copy in. Renames within a device cost nothing, so this only
// has to cover the cross-device worst case.
func checkFreeSpace(dir string, needed uint64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure library dir: %w", err)
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return fmt.Errorf("statfs %s: %w", dir, err)
	}
	free := uint64(st.Bavail) * uint64(st.Bsize)
	if free < needed {
		return fmt.Errorf("insufficient space in %s: need %d bytes, %d available", dir, needed, free)
	}
	return nil
}
