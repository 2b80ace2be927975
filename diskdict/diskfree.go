package diskdict

import "golang.org/x/sys/unix"

// diskFree reports the free byte count on the filesystem backing path,
// mirroring the reference implementation's shutil.disk_usage(root).free
// check in _writeable.
func diskFree(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil //nolint:gosec
}
