//go:build unix

package scratch

import "golang.org/x/sys/unix"

// FreeBytes returns the free space on the filesystem holding path.
// Used as a preflight check so a run against a huge release warns before
// the first oversized extraction fails halfway through.
func FreeBytes(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
