package reconcile

import "syscall"

// freeBytes reports the usable free space on the filesystem containing
// path, in bytes. No pack example wires a disk-usage library into
// production code (gopsutil appears only as an indirect/test dependency
// elsewhere in the pack — see DESIGN.md), so this stays on
// syscall.Statfs, the narrowest possible stdlib surface for the check
// spec.md §4.4 stage 1 requires.
func freeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
