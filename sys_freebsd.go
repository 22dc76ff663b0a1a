//go:build freebsd

package reapfrog

// FreeBSD has posix_fadvise(2), so advisories are real even though the
// open/read path (sys_stdio.go) is portable.

import "golang.org/x/sys/unix"

func fadviseSequential(fd uintptr) error {
	return unix.Fadvise(int(fd), 0, 0, unix.FADV_SEQUENTIAL)
}

func fadviseWillNeed(fd uintptr, off, n int64) error {
	return unix.Fadvise(int(fd), off, n, unix.FADV_WILLNEED)
}

func fadviseDontNeed(fd uintptr, off, n int64) error {
	return unix.Fadvise(int(fd), off, n, unix.FADV_DONTNEED)
}
