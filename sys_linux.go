//go:build linux

package reapfrog

// sys_linux.go implements the internal OS backend contract (see advise.go)
// for Linux.
//
// Linux is the performance-critical backend:
//   - Files are opened and read with raw syscalls (unix.Open/unix.Read).
//   - Advisories map directly onto posix_fadvise(2).

import (
	"fmt"
	"io"
	"syscall"

	"golang.org/x/sys/unix"
)

// fileHandle wraps an open file descriptor.
//
// Part of the internal OS backend contract (see advise.go).
type fileHandle struct {
	fd int
}

// openSequential opens path read-only and stats it.
//
// Non-regular files are rejected with ErrNotRegular. O_NONBLOCK keeps the
// open from blocking on a FIFO before that check runs; it has no effect on
// regular-file reads.
func openSequential(path string) (fileHandle, Stat, error) {
	var (
		fd  int
		err error
	)
	// Retry on EINTR without an upper bound, matching Go's standard library.
	for {
		fd, err = unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
		if err == syscall.EINTR {
			continue
		}

		break
	}

	if err != nil {
		return fileHandle{fd: -1}, Stat{}, err
	}

	var st unix.Stat_t
	for {
		err = unix.Fstat(fd, &st)
		if err == syscall.EINTR {
			continue
		}

		break
	}

	if err != nil {
		_ = unix.Close(fd)

		return fileHandle{fd: -1}, Stat{}, err
	}

	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		_ = unix.Close(fd)

		return fileHandle{fd: -1}, Stat{}, ErrNotRegular
	}

	// Best-effort: the kernel widens its own readahead on this descriptor.
	_ = fadviseSequential(uintptr(fd))

	return fileHandle{fd: fd}, Stat{
		Size:    st.Size,
		ModTime: st.Mtim.Nano(),
		Mode:    st.Mode,
		Inode:   st.Ino,
	}, nil
}

func fadviseSequential(fd uintptr) error {
	return unix.Fadvise(int(fd), 0, 0, unix.FADV_SEQUENTIAL)
}

func fadviseWillNeed(fd uintptr, off, n int64) error {
	return unix.Fadvise(int(fd), off, n, unix.FADV_WILLNEED)
}

func fadviseDontNeed(fd uintptr, off, n int64) error {
	return unix.Fadvise(int(fd), off, n, unix.FADV_DONTNEED)
}

// readInto reads into p, returning (0, io.EOF) at end of file.
//
// Read errors are returned as received from the syscall, unwrapped, so the
// caller sees the failure unmodified.
func (f fileHandle) readInto(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		n, err := unix.Read(f.fd, p)
		if err == syscall.EINTR {
			continue
		}

		if err != nil {
			return 0, err
		}

		if n == 0 {
			return 0, io.EOF
		}

		return n, nil
	}
}

func (f fileHandle) closeHandle() error {
	if f.fd < 0 {
		return nil
	}

	// We intentionally do not retry close(2) on EINTR.
	err := unix.Close(f.fd)
	if err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	return nil
}

func (f fileHandle) fdValue() uintptr {
	if f.fd < 0 {
		return ^uintptr(0)
	}

	return uintptr(f.fd)
}
