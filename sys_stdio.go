//go:build !linux

package reapfrog

// sys_stdio.go implements the open/read half of the internal OS backend
// contract (see advise.go) for platforms where we don't maintain a
// syscall-level fast path.
//
// It intentionally uses only portable stdlib APIs (os.OpenFile, (*os.File)
// methods). The advisory half lives in sys_freebsd.go / sys_noadvise.go.

import (
	"fmt"
	"os"
)

// fileHandle wraps an open *os.File.
//
// Part of the internal OS backend contract (see advise.go).
type fileHandle struct {
	f *os.File
}

// openSequential opens path read-only and stats it.
//
// Non-regular files are rejected with ErrNotRegular. Inode is reported as 0
// on this backend.
func openSequential(path string) (fileHandle, Stat, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return fileHandle{}, Stat{}, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return fileHandle{}, Stat{}, err
	}

	if !info.Mode().IsRegular() {
		_ = f.Close()

		return fileHandle{}, Stat{}, ErrNotRegular
	}

	// Best-effort sequential hint; a no-op on platforms without fadvise.
	_ = fadviseSequential(f.Fd())

	return fileHandle{f: f}, Stat{
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
		Mode:    uint32(info.Mode()),
	}, nil
}

// readInto reads into p, returning (0, io.EOF) at end of file.
//
// Read errors are returned as received from (*os.File).Read, unmodified.
func (f fileHandle) readInto(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	return f.f.Read(p)
}

func (f fileHandle) closeHandle() error {
	if f.f == nil {
		return nil
	}

	err := f.f.Close()
	if err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	return nil
}

func (f fileHandle) fdValue() uintptr {
	if f.f == nil {
		return ^uintptr(0)
	}

	return f.f.Fd()
}
