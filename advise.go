package reapfrog

import "errors"

// ============================================================================
// Advisory port + internal OS backend contract
// ============================================================================
//
// The scheduler and the File wrapper are written against a small set of
// unexported, platform-dependent functions and types.
//
// Those symbols form an internal *backend contract* that each supported OS
// group must provide via build-tagged files.
//
// This file intentionally contains **no runtime dispatch** for the open/read
// path (no interfaces on the hot path). Instead, it uses compile-time
// assignments to:
//   - document the required surface area
//   - ensure each build provides the expected functions/methods
//
// Implementations live in build-tagged backend files:
//   - Linux fast path (raw syscalls, real fadvise):  sys_linux.go
//   - Portable open/read path for everything else:   sys_stdio.go
//   - Advisory syscalls on FreeBSD (posix_fadvise):  sys_freebsd.go
//   - Advisory no-ops where the OS offers none:      sys_noadvise.go
//
// Semantics notes (expected by the scheduler):
//
//   - openSequential opens the path read-only, stats it, rejects non-regular
//     files with ErrNotRegular, and hints sequential access on the descriptor
//     (best-effort, ignored on failure).
//
//   - fileHandle.readInto returns (0, io.EOF) at end of file and otherwise
//     surfaces the underlying read error as-is, without wrapping.
//
//   - fadviseWillNeed/fadviseDontNeed are best-effort hints. Callers must
//     treat failures as no-ops; the scheduler never retries an advisory.

// Adviser is the advisory capability pair the scheduler emits hints through.
//
// WillNeed announces that the byte range [off, off+n) of fd will be read
// soon, prompting asynchronous prefetch into the page cache. DontNeed
// announces that the range is no longer needed, permitting early eviction.
//
// Both operations are best-effort and non-blocking; the OS is free to ignore
// them. Returned errors carry no correctness implication and are swallowed
// by the scheduler.
//
// The default Adviser delegates to the OS backend (posix_fadvise where
// available, no-ops elsewhere). Supply your own via [WithAdviser] for tests
// or platforms with a different hint mechanism.
type Adviser interface {
	WillNeed(fd uintptr, off, n int64) error
	DontNeed(fd uintptr, off, n int64) error
}

// ErrNotRegular is returned (wrapped in an [IOError]) when a path in the
// source sequence names something other than a regular file.
var ErrNotRegular = errors.New("not a regular file")

// osAdviser is the default Adviser, backed by the build-tagged fadvise
// implementation.
type osAdviser struct{}

func (osAdviser) WillNeed(fd uintptr, off, n int64) error {
	return fadviseWillNeed(fd, off, n)
}

func (osAdviser) DontNeed(fd uintptr, off, n int64) error {
	return fadviseDontNeed(fd, off, n)
}

// Function signatures required by the scheduler.
var (
	_ func(string) (fileHandle, Stat, error) = openSequential
	_ func(uintptr, int64, int64) error      = fadviseWillNeed
	_ func(uintptr, int64, int64) error      = fadviseDontNeed
	_ func(uintptr) error                    = fadviseSequential
)

// Method set required by the scheduler and the File wrapper.
// This interface is only used for compile-time checking.
type ioFileHandle interface {
	readInto(p []byte) (int, error)
	closeHandle() error
	fdValue() uintptr
}

var _ ioFileHandle = fileHandle{}
