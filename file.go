package reapfrog

import (
	"errors"
	"io"
)

// ErrReleased is returned when a [File] is used after it was released,
// either explicitly via [File.Close] or implicitly by the next
// [Sequence.Next] or [Sequence.Close] call.
var ErrReleased = errors.New("file handle used after release")

// Stat holds metadata for a file in the sequence, captured at open time.
//
// ModTime is expressed as Unix nanoseconds to avoid time.Time allocations
// in hot paths. Use time.Unix(0, st.ModTime) to convert when needed.
type Stat struct {
	// Size is the file size in bytes.
	Size int64
	// ModTime is the modification time in Unix nanoseconds.
	ModTime int64
	// Mode holds the mode bits as reported by the backend: raw st_mode on
	// Linux, uint32(os.FileMode) on portable backends.
	Mode uint32
	// Inode is the inode number when available (0 on portable backends).
	Inode uint64
}

// File is a readable handle for one file of a [Sequence].
//
// Handles are yielded in input order by [Sequence.Next] and are valid until
// released: calling Next again, [File.Close], or [Sequence.Close] releases
// the handle and closes its descriptor. A released handle's Read returns
// [ErrReleased].
//
// Reads never span file boundaries; io.EOF signals the end of this file
// only. Reads are clamped to the size observed at open time so the virtual
// read position stays consistent across the sequence; a file that shrinks
// mid-read yields an early io.EOF, a file that grows yields its original
// size.
type File struct {
	seq *Sequence
	idx int
}

// Read implements io.Reader.
//
// Every successful read reports its byte count to the scheduler, which may
// synchronously emit readahead advisories before Read returns. A read never
// waits for any pending readahead; blocking happens only in the underlying
// read syscall, exactly as a plain sequential read would block.
//
// I/O errors from the underlying read are returned unmodified.
func (f *File) Read(p []byte) (int, error) {
	e, sched, err := f.entry()
	if err != nil {
		return 0, err
	}

	remaining := e.end() - sched.cursor
	if remaining <= 0 {
		e.state = stateExhausted

		return 0, io.EOF
	}

	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, readErr := e.fh.readInto(p)
	if n > 0 {
		sched.advance(int64(n))

		// advance may register further entries, growing the table; the
		// pointer must be re-resolved before any further writes.
		e = &sched.entries[f.idx]

		if sched.cursor >= e.end() {
			e.state = stateExhausted
		}
	}

	if readErr != nil {
		if errors.Is(readErr, io.EOF) {
			// Shorter than at open time (file shrank). End this file
			// early; release skips the cursor over the missing tail.
			e.state = stateExhausted

			if n > 0 {
				return n, nil
			}

			return 0, io.EOF
		}

		return n, readErr
	}

	if n == 0 && len(p) > 0 {
		e.state = stateExhausted

		return 0, io.EOF
	}

	return n, nil
}

// Close releases the handle before its end of file: the descriptor is
// closed, the consumed prefix may receive a final DontNeed when dropbehind
// is enabled, and the sequence's read position skips past the unconsumed
// tail. Scheduler state for files not yet touched is unaffected.
//
// Close is idempotent; releasing via [Sequence.Next] makes it a no-op.
func (f *File) Close() error {
	if f.seq.cur != f {
		return nil
	}

	f.seq.cur = nil

	return f.seq.sched.release()
}

// Path returns the path this handle was opened from.
func (f *File) Path() string {
	return f.seq.sched.entries[f.idx].path
}

// Stat returns the metadata captured when the file was opened. No syscall is
// made; the values are valid even after release.
func (f *File) Stat() Stat {
	return f.seq.sched.entries[f.idx].stat
}

// Fd returns the underlying file descriptor, or ^uintptr(0) once the handle
// has been released.
//
// The descriptor is owned by the sequence and is closed on release; use it
// for low-level operations (sendfile, mmap, extra advisories) only while the
// handle is live.
func (f *File) Fd() uintptr {
	if f.seq.cur != f {
		return ^uintptr(0)
	}

	return f.seq.sched.entries[f.idx].fh.fdValue()
}

// entry resolves the handle's table slot, enforcing release semantics.
func (f *File) entry() (*fileEntry, *scheduler, error) {
	if f.seq.cur != f {
		return nil, nil, ErrReleased
	}

	return &f.seq.sched.entries[f.idx], f.seq.sched, nil
}
