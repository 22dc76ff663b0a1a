// Package reapfrog reads a long sequence of small files with the I/O latency
// of one big sequential read.
//
// While the consumer reads file k, the scheduler advises the kernel
// (posix_fadvise WILLNEED) about the upcoming bytes of file k and of
// subsequent files, maintaining a constant-size lookahead window across file
// boundaries. The kernel prefetches asynchronously, so by the time the
// consumer's read() arrives the pages are usually already in cache.
// Optionally, consumed pages are advised out again (DONTNEED, "dropbehind")
// to avoid polluting the page cache with data that is read exactly once.
//
// # Usage
//
//	seq := reapfrog.FromPaths(paths)
//	defer seq.Close()
//
//	for {
//		f, err := seq.Next()
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		// consume f with io.Copy / bufio / raw Read calls
//	}
//
// Handles are yielded strictly in input order; calling Next releases the
// previous handle. Advisories are pure performance hints: if every fadvise
// call fails, the returned bytes are still exactly the concatenation of the
// files' contents.
//
// # Concurrency
//
// A Sequence is fully single-threaded and synchronous. Every operation runs
// on the calling goroutine; there is no background prefetch goroutine, only
// cheap hint syscalls issued at the moment the window needs replenishing.
// One consumer drives one Sequence; no internal synchronization is provided
// for concurrent access. Independent Sequences are fully isolated and may be
// driven from different goroutines.
//
// # Errors
//
//   - A path that cannot be opened (or is not a regular file) surfaces as an
//     [IOError] from [Sequence.Next], lazily, exactly when that entry is due.
//     The error is sticky: the sequence terminates at the failing entry.
//   - Read failures surface unmodified from [File.Read].
//   - Advisory failures are swallowed; they never propagate.
package reapfrog

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// IOError is returned when opening a sequence entry fails.
type IOError struct {
	// Path is the path as supplied by the source.
	Path string
	// Op is the operation that failed: "open".
	Op string
	// Err is the underlying error.
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Sequence reads a finite, ordered sequence of files with cross-file
// readahead. Create one with [New] or [FromPaths]; consume it with
// [Sequence.Next] or [Sequence.All]; always [Sequence.Close] it, since
// lookahead may hold descriptors for files never consumed.
type Sequence struct {
	next  func() (string, bool)
	sched *scheduler

	// cur is the live handle; a *File is valid iff it equals cur.
	cur *File

	srcDone bool
	failed  bool
	closed  bool
	// err is the sticky sequencer error returned by every subsequent Next.
	err error
}

// New creates a Sequence pulling paths from next.
//
// next is a single-pass producer: it returns the next path and true, or
// ("", false) once the source is exhausted. It is called lazily, possibly
// ahead of consumption, to keep the lookahead window filled; it is never
// called again after it reports exhaustion or after an entry fails to open.
func New(next func() (string, bool), opts ...Option) *Sequence {
	cfg := applyOptions(opts)

	s := &Sequence{next: next}
	s.sched = &scheduler{
		adv:        cfg.Adviser,
		window:     cfg.WindowSize,
		maxOpen:    cfg.MaxLookaheadFiles,
		dropBehind: cfg.DropBehind,
		dropBlock:  cfg.DropBehindBlock,
	}
	s.sched.pull = s.pullNext

	return s
}

// FromPaths creates a Sequence over a fixed path slice.
//
// The slice is not copied; it must not be mutated while the Sequence is in
// use.
func FromPaths(paths []string, opts ...Option) *Sequence {
	i := 0

	return New(func() (string, bool) {
		if i >= len(paths) {
			return "", false
		}

		p := paths[i]
		i++

		return p, true
	}, opts...)
}

// Next yields the next file handle in input order.
//
// The previous handle is released first: its descriptor is closed, a final
// dropbehind advisory may be issued, and any unconsumed tail is skipped. A
// close(2) error from that release is discarded; call [File.Close] before
// Next to observe it.
//
// Returns io.EOF once the source is exhausted. An entry whose open failed
// yields an [IOError] instead of a handle, exactly at its position in the
// order; the error is sticky and ends the sequence.
func (s *Sequence) Next() (*File, error) {
	if s.err != nil {
		return nil, s.err
	}

	if s.closed {
		return nil, io.EOF
	}

	if s.cur != nil {
		s.cur = nil
		_ = s.sched.release()
	}

	sched := s.sched
	if sched.head == len(sched.entries) {
		s.pullNext()

		if sched.head == len(sched.entries) {
			return nil, io.EOF
		}
	}

	e := sched.headEntry()
	if e.openErr != nil {
		s.err = &IOError{Path: e.path, Op: "open", Err: e.openErr}

		return nil, s.err
	}

	// Registration may have happened just now; make sure the window over
	// the new head is advised before the first read.
	sched.tick()

	s.cur = &File{seq: s, idx: sched.head}

	return s.cur, nil
}

// All returns an iterator over the sequence, for use with range.
//
// Iteration stops silently at end of sequence; a sequencer error is yielded
// once as (nil, err) and ends iteration. Handles obey the same release rules
// as with [Sequence.Next].
func (s *Sequence) All() iter.Seq2[*File, error] {
	return func(yield func(*File, error) bool) {
		for {
			f, err := s.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}

				return
			}

			if !yield(f, nil) {
				return
			}
		}
	}
}

// Close releases every descriptor the sequence still holds, including
// lookahead descriptors for files that were never consumed. Subsequent Next
// calls return io.EOF. Idempotent.
func (s *Sequence) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true
	s.cur = nil

	return s.sched.closeAll()
}

// pullNext registers one more source entry with the scheduler.
//
// Called by the scheduler (window extension) and by Next (head refill).
// Returns false when nothing was registered: source exhausted, sequence
// closed, or the entry failed to open (recorded as a Pending entry for Next
// to surface).
func (s *Sequence) pullNext() bool {
	if s.srcDone || s.failed || s.closed {
		return false
	}

	path, ok := s.next()
	if !ok {
		s.srcDone = true

		return false
	}

	fh, st, err := openSequential(path)
	if err != nil {
		s.failed = true
		s.sched.addFailed(path, err)

		return false
	}

	s.sched.add(path, fh, st)

	return true
}
