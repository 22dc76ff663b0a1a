package reapfrog

// scheduler.go is the prefetch-window scheduler: the bookkeeping that decides
// which byte ranges to advise in (WillNeed) or out (DontNeed) as the consumer
// moves through the file sequence.
//
// All state is expressed in *virtual offsets*: the position inside the
// conceptual concatenation of every file in sequence order. Each registered
// entry owns the interval [start, start+size) of that concatenation, so a
// lookahead window spanning several small files is just an interval that
// happens to cross entry boundaries; advisories are split per descriptor at
// those boundaries.
//
// Everything here runs synchronously on the caller's goroutine. Issuing a
// hint syscall is cheap; the kernel does the actual I/O overlap.

// entryState tracks an entry through its lifecycle.
//
// Pending entries have no descriptor (the open failed, or has not happened);
// Open entries are registered with a live descriptor; Exhausted entries have
// been fully consumed but still hold their descriptor so a trailing 0-byte
// read can observe EOF; Closed entries have released their descriptor.
type entryState uint8

const (
	statePending entryState = iota
	stateOpen
	stateExhausted
	stateClosed
)

// fileEntry is one slot in the scheduler's sequence-ordered table.
//
// The table is an index-addressed arena: the scheduler and File handles hold
// indices into it, never pointers out of it.
type fileEntry struct {
	path string
	fh   fileHandle
	stat Stat

	// start is the virtual offset of the entry's first byte; size is the
	// byte size observed at open time. The geometry is fixed at
	// registration: reads are clamped to size even if the file grows.
	start int64
	size  int64

	// advised is the file-local WillNeed high-water mark; droppedTo is the
	// file-local DontNeed high-water mark. Both are monotone and bounded by
	// size, which is what guarantees each byte is advised in at most once
	// and advised out at most once.
	advised   int64
	droppedTo int64

	state   entryState
	openErr error
}

func (e *fileEntry) end() int64 {
	return e.start + e.size
}

type scheduler struct {
	adv Adviser

	window     int64
	maxOpen    int
	dropBehind bool
	// dropBlock > 0 drops consumed pages incrementally in blocks of that
	// many bytes; 0 defers the whole-file DontNeed to release time.
	dropBlock int64

	// pull asks the sequencer to register one more entry. It returns false
	// when the source is exhausted, an open failed, or nothing was
	// registered; the scheduler then stops widening the window.
	pull func() bool

	entries []fileEntry
	// head is the index of the entry currently being consumed (or due
	// next); entries below head are closed or surfaced.
	head int
	// advHead is the index of the first entry not yet fully advised.
	advHead int

	// cursor is the monotone virtual read position. advisedEnd is the last
	// fully-advised virtual offset; advisedEnd - cursor is the outstanding
	// (advised but unread) byte count the window budget is charged with.
	cursor     int64
	advisedEnd int64
	// total is the virtual end of the last registered entry.
	total int64

	openFDs int
}

func (s *scheduler) add(path string, fh fileHandle, st Stat) int {
	idx := len(s.entries)

	s.entries = append(s.entries, fileEntry{
		path:  path,
		fh:    fh,
		stat:  st,
		start: s.total,
		size:  st.Size,
		state: stateOpen,
	})

	s.total += st.Size
	s.openFDs++

	return idx
}

// addFailed records a path whose open failed. The entry stays Pending with no
// virtual extent; tick never advises past it, and Next surfaces the error
// when the entry is due.
func (s *scheduler) addFailed(path string, err error) {
	s.entries = append(s.entries, fileEntry{
		path:    path,
		state:   statePending,
		openErr: err,
	})
}

func (s *scheduler) headEntry() *fileEntry {
	return &s.entries[s.head]
}

// advance moves the virtual cursor forward by n consumed bytes and tops the
// window back up.
func (s *scheduler) advance(n int64) {
	if n > 0 {
		s.cursor += n

		if s.dropBehind && s.dropBlock > 0 {
			s.dropBehindHead()
		}
	}

	s.tick()
}

// dropBehindHead evicts consumed pages of the head entry once a full drop
// block has accumulated behind the cursor.
func (s *scheduler) dropBehindHead() {
	if s.head >= len(s.entries) {
		return
	}

	e := &s.entries[s.head]
	if e.state != stateOpen && e.state != stateExhausted {
		return
	}

	local := min(s.cursor-e.start, e.size)
	if local-e.droppedTo >= s.dropBlock {
		s.dontNeed(e, e.droppedTo, local-e.droppedTo)
		e.droppedTo = local
	}
}

// tick tops the lookahead window back up. Idempotent.
//
// outstanding is the advised-but-unread byte count. Replenishing on every
// read would emit one tiny advisory per read call; instead the window refills
// only once outstanding has fallen to half the budget (hysteresis), and then
// refills to the full window in one pass.
func (s *scheduler) tick() {
	outstanding := s.advisedEnd - s.cursor
	if outstanding < 0 {
		outstanding = 0
	}

	budget := s.window - outstanding
	if budget < outstanding {
		return
	}

	for i := s.advHead; budget > 0; i++ {
		if i == len(s.entries) {
			if s.openFDs >= s.maxOpen || s.pull == nil || !s.pull() {
				return
			}
		}

		e := &s.entries[i]
		if e.state != stateOpen && e.state != stateExhausted {
			// Pending entry (failed open): never advise at or past it.
			return
		}

		// Resume above the high-water mark, but count bytes the cursor
		// already passed as covered; advising consumed bytes would be
		// pure waste.
		from := e.advised
		if local := s.cursor - e.start; local > from {
			from = min(local, e.size)
		}

		if n := min(e.size-from, budget); n > 0 {
			s.willNeed(e, from, n)
			from += n
			budget -= n
		}

		if from > e.advised {
			e.advised = from
			s.advisedEnd = e.start + from
		}

		if e.advised < e.size {
			return // budget exhausted mid-file
		}

		if i == s.advHead {
			s.advHead++
		}
	}
}

// release closes the head entry's descriptor, emits the final DontNeed for
// its consumed prefix when dropbehind is on, and moves the cursor past any
// unconsumed tail so the next entry begins exactly at the cursor.
//
// Entries ahead of head are untouched.
func (s *scheduler) release() error {
	if s.head >= len(s.entries) {
		return nil
	}

	var err error

	e := &s.entries[s.head]
	if e.state == stateOpen || e.state == stateExhausted {
		local := min(max(s.cursor-e.start, 0), e.size)

		if s.dropBehind && local > e.droppedTo {
			s.dontNeed(e, e.droppedTo, local-e.droppedTo)
			e.droppedTo = local
		}

		if tail := e.size - local; tail > 0 {
			s.cursor += tail
		}

		err = e.fh.closeHandle()
		e.state = stateClosed
		s.openFDs--
	}

	s.head++
	if s.advHead < s.head {
		s.advHead = s.head
	}

	s.tick()

	return err
}

// closeAll releases every remaining descriptor, including lookahead
// descriptors for entries never consumed. No advisories are emitted.
func (s *scheduler) closeAll() error {
	var firstErr error

	for i := s.head; i < len(s.entries); i++ {
		e := &s.entries[i]
		if e.state != stateOpen && e.state != stateExhausted {
			continue
		}

		err := e.fh.closeHandle()
		if err != nil && firstErr == nil {
			firstErr = err
		}

		e.state = stateClosed
		s.openFDs--
	}

	s.head = len(s.entries)
	s.advHead = s.head

	return firstErr
}

// willNeed and dontNeed swallow advisory failures at the port boundary.
// Advisories affect caching, never correctness; a failed hint must not reach
// the read path.

func (s *scheduler) willNeed(e *fileEntry, off, n int64) {
	_ = s.adv.WillNeed(e.fh.fdValue(), off, n)
}

func (s *scheduler) dontNeed(e *fileEntry, off, n int64) {
	_ = s.adv.DontNeed(e.fh.fdValue(), off, n)
}
