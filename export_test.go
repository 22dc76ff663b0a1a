package reapfrog

// Export internal state peeks for tests in the reapfrog_test package.

// OpenDescriptorCount reports how many descriptors the sequence currently
// holds open, including lookahead descriptors.
func OpenDescriptorCount(s *Sequence) int {
	return s.sched.openFDs
}

// VirtualCursor reports the scheduler's virtual read position.
func VirtualCursor(s *Sequence) int64 {
	return s.sched.cursor
}

// AdvisedEnd reports the last fully-advised virtual offset.
func AdvisedEnd(s *Sequence) int64 {
	return s.sched.advisedEnd
}
