package reapfrog

// Option configures [New] and [FromPaths].
// Options are applied in order.
type Option func(*options)

// Default tuning values. The window size and the dropbehind granularity are
// policy choices with no single correct answer across filesystems and
// workloads; they are deliberately plain configuration.
const (
	// DefaultWindowSize is the lookahead budget used when [WithWindowSize]
	// is not set.
	DefaultWindowSize = 8 << 20 // 8MiB

	// DefaultMaxLookaheadFiles is the descriptor cap used when
	// [WithMaxLookaheadFiles] is not set.
	DefaultMaxLookaheadFiles = 512
)

// WithWindowSize sets the lookahead window in bytes: the amount of
// advised-but-unread data the scheduler keeps ahead of the read position.
//
// Larger windows overlap more I/O at the cost of page-cache footprint; the
// window also bounds how far ahead files are opened. Hysteresis means the
// advised-ahead amount oscillates between roughly half the window and the
// full window during steady consumption.
//
// Values <= 0 use [DefaultWindowSize].
func WithWindowSize(n int64) Option {
	return func(o *options) {
		o.WindowSize = n
	}
}

// WithMaxLookaheadFiles caps the number of descriptors held open at once,
// including the file currently being read.
//
// Many tiny files may need several descriptors to fill the window; when the
// cap is hit, lookahead opening simply pauses until consumption releases
// descriptors. Values <= 0 use [DefaultMaxLookaheadFiles].
func WithMaxLookaheadFiles(n int) Option {
	return func(o *options) {
		o.MaxLookaheadFiles = n
	}
}

// WithDropBehind advises consumed bytes out of the page cache (DONTNEED).
//
// Off by default: eviction hints can hurt other processes reading the same
// files concurrently. When enabled without [WithDropBehindBlock], each file
// receives a single whole-file DontNeed when its handle is released.
func WithDropBehind() Option {
	return func(o *options) {
		o.DropBehind = true
	}
}

// WithDropBehindBlock drops consumed pages incrementally, issuing a DontNeed
// each time n consumed bytes have accumulated behind the read position,
// instead of one whole-file DontNeed at release. 512KiB is a reasonable
// block for large files.
//
// Implies [WithDropBehind]. Values <= 0 are ignored.
func WithDropBehindBlock(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.DropBehind = true
			o.DropBehindBlock = n
		}
	}
}

// WithAdviser replaces the OS advisory backend.
//
// Useful for tests and for platforms whose prefetch hint mechanism is not
// posix_fadvise. Advisory failures are swallowed regardless of the
// implementation; they never surface as read errors.
func WithAdviser(a Adviser) Option {
	return func(o *options) {
		o.Adviser = a
	}
}

type options struct {
	// WindowSize is the lookahead budget in bytes.
	WindowSize int64
	// MaxLookaheadFiles caps concurrently open descriptors.
	MaxLookaheadFiles int
	// DropBehind enables DONTNEED hints for consumed bytes.
	DropBehind bool
	// DropBehindBlock is the incremental dropbehind granularity (0 = one
	// whole-file hint at release).
	DropBehindBlock int64
	// Adviser is the advisory port implementation.
	Adviser Adviser
}

// applyOptions merges option values and applies defaults.
func applyOptions(opts []Option) options {
	cfg := options{}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}

	if cfg.MaxLookaheadFiles <= 0 {
		cfg.MaxLookaheadFiles = DefaultMaxLookaheadFiles
	}

	if cfg.Adviser == nil {
		cfg.Adviser = osAdviser{}
	}

	return cfg
}
