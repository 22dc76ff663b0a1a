//go:build !linux && !freebsd

package reapfrog

// Platforms without posix_fadvise (darwin, windows, the remaining BSDs, ...)
// get no-op advisories. Reads still work; there is simply no kernel prefetch
// hinting.

func fadviseSequential(uintptr) error { return nil }

func fadviseWillNeed(uintptr, int64, int64) error { return nil }

func fadviseDontNeed(uintptr, int64, int64) error { return nil }
