package reapfrog_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()

	fullPath := filepath.Join(root, rel)

	err := os.WriteFile(fullPath, data, 0o600)
	if err != nil {
		t.Fatalf("write %s: %v", fullPath, err)
	}

	return fullPath
}

// writeSizedFiles creates one file per size with deterministic content and
// returns the paths in creation order alongside the expected concatenation.
func writeSizedFiles(t *testing.T, root string, sizes []int) ([]string, []byte) {
	t.Helper()

	paths := make([]string, 0, len(sizes))

	var want []byte

	for i, size := range sizes {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte((i*31 + j) % 251)
		}

		paths = append(paths, writeFile(t, root, fmt.Sprintf("f%03d.bin", i), data))
		want = append(want, data...)
	}

	return paths, want
}

// adviseCall is one recorded advisory.
type adviseCall struct {
	op  string // "willneed" | "dontneed"
	fd  uintptr
	off int64
	n   int64
}

// recordingAdviser records every advisory and optionally fails each call.
// Sequences are single-threaded, so no locking is needed.
type recordingAdviser struct {
	calls []adviseCall
	err   error // returned from every call when set
}

func (a *recordingAdviser) WillNeed(fd uintptr, off, n int64) error {
	a.calls = append(a.calls, adviseCall{op: "willneed", fd: fd, off: off, n: n})

	return a.err
}

func (a *recordingAdviser) DontNeed(fd uintptr, off, n int64) error {
	a.calls = append(a.calls, adviseCall{op: "dontneed", fd: fd, off: off, n: n})

	return a.err
}

// ops filters the recorded calls by kind, preserving order.
func (a *recordingAdviser) ops(kind string) []adviseCall {
	var out []adviseCall

	for _, c := range a.calls {
		if c.op == kind {
			out = append(out, c)
		}
	}

	return out
}
