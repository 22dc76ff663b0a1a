package reapfrog_test

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/the8472/reapfrog"
)

// ============================================================================
// Read correctness tests
// ============================================================================

func Test_Sequence_Returns_Exact_Concatenation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths, want := writeSizedFiles(t, root, []int{10, 0, 4096, 1, 257, 0, 8000})

	// Tiny window so the scheduler churns through several refills.
	seq := reapfrog.FromPaths(paths, reapfrog.WithWindowSize(1024))
	defer seq.Close()

	var got []byte

	for {
		f, err := seq.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			t.Fatalf("Next: %v", err)
		}

		data, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("read %s: %v", f.Path(), err)
		}

		got = append(got, data...)
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("content mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func Test_Sequence_Returns_Exact_Concatenation_When_Every_Advisory_Fails(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths, want := writeSizedFiles(t, root, []int{100, 300, 50})

	adv := &recordingAdviser{err: errors.New("fadvise: operation not supported")}

	seq := reapfrog.FromPaths(paths,
		reapfrog.WithAdviser(adv),
		reapfrog.WithDropBehind(),
		reapfrog.WithWindowSize(128),
	)
	defer seq.Close()

	var got []byte

	for {
		f, err := seq.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			t.Fatalf("Next: %v", err)
		}

		data, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("read %s: %v", f.Path(), err)
		}

		got = append(got, data...)
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("content mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}

	if len(adv.calls) == 0 {
		t.Fatal("expected advisories to have been attempted")
	}
}

func Test_Sequence_Yields_Files_In_Input_Order(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths, _ := writeSizedFiles(t, root, []int{5, 5, 5, 5, 5})

	seq := reapfrog.FromPaths(paths)
	defer seq.Close()

	for i := range paths {
		f, err := seq.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}

		if f.Path() != paths[i] {
			t.Fatalf("position %d: got %s, want %s", i, f.Path(), paths[i])
		}
	}

	_, err := seq.Next()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after last file, got %v", err)
	}
}

func Test_Sequence_Handles_Zero_Byte_Files(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths, _ := writeSizedFiles(t, root, []int{0, 0})

	seq := reapfrog.FromPaths(paths)
	defer seq.Close()

	for i := 0; i < 2; i++ {
		f, err := seq.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}

		buf := make([]byte, 8)

		n, err := f.Read(buf)
		if n != 0 || !errors.Is(err, io.EOF) {
			t.Fatalf("zero-byte file %d: got (%d, %v), want (0, EOF)", i, n, err)
		}
	}

	_, err := seq.Next()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func Test_File_Read_Does_Not_Cross_File_Boundary(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths, want := writeSizedFiles(t, root, []int{7, 9})

	seq := reapfrog.FromPaths(paths)
	defer seq.Close()

	f1, err := seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	// Buffer larger than the first file must not pull in bytes of the
	// second one.
	buf := make([]byte, 64)

	n, err := f1.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if n != 7 {
		t.Fatalf("expected read clamped to 7 bytes, got %d", n)
	}

	if !bytes.Equal(buf[:n], want[:7]) {
		t.Fatal("first file content mismatch")
	}

	n, err = f1.Read(buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("expected (0, EOF) after file end, got (%d, %v)", n, err)
	}

	f2, err := seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	data, err := io.ReadAll(f2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !bytes.Equal(data, want[7:]) {
		t.Fatal("second file content mismatch")
	}
}

func Test_File_Read_Returns_Early_EOF_When_File_Shrinks_After_Open(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths, want := writeSizedFiles(t, root, []int{100, 10})

	seq := reapfrog.FromPaths(paths)
	defer seq.Close()

	f1, err := seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	buf := make([]byte, 40)

	_, err = io.ReadFull(f1, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !bytes.Equal(buf, want[:40]) {
		t.Fatal("prefix content mismatch")
	}

	// The size observed at open time stays authoritative; a shrunk file
	// simply ends early.
	err = os.Truncate(paths[0], 40)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}

	n, err := f1.Read(buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("read after shrink: got (%d, %v), want (0, EOF)", n, err)
	}

	// The missing tail is skipped, so the next file starts exactly at its
	// own virtual offset.
	f2, err := seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if got := reapfrog.VirtualCursor(seq); got != 100 {
		t.Fatalf("cursor after shrunk file: got %d, want 100", got)
	}

	data, err := io.ReadAll(f2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !bytes.Equal(data, want[100:]) {
		t.Fatal("second file content mismatch after shrink")
	}

	if got := reapfrog.VirtualCursor(seq); got != 110 {
		t.Fatalf("cursor after second file: got %d, want 110", got)
	}
}

// ============================================================================
// Error path tests
// ============================================================================

func Test_Sequence_Next_Returns_EOF_When_Source_Empty(t *testing.T) {
	t.Parallel()

	seq := reapfrog.FromPaths(nil)
	defer seq.Close()

	_, err := seq.Next()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}

	_, err = seq.Next()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on repeat call, got %v", err)
	}
}

func Test_Sequence_Next_Surfaces_Open_Error_At_Failing_Entry(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	good1 := writeFile(t, root, "good1.bin", []byte("aaaa"))
	good2 := writeFile(t, root, "good2.bin", []byte("bbbb"))
	missing := filepath.Join(root, "missing.bin")
	after := writeFile(t, root, "after.bin", []byte("cccc"))

	seq := reapfrog.FromPaths([]string{good1, good2, missing, after})
	defer seq.Close()

	// Both entries ahead of the failure are readable.
	for i, wantData := range []string{"aaaa", "bbbb"} {
		f, err := seq.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}

		data, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}

		if string(data) != wantData {
			t.Fatalf("entry %d: got %q, want %q", i, data, wantData)
		}
	}

	_, err := seq.Next()
	if err == nil {
		t.Fatal("expected open error at failing entry")
	}

	var ioErr *reapfrog.IOError

	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *IOError, got %T: %v", err, err)
	}

	if ioErr.Op != "open" || ioErr.Path != missing {
		t.Fatalf("unexpected IOError fields: op=%q path=%q", ioErr.Op, ioErr.Path)
	}

	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist in chain, got %v", err)
	}

	// Sticky: the sequence is done, entries past the failure never surface.
	_, err2 := seq.Next()
	if !errors.Is(err2, err) && err2 != err {
		t.Fatalf("expected sticky error, got %v", err2)
	}
}

func Test_Sequence_Rejects_Non_Regular_Files(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	seq := reapfrog.FromPaths([]string{root}) // a directory
	defer seq.Close()

	_, err := seq.Next()
	if !errors.Is(err, reapfrog.ErrNotRegular) {
		t.Fatalf("expected ErrNotRegular, got %v", err)
	}

	var ioErr *reapfrog.IOError

	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *IOError, got %T", err)
	}
}

// ============================================================================
// Handle lifecycle tests
// ============================================================================

func Test_File_Read_Returns_ErrReleased_After_Next(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths, _ := writeSizedFiles(t, root, []int{10, 10})

	seq := reapfrog.FromPaths(paths)
	defer seq.Close()

	f1, err := seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	_, err = seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	buf := make([]byte, 4)

	_, err = f1.Read(buf)
	if !errors.Is(err, reapfrog.ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}

	if f1.Fd() != ^uintptr(0) {
		t.Fatal("expected invalid Fd after release")
	}

	// Stat stays readable after release.
	if f1.Stat().Size != 10 {
		t.Fatalf("Stat after release: got size %d, want 10", f1.Stat().Size)
	}
}

func Test_File_Close_Skips_Unconsumed_Tail(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths, want := writeSizedFiles(t, root, []int{1000, 20})

	seq := reapfrog.FromPaths(paths)
	defer seq.Close()

	f1, err := seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	buf := make([]byte, 10)

	_, err = io.ReadFull(f1, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	err = f1.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Closing again is a no-op.
	err = f1.Close()
	if err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if got := reapfrog.VirtualCursor(seq); got != 1000 {
		t.Fatalf("cursor after early close: got %d, want 1000", got)
	}

	f2, err := seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	data, err := io.ReadAll(f2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !bytes.Equal(data, want[1000:]) {
		t.Fatal("second file content mismatch after early close")
	}
}

func Test_Sequence_Close_Releases_Lookahead_Descriptors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths, _ := writeSizedFiles(t, root, []int{10, 10, 10, 10, 10, 10})

	// Window far larger than the total, so every file is opened ahead.
	seq := reapfrog.FromPaths(paths)

	_, err := seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if got := reapfrog.OpenDescriptorCount(seq); got != len(paths) {
		t.Fatalf("open descriptors after first Next: got %d, want %d", got, len(paths))
	}

	err = seq.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := reapfrog.OpenDescriptorCount(seq); got != 0 {
		t.Fatalf("open descriptors after Close: got %d, want 0", got)
	}

	_, err = seq.Next()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after Close, got %v", err)
	}

	// Idempotent.
	err = seq.Close()
	if err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func Test_File_Stat_Reports_Open_Time_Metadata(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := writeFile(t, root, "data.bin", bytes.Repeat([]byte{0xab}, 321))

	seq := reapfrog.FromPaths([]string{path})
	defer seq.Close()

	f, err := seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	st := f.Stat()

	if st.Size != 321 {
		t.Fatalf("Stat.Size: got %d, want 321", st.Size)
	}

	if st.ModTime <= 0 {
		t.Fatalf("Stat.ModTime: got %d, want > 0", st.ModTime)
	}

	if f.Fd() == ^uintptr(0) {
		t.Fatal("expected valid Fd on live handle")
	}
}

// ============================================================================
// Iterator tests
// ============================================================================

func Test_Sequence_All_Yields_Files_Then_Stops(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths, want := writeSizedFiles(t, root, []int{30, 0, 70})

	seq := reapfrog.FromPaths(paths)
	defer seq.Close()

	var (
		got      []byte
		gotPaths []string
	)

	for f, err := range seq.All() {
		if err != nil {
			t.Fatalf("iteration error: %v", err)
		}

		gotPaths = append(gotPaths, f.Path())

		data, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("read %s: %v", f.Path(), err)
		}

		got = append(got, data...)
	}

	if len(gotPaths) != len(paths) {
		t.Fatalf("yielded %d files, want %d", len(gotPaths), len(paths))
	}

	for i := range paths {
		if gotPaths[i] != paths[i] {
			t.Fatalf("position %d: got %s, want %s", i, gotPaths[i], paths[i])
		}
	}

	if !bytes.Equal(got, want) {
		t.Fatal("content mismatch")
	}
}

func Test_Sequence_All_Yields_Error_Once(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	good := writeFile(t, root, "good.bin", []byte("xyz"))
	missing := filepath.Join(root, "nope.bin")

	seq := reapfrog.FromPaths([]string{good, missing})
	defer seq.Close()

	var (
		files int
		errs  int
	)

	for f, err := range seq.All() {
		if err != nil {
			errs++

			if !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("expected fs.ErrNotExist, got %v", err)
			}

			continue
		}

		files++

		_, err = io.Copy(io.Discard, f)
		if err != nil {
			t.Fatalf("read %s: %v", f.Path(), err)
		}
	}

	if files != 1 || errs != 1 {
		t.Fatalf("got %d files and %d errors, want 1 and 1", files, errs)
	}
}
