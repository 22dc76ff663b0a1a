// Readaheadbench benchmarks the reapfrog library against a plain
// open/read/close loop over the same file set.
//
// Run it twice on a cold page cache (echo 3 > /proc/sys/vm/drop_caches
// between runs) to see the readahead effect; on a warm cache the two modes
// converge.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"sort"
	"strings"
	"time"

	"github.com/the8472/reapfrog"
)

const (
	modeReadahead = "readahead"
	modePlain     = "plain"

	defaultBufSize = 64 << 10
)

type benchResult struct {
	Timestamp time.Time `json:"ts"`

	Case  string `json:"case,omitempty"`
	Notes string `json:"notes,omitempty"`

	Dir  string `json:"dir"`
	Tree bool   `json:"tree"`
	Mode string `json:"mode"`

	WindowSize int64 `json:"window_size"`
	MaxOpen    int   `json:"max_open"`
	DropBehind bool  `json:"drop_behind"`
	DropBlock  int64 `json:"drop_block,omitempty"`
	BufSize    int   `json:"buf_size"`
	Repeat     int   `json:"repeat"`
	GCPercent  int   `json:"gc"`

	Files        uint64        `json:"files"`
	BytesTotal   uint64        `json:"bytes_total"`
	Duration     time.Duration `json:"duration"`
	FilesPerSec  float64       `json:"files_per_sec"`
	BytesPerSec  float64       `json:"bytes_per_sec"`
	AvgFileBytes uint64        `json:"avg_file_bytes,omitempty"`

	GoVersion   string `json:"go"`
	GOOS        string `json:"goos"`
	GOARCH      string `json:"goarch"`
	GOMAXPROCS  int    `json:"gomaxprocs"`
	NumCPU      int    `json:"numcpu"`
	VCSRevision string `json:"vcs_revision,omitempty"`
	VCSTime     string `json:"vcs_time,omitempty"`
	VCSModified bool   `json:"vcs_modified,omitempty"`
}

type benchFlags struct {
	dir        string
	tree       bool
	mode       string
	windowSize int64
	maxOpen    int
	dropBehind bool
	dropBlock  int64
	bufSize    int
	repeat     int
	gcPercent  int
	quiet      bool
	caseName   string
	notes      string
	out        string
	cpuProfile string
	memProfile string
}

func parseFlags() *benchFlags {
	flags := &benchFlags{}

	flag.StringVar(&flags.dir, "dir", "", "directory holding the files to read")
	flag.BoolVar(&flags.tree, "tree", false, "walk recursively")
	flag.StringVar(&flags.mode, "mode", modeReadahead, "read mode: readahead | plain")
	flag.Int64Var(&flags.windowSize, "window", 0, "lookahead window in bytes (0=default)")
	flag.IntVar(&flags.maxOpen, "max-open", 0, "max open descriptors (0=default)")
	flag.BoolVar(&flags.dropBehind, "dropbehind", false, "evict consumed pages from the cache")
	flag.Int64Var(&flags.dropBlock, "drop-block", 0, "incremental dropbehind block in bytes (0=whole-file)")
	flag.IntVar(&flags.bufSize, "buf", defaultBufSize, "read buffer size in bytes")
	flag.IntVar(&flags.repeat, "repeat", 1, "repeat the pass N times per invocation")
	flag.IntVar(&flags.gcPercent, "gc", -1, "if >=0, call debug.SetGCPercent(gc)")
	flag.BoolVar(&flags.quiet, "q", false, "quiet: print only bytes/sec")
	flag.StringVar(&flags.caseName, "case", "", "optional short case name to store in JSON output")
	flag.StringVar(&flags.notes, "notes", "", "optional freeform notes to store in JSON output")
	flag.StringVar(&flags.out, "out", "", "optional JSONL output file to append one result per run")
	flag.StringVar(&flags.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&flags.memProfile, "memprofile", "", "write memory profile to file")

	return flags
}

func main() {
	flags := parseFlags()

	flag.Parse()

	os.Exit(run(flags))
}

func run(flags *benchFlags) int {
	if flags.dir == "" {
		fmt.Fprintln(os.Stderr, "-dir is required")

		return 2
	}

	if flags.repeat <= 0 {
		fmt.Fprintln(os.Stderr, "-repeat must be >= 1")

		return 2
	}

	mode, err := parseMode(flags.mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 2
	}

	if flags.bufSize <= 0 {
		flags.bufSize = defaultBufSize
	}

	paths, err := collectPaths(flags.dir, flags.tree)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		return 1
	}

	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "no files under %s\n", flags.dir)

		return 1
	}

	if flags.gcPercent >= 0 {
		debug.SetGCPercent(flags.gcPercent)
	}

	if flags.cpuProfile != "" {
		cpuFile, err := os.Create(flags.cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating cpuprofile: %v\n", err)

			return 1
		}

		err = pprof.StartCPUProfile(cpuFile)
		if err != nil {
			_ = cpuFile.Close()

			fmt.Fprintf(os.Stderr, "error starting cpuprofile: %v\n", err)

			return 1
		}

		defer func() {
			pprof.StopCPUProfile()

			_ = cpuFile.Close()
		}()
	}

	var (
		files      uint64
		bytesTotal uint64
	)

	start := time.Now()

	for range flags.repeat {
		var (
			passFiles uint64
			passBytes uint64
			passErr   error
		)

		switch mode {
		case modeReadahead:
			passFiles, passBytes, passErr = runReadahead(paths, flags)
		case modePlain:
			passFiles, passBytes, passErr = runPlain(paths, flags.bufSize)
		}

		if passErr != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", passErr)

			return 1
		}

		files += passFiles
		bytesTotal += passBytes
	}

	duration := time.Since(start)

	if flags.memProfile != "" {
		memFile, err := os.Create(flags.memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating memprofile: %v\n", err)

			return 1
		}

		err = pprof.WriteHeapProfile(memFile)
		if err != nil {
			_ = memFile.Close()

			fmt.Fprintf(os.Stderr, "error writing memprofile: %v\n", err)

			return 1
		}

		err = memFile.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error closing memprofile: %v\n", err)

			return 1
		}
	}

	filesPerSec := float64(files) / duration.Seconds()
	bytesPerSec := float64(bytesTotal) / duration.Seconds()

	var avgFileBytes uint64
	if files > 0 {
		avgFileBytes = bytesTotal / files
	}

	goVersion := ""
	vcsRevision := ""
	vcsTime := ""
	vcsModified := false

	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		goVersion = bi.GoVersion
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				vcsRevision = setting.Value
			case "vcs.time":
				vcsTime = setting.Value
			case "vcs.modified":
				vcsModified = setting.Value == "true"
			}
		}
	}

	res := benchResult{
		Timestamp:    time.Now(),
		Case:         flags.caseName,
		Notes:        flags.notes,
		Dir:          flags.dir,
		Tree:         flags.tree,
		Mode:         mode,
		WindowSize:   flags.windowSize,
		MaxOpen:      flags.maxOpen,
		DropBehind:   flags.dropBehind,
		DropBlock:    flags.dropBlock,
		BufSize:      flags.bufSize,
		Repeat:       flags.repeat,
		GCPercent:    flags.gcPercent,
		Files:        files,
		BytesTotal:   bytesTotal,
		Duration:     duration,
		FilesPerSec:  filesPerSec,
		BytesPerSec:  bytesPerSec,
		AvgFileBytes: avgFileBytes,
		GoVersion:    goVersion,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		GOMAXPROCS:   runtime.GOMAXPROCS(0),
		NumCPU:       runtime.NumCPU(),

		VCSRevision: vcsRevision,
		VCSTime:     vcsTime,
		VCSModified: vcsModified,
	}

	if flags.out != "" {
		err := appendJSONL(flags.out, &res)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error writing -out: %v\n", err)

			return 1
		}
	}

	if flags.quiet {
		fmt.Printf("%.0f\n", bytesPerSec)

		return 0
	}

	fmt.Printf("mode=%s files=%d bytes=%d repeat=%d duration=%v files/sec=%.0f bytes/sec=%.0f MB/s=%.1f\n",
		mode, files, bytesTotal, flags.repeat, duration, filesPerSec, bytesPerSec, bytesPerSec/1_000_000)

	return 0
}

// runReadahead reads every file through a Sequence.
func runReadahead(paths []string, flags *benchFlags) (uint64, uint64, error) {
	opts := []reapfrog.Option{}

	if flags.windowSize > 0 {
		opts = append(opts, reapfrog.WithWindowSize(flags.windowSize))
	}

	if flags.maxOpen > 0 {
		opts = append(opts, reapfrog.WithMaxLookaheadFiles(flags.maxOpen))
	}

	if flags.dropBlock > 0 {
		opts = append(opts, reapfrog.WithDropBehindBlock(flags.dropBlock))
	} else if flags.dropBehind {
		opts = append(opts, reapfrog.WithDropBehind())
	}

	seq := reapfrog.FromPaths(paths, opts...)
	defer seq.Close()

	var (
		files      uint64
		bytesTotal uint64
	)

	buf := make([]byte, flags.bufSize)

	for {
		f, err := seq.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return files, bytesTotal, err
		}

		n, err := io.CopyBuffer(io.Discard, f, buf)
		if err != nil {
			return files, bytesTotal, fmt.Errorf("read %s: %w", f.Path(), err)
		}

		files++
		bytesTotal += uint64(n)
	}

	return files, bytesTotal, nil
}

// runPlain is the baseline: open, read to EOF, close, one file at a time.
func runPlain(paths []string, bufSize int) (uint64, uint64, error) {
	var (
		files      uint64
		bytesTotal uint64
	)

	buf := make([]byte, bufSize)

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return files, bytesTotal, err
		}

		n, err := io.CopyBuffer(io.Discard, f, buf)

		closeErr := f.Close()

		if err != nil {
			return files, bytesTotal, fmt.Errorf("read %s: %w", path, err)
		}

		if closeErr != nil {
			return files, bytesTotal, closeErr
		}

		files++
		bytesTotal += uint64(n)
	}

	return files, bytesTotal, nil
}

// collectPaths lists the regular files under dir in sorted order.
func collectPaths(dir string, tree bool) ([]string, error) {
	var paths []string

	if tree {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.Type().IsRegular() {
				paths = append(paths, path)
			}

			return nil
		})
		if err != nil {
			return nil, err
		}

		return paths, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(paths)

	return paths, nil
}

func parseMode(modeFlag string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(modeFlag))
	switch mode {
	case modeReadahead, modePlain:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid -mode %q (expected: readahead | plain)", modeFlag)
	}
}

// appendJSONL appends res as one JSON line to path, creating it if needed.
func appendJSONL(path string, res *benchResult) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)

	enc := json.NewEncoder(w)

	err = enc.Encode(res)
	if err != nil {
		_ = f.Close()

		return err
	}

	err = w.Flush()
	if err != nil {
		_ = f.Close()

		return err
	}

	return f.Close()
}
