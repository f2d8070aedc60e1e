package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	pollInterval = 250 * time.Millisecond
	maxLineBytes = 1 << 20
)

// TailOptions selects which part of the log Tail returns.
type TailOptions struct {
	// Offset is a byte position to resume from. Negative means "the last
	// Limit lines".
	Offset int64
	Limit  int
	// Follow waits up to Wait for new lines when none are available.
	Follow bool
	Wait   time.Duration
	// SourceID keeps only lines that mention this Track.
	SourceID string
}

// TailResult holds the selected lines and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// MatchesTrack reports whether a log line mentions sourceID as a whole
// identifier. Both log formats carry it verbatim; an empty id matches all.
func MatchesTrack(line, sourceID string) bool {
	if sourceID == "" {
		return true
	}
	for rest, at := line, 0; ; {
		i := strings.Index(rest, sourceID)
		if i < 0 {
			return false
		}
		start, end := at+i, at+i+len(sourceID)
		if (start == 0 || !idByte(line[start-1])) && (end == len(line) || !idByte(line[end])) {
			return true
		}
		at = start + 1
		rest = line[at:]
	}
}

// idByte reports whether c can appear in a YouTube video id.
func idByte(c byte) bool {
	return c == '-' || c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// Tail reads the log at path according to opts. A missing file yields an
// empty result at offset 0. An offset past the end of the file means the log
// rotated underneath the caller, so reading restarts at the top of the new
// file.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return TailResult{}, nil
	case err != nil:
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	case info.IsDir():
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var (
		result TailResult
		keep   = func(line string) bool { return MatchesTrack(line, opts.SourceID) }
	)
	if opts.Offset < 0 {
		result, err = lastLines(path, opts.Limit, keep)
	} else {
		start := opts.Offset
		if start > info.Size() {
			start = 0
		}
		result, err = linesFrom(path, start, keep)
	}
	if err != nil || len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, err
	}
	return follow(ctx, path, result.Offset, opts.Wait, keep)
}

// scan feeds every line from r to fn using a buffer large enough for the
// multi-kilobyte JSON records stage failures produce.
func scan(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}
	return nil
}

func lastLines(path string, limit int, keep func(string) bool) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var window []string
	if limit > 0 {
		err = scan(file, func(line string) {
			if !keep(line) {
				return
			}
			if len(window) == limit {
				window = window[1:]
			}
			window = append(window, line)
		})
		if err != nil {
			return TailResult{}, err
		}
	}
	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return TailResult{}, fmt.Errorf("seek log file: %w", err)
	}
	return TailResult{Lines: window, Offset: end}, nil
}

func linesFrom(path string, offset int64, keep func(string) bool) (TailResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	if err := scan(file, func(line string) {
		if keep(line) {
			lines = append(lines, line)
		}
	}); err != nil {
		return TailResult{Offset: offset}, err
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("determine log offset: %w", err)
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

// follow polls from offset until a matching line arrives, wait elapses or ctx
// ends.
func follow(ctx context.Context, path string, offset int64, wait time.Duration, keep func(string) bool) (TailResult, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	current := TailResult{Offset: offset}
	for {
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-timer.C:
			return current, nil
		case <-ticker.C:
		}
		next, err := linesFrom(path, current.Offset, keep)
		if err != nil {
			return current, err
		}
		if len(next.Lines) > 0 {
			return next, nil
		}
		current.Offset = next.Offset
	}
}
