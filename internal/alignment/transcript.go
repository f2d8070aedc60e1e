package alignment

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"loopdeck/internal/textutil"
)

// Transcript sources recorded in the alignment map.
const (
	TranscriptCaptions = "captions"
	TranscriptNone     = "none"
)

// Cue is one caption with its on-screen interval.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the reference text for a track.
type Transcript struct {
	Source   string `json:"source"`
	Language string `json:"language,omitempty"`
	Cues     []Cue  `json:"cues,omitempty"`
}

// Empty reports whether the transcript carries no words.
func (t Transcript) Empty() bool {
	for _, c := range t.Cues {
		if len(textutil.Words(c.Text)) > 0 {
			return false
		}
	}
	return true
}

// Window returns the cues overlapping [start, end), shifted so start becomes
// zero. Cues are not clipped: a cue straddling the window keeps its full
// span so word timing inside it stays proportional.
func (t Transcript) Window(start, end float64) Transcript {
	out := Transcript{Source: t.Source, Language: t.Language}
	for _, c := range t.Cues {
		if c.End <= start || c.Start >= end {
			continue
		}
		out.Cues = append(out.Cues, Cue{Start: c.Start - start, End: c.End - start, Text: c.Text})
	}
	return out
}

var (
	vttTagPattern        = regexp.MustCompile(`<[^>]*>`)
	vttAnnotationPattern = regexp.MustCompile(`\[[^\]]*\]`)
)

// ReadVTT parses a WebVTT file.
func ReadVTT(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseVTT(f)
}

// ParseVTT parses WebVTT captions. Inline timing and styling tags are
// stripped, bracketed annotations such as [Music] are dropped, and the
// rolling lines of automatic captions (each cue repeating the previous
// cue's last line) are collapsed so each line is kept once.
func ParseVTT(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		cues     []Cue
		lineNo   int
		sawMagic bool
		current  *Cue
		lines    []string
		previous []string
	)
	flush := func() {
		if current == nil {
			return
		}
		fresh := lines[rollingOverlap(previous, lines):]
		if len(lines) > 0 {
			previous = lines
		}
		if len(fresh) > 0 && current.End > current.Start {
			current.Text = strings.Join(fresh, " ")
			cues = append(cues, *current)
		}
		current = nil
		lines = nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
			if !strings.HasPrefix(line, "WEBVTT") {
				return nil, fmt.Errorf("vtt: missing WEBVTT header")
			}
			sawMagic = true
			continue
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case strings.Contains(trimmed, "-->"):
			flush()
			start, end, err := parseCueTiming(trimmed)
			if err != nil {
				return nil, fmt.Errorf("vtt line %d: %w", lineNo, err)
			}
			current = &Cue{Start: start, End: end}
		case current != nil:
			if text := cleanCueText(trimmed); text != "" {
				lines = append(lines, text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vtt: %w", err)
	}
	if !sawMagic {
		return nil, fmt.Errorf("vtt: empty input")
	}
	flush()
	return cues, nil
}

func cleanCueText(line string) string {
	line = vttTagPattern.ReplaceAllString(line, "")
	line = vttAnnotationPattern.ReplaceAllString(line, "")
	line = html.UnescapeString(line)
	return strings.Join(strings.Fields(line), " ")
}

// rollingOverlap returns how many leading lines of current repeat the
// trailing lines of previous.
func rollingOverlap(previous, current []string) int {
	for k := min(len(previous), len(current)); k > 0; k-- {
		match := true
		for i := 0; i < k; i++ {
			if !strings.EqualFold(previous[len(previous)-k+i], current[i]) {
				match = false
				break
			}
		}
		if match {
			return k
		}
	}
	return 0
}

func parseCueTiming(line string) (start, end float64, err error) {
	left, right, ok := strings.Cut(line, "-->")
	if !ok {
		return 0, 0, fmt.Errorf("malformed timing %q", line)
	}
	rightFields := strings.Fields(right)
	if len(rightFields) == 0 {
		return 0, 0, fmt.Errorf("missing end time in %q", line)
	}
	if start, err = parseTimestamp(strings.TrimSpace(left)); err != nil {
		return 0, 0, err
	}
	if end, err = parseTimestamp(rightFields[0]); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseTimestamp accepts hh:mm:ss.ttt and mm:ss.ttt.
func parseTimestamp(value string) (float64, error) {
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed timestamp %q", value)
	}
	seconds, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, fmt.Errorf("malformed timestamp %q", value)
	}
	total := seconds
	scale := 60.0
	for i := len(parts) - 2; i >= 0; i-- {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("malformed timestamp %q", value)
		}
		total += float64(n) * scale
		scale *= 60
	}
	return total, nil
}
