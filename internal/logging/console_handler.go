package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiDim    = "\x1b[2m"
)

// consoleSink serializes writes from every handler derived from one logger.
type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// consoleHandler renders one human-readable line per record:
//
//	2026-01-02T03:04:05Z WARN  [catalog] abc123 (publishing) ALERT(compliance_violation) - msg key=value
//
// The component, Track and stage are lifted out of the attributes into the
// line prefix; everything else trails as key=value pairs.
type consoleHandler struct {
	sink      *consoleSink
	level     slog.Leveler
	addSource bool
	colorize  bool
	group     string
	fields    []field
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, lvl slog.Leveler, addSource, colorize bool) slog.Handler {
	return &consoleHandler{sink: &consoleSink{w: w}, level: lvl, addSource: addSource, colorize: colorize}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = appendFields(append([]field(nil), h.fields...), h.group, attrs)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.fields...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendFields(fields, h.group, []slog.Attr{attr})
		return true
	})

	var head struct{ component, sourceID, stage, alert string }
	rest := fields[:0]
	for _, f := range fields {
		target := (*string)(nil)
		switch f.key {
		case FieldComponent:
			target = &head.component
		case FieldSourceID:
			target = &head.sourceID
		case FieldStage:
			target = &head.stage
		case FieldAlert:
			target = &head.alert
		}
		if target == nil {
			rest = append(rest, f)
			continue
		}
		if *target == "" {
			*target = plain(f.value)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var buf bytes.Buffer
	buf.WriteString(ts.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	label, color := levelStyle(record.Level)
	buf.WriteString(h.paint(color, label))
	if head.component != "" {
		buf.WriteString(" [" + head.component + "]")
	}
	if subject := trackSubject(head.sourceID, head.stage); subject != "" {
		buf.WriteString(" " + h.paint(ansiCyan, subject))
	}
	if head.alert != "" {
		buf.WriteString(" " + h.paint(ansiBold+ansiRed, "ALERT("+head.alert+")"))
	}
	buf.WriteString(" - ")
	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}
	if h.addSource {
		if src := record.Source(); src != nil {
			buf.WriteString(h.paint(ansiDim, fmt.Sprintf(" [%s:%d]", filepath.Base(src.File), src.Line)))
		}
	}
	for _, f := range rest {
		buf.WriteString(" " + h.paint(ansiDim, f.key+"=") + quoted(f.value))
	}
	buf.WriteByte('\n')

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	_, err := h.sink.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) paint(color, text string) string {
	if !h.colorize || color == "" {
		return text
	}
	return color + text + ansiReset
}

// trackSubject names what a line is about: "abc123 (separating)", "abc123"
// or just the stage.
func trackSubject(sourceID, stage string) string {
	sourceID, stage = strings.TrimSpace(sourceID), strings.TrimSpace(stage)
	if sourceID == "" {
		return stage
	}
	if stage == "" {
		return sourceID
	}
	return sourceID + " (" + stage + ")"
}

func appendFields(dst []field, group string, attrs []slog.Attr) []field {
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			dst = appendFields(dst, joinKey(group, attr.Key), value.Group())
			continue
		}
		dst = append(dst, field{key: joinKey(group, attr.Key), value: value})
	}
	return dst
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// plain renders v without quoting, for the line prefix.
func plain(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
}

// quoted renders v for a trailing key=value pair, quoting anything that would
// break naive whitespace splitting.
func quoted(v slog.Value) string {
	s := plain(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelStyle(level slog.Level) (string, string) {
	switch {
	case level >= slog.LevelError:
		return "ERROR", ansiRed
	case level >= slog.LevelWarn:
		return "WARN", ansiYellow
	case level >= slog.LevelInfo:
		return "INFO", ""
	default:
		return "DEBUG", ansiDim
	}
}
