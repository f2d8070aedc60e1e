package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// severity is the leading tag of a status line.
type severity string

const (
	sevInfo  severity = "info"
	sevOK    severity = "ok"
	sevWarn  severity = "warn"
	sevError severity = "error"
)

func parseSeverity(value string) severity {
	switch s := severity(strings.ToLower(strings.TrimSpace(value))); s {
	case sevOK, sevWarn, sevError:
		return s
	default:
		return sevInfo
	}
}

func (s severity) colors() text.Colors {
	switch s {
	case sevOK:
		return text.Colors{text.FgGreen}
	case sevWarn:
		return text.Colors{text.FgYellow}
	case sevError:
		return text.Colors{text.FgRed, text.Bold}
	default:
		return text.Colors{text.FgBlue}
	}
}

type statusRow struct {
	label  string
	sev    severity
	detail string
}

// statusPrinter writes titled sections of aligned status rows, colored when
// the destination is a terminal.
type statusPrinter struct {
	w     io.Writer
	color bool
}

func newStatusPrinter(w io.Writer) statusPrinter {
	return statusPrinter{w: w, color: isTTY(w)}
}

const statusLabelWidth = 18

func (p statusPrinter) heading(title string) {
	line := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(line))
	if p.color {
		line, rule = text.FgBlue.Sprint(line), text.FgBlue.Sprint(rule)
	}
	fmt.Fprintln(p.w, line)
	fmt.Fprintln(p.w, rule)
}

func (p statusPrinter) row(r statusRow) string {
	tag := "[" + strings.ToUpper(string(r.sev)) + "]"
	if r.detail != "" {
		tag += " " + r.detail
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, r.label+":", tag)
	if p.color {
		return r.sev.colors().Sprint(line)
	}
	return line
}

func (p statusPrinter) section(title string, rows []statusRow) {
	p.heading(title)
	for _, r := range rows {
		fmt.Fprintln(p.w, p.row(r))
	}
	fmt.Fprintln(p.w)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
