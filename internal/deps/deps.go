// Package deps resolves the external binaries loopdeck shells out to.
package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var errNotConfigured = errors.New("command not configured")

// Requirement names an external tool and how it is invoked.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after probing. Available entries carry the
// resolved absolute path in Command.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Probe resolves the requirement's command.
func (r Requirement) Probe() Status {
	st := Status{
		Name:        r.Name,
		Command:     strings.TrimSpace(r.Command),
		Description: strings.TrimSpace(r.Description),
		Optional:    r.Optional,
	}
	path, err := Resolve(st.Command)
	if err != nil {
		st.Detail = err.Error()
		return st
	}
	st.Command = path
	st.Available = true
	return st
}

// Check probes every requirement in order.
func Check(reqs ...Requirement) []Status {
	out := make([]Status, len(reqs))
	for i, r := range reqs {
		out[i] = r.Probe()
	}
	return out
}

// Resolve returns the absolute path of command. Commands with a path
// separator must name an executable file; bare names are looked up on PATH.
func Resolve(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", errNotConfigured
	}
	if !strings.ContainsRune(command, filepath.Separator) {
		path, err := exec.LookPath(command)
		if err != nil {
			return "", fmt.Errorf("binary %q not found on PATH", command)
		}
		return path, nil
	}
	info, err := os.Stat(command)
	if err != nil {
		return "", fmt.Errorf("binary %q not found", command)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%q is not an executable file", command)
	}
	return filepath.Abs(command)
}

// Unavailable splits the statuses that failed to resolve into required and
// optional tools.
func Unavailable(statuses []Status) (required, optional []Status) {
	for _, s := range statuses {
		switch {
		case s.Available:
		case s.Optional:
			optional = append(optional, s)
		default:
			required = append(required, s)
		}
	}
	return required, optional
}
