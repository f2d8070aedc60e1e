package stage

import (
	"maps"
	"slices"
)

// Health is a stage's answer to whether it can take work right now.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Ready reports a stage with every collaborator wired.
func Ready(name string) Health {
	return Health{Name: name, Ready: true}
}

// NotReady reports a stage that would fail any Track handed to it.
func NotReady(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// Blocked returns the stages in health that cannot take work, ordered by name.
func Blocked(health map[string]Health) []Health {
	var out []Health
	for _, name := range slices.Sorted(maps.Keys(health)) {
		if h := health[name]; !h.Ready {
			out = append(out, h)
		}
	}
	return out
}
