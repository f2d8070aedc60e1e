package youtube

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDuration converts an ISO-8601 duration such as "PT4M13S" or "P1DT2H"
// into seconds. Year and month designators are rejected.
func ParseDuration(value string) (float64, error) {
	s := strings.TrimSpace(strings.ToUpper(value))
	if !strings.HasPrefix(s, "P") || len(s) < 2 {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", value)
	}
	s = s[1:]
	var total float64
	inTime := false
	number := ""
	for _, r := range s {
		switch {
		case r == 'T':
			if inTime || number != "" {
				return 0, fmt.Errorf("invalid ISO-8601 duration %q", value)
			}
			inTime = true
		case (r >= '0' && r <= '9') || r == '.' || r == ',':
			if r == ',' {
				r = '.'
			}
			number += string(r)
		default:
			if number == "" {
				return 0, fmt.Errorf("invalid ISO-8601 duration %q", value)
			}
			n, err := strconv.ParseFloat(number, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", value, err)
			}
			number = ""
			unit, ok := durationUnit(r, inTime)
			if !ok {
				return 0, fmt.Errorf("unsupported ISO-8601 designator %q in %q", r, value)
			}
			total += n * unit
		}
	}
	if number != "" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q: trailing number", value)
	}
	return total, nil
}

func durationUnit(designator rune, inTime bool) (float64, bool) {
	if inTime {
		switch designator {
		case 'H':
			return 3600, true
		case 'M':
			return 60, true
		case 'S':
			return 1, true
		}
		return 0, false
	}
	switch designator {
	case 'W':
		return 7 * 86400, true
	case 'D':
		return 86400, true
	}
	return 0, false
}
