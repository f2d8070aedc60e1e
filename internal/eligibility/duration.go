package eligibility

import (
	"fmt"

	"loopdeck/internal/playlist"
	"loopdeck/internal/services"
)

// DefaultMinDuration is the shortest track a 40 s loop can be cut from.
const DefaultMinDuration = 40.0

// CheckDuration rejects candidates shorter than minSeconds with
// DurationTooShort. A duration exactly equal to the minimum passes.
func CheckDuration(c playlist.Candidate, minSeconds float64) error {
	return checkSeconds(c.DurationSeconds, minSeconds)
}

func checkSeconds(duration, minSeconds float64) error {
	if minSeconds <= 0 {
		minSeconds = DefaultMinDuration
	}
	if duration < minSeconds {
		return services.Reject(services.ReasonDurationTooShort,
			fmt.Sprintf("duration %.1fs is below the %.0fs minimum", duration, minSeconds))
	}
	return nil
}
