package eligibility

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// LabeledScore is one entry of a validation set.
type LabeledScore struct {
	SourceID string  `json:"source_id" yaml:"source_id"`
	Score    float64 `json:"score" yaml:"score"`
	// Vocal marks tracks a human confirmed to contain singing.
	Vocal bool `json:"vocal" yaml:"vocal"`
}

// Summary describes an empirical score distribution.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	P05    float64 `json:"p05"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

// Distribution summarizes scores.
func Distribution(scores []float64) Summary {
	if len(scores) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	s := Summary{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P05:    stat.Quantile(0.05, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// FalseRejectRate is the share of vocal scores that fall below threshold.
func FalseRejectRate(vocalScores []float64, threshold float64) float64 {
	if len(vocalScores) == 0 {
		return 0
	}
	rejected := 0
	for _, s := range vocalScores {
		if s < threshold {
			rejected++
		}
	}
	return float64(rejected) / float64(len(vocalScores))
}

// MaxThresholdForRate returns the largest threshold whose false-reject rate on
// vocalScores does not exceed rate.
func MaxThresholdForRate(vocalScores []float64, rate float64) float64 {
	if len(vocalScores) == 0 {
		return 0
	}
	sorted := slices.Clone(vocalScores)
	slices.Sort(sorted)
	k := int(math.Floor(rate * float64(len(sorted))))
	if k >= len(sorted) {
		return math.Nextafter(sorted[len(sorted)-1], math.Inf(1))
	}
	return sorted[max(k, 0)]
}

// Evaluation reports threshold quality on a labeled set.
type Evaluation struct {
	Threshold       float64 `json:"threshold"`
	Vocal           Summary `json:"vocal"`
	Instrumental    Summary `json:"instrumental"`
	FalseRejectRate float64 `json:"false_reject_rate"`
	FalseAcceptRate float64 `json:"false_accept_rate"`
	// Recommended is the largest threshold keeping false rejects at or below 5%.
	Recommended float64 `json:"recommended"`
}

// MaxFalseRejectRate bounds how many vocal tracks the filter may drop.
const MaxFalseRejectRate = 0.05

// Evaluate splits a labeled set and reports how threshold performs on it.
func Evaluate(set []LabeledScore, threshold float64) Evaluation {
	var vocal, instrumental []float64
	for _, s := range set {
		if s.Vocal {
			vocal = append(vocal, s.Score)
		} else {
			instrumental = append(instrumental, s.Score)
		}
	}
	eval := Evaluation{
		Threshold:       threshold,
		Vocal:           Distribution(vocal),
		Instrumental:    Distribution(instrumental),
		FalseRejectRate: FalseRejectRate(vocal, threshold),
		Recommended:     MaxThresholdForRate(vocal, MaxFalseRejectRate),
	}
	if len(instrumental) > 0 {
		accepted := 0
		for _, s := range instrumental {
			if s >= threshold {
				accepted++
			}
		}
		eval.FalseAcceptRate = float64(accepted) / float64(len(instrumental))
	}
	return eval
}
