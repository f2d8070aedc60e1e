package eligibility_test

import (
	"math"
	"testing"

	"loopdeck/internal/eligibility"
)

func percentScores(n int) []float64 {
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = float64(n-i) / float64(n)
	}
	return scores
}

func TestMaxThresholdForRateKeepsFalseRejectsBounded(t *testing.T) {
	scores := percentScores(100)
	threshold := eligibility.MaxThresholdForRate(scores, 0.05)
	if math.Abs(threshold-0.06) > 1e-9 {
		t.Fatalf("expected threshold 0.06, got %f", threshold)
	}
	if rate := eligibility.FalseRejectRate(scores, threshold); rate > 0.05 {
		t.Fatalf("false reject rate %.3f exceeds 5%%", rate)
	}
	if rate := eligibility.FalseRejectRate(scores, math.Nextafter(threshold, 1)); rate <= 0.05 {
		t.Fatalf("expected any higher threshold to exceed 5%%, got %.3f", rate)
	}
}

func TestMaxThresholdForRateEdges(t *testing.T) {
	if got := eligibility.MaxThresholdForRate(nil, 0.05); got != 0 {
		t.Fatalf("expected 0 for empty set, got %f", got)
	}
	scores := []float64{0.4, 0.6}
	if got := eligibility.MaxThresholdForRate(scores, 1); got <= 0.6 {
		t.Fatalf("expected threshold above max when every reject is allowed, got %f", got)
	}
	if got := eligibility.MaxThresholdForRate(scores, 0); got != 0.4 {
		t.Fatalf("expected minimum score for zero rate, got %f", got)
	}
}

func TestDistributionSummary(t *testing.T) {
	s := eligibility.Distribution([]float64{0.9, 0.1, 0.5})
	if s.Count != 3 || s.Min != 0.1 || s.Max != 0.9 || s.Median != 0.5 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if math.Abs(s.Mean-0.5) > 1e-12 {
		t.Fatalf("unexpected mean %f", s.Mean)
	}
}

func TestEvaluateLabeledSet(t *testing.T) {
	set := []eligibility.LabeledScore{
		{SourceID: "v1", Score: 0.9, Vocal: true},
		{SourceID: "v2", Score: 0.7, Vocal: true},
		{SourceID: "v3", Score: 0.15, Vocal: true},
		{SourceID: "i1", Score: 0.05},
		{SourceID: "i2", Score: 0.3},
	}
	eval := eligibility.Evaluate(set, 0.2)
	if math.Abs(eval.FalseRejectRate-1.0/3) > 1e-9 {
		t.Fatalf("unexpected false reject rate %f", eval.FalseRejectRate)
	}
	if eval.FalseAcceptRate != 0.5 {
		t.Fatalf("unexpected false accept rate %f", eval.FalseAcceptRate)
	}
	if eval.Vocal.Count != 3 || eval.Instrumental.Count != 2 {
		t.Fatalf("unexpected split %+v", eval)
	}
	if eval.Recommended != 0.15 {
		t.Fatalf("expected recommended threshold 0.15, got %f", eval.Recommended)
	}
}
