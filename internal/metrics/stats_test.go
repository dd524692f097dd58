package metrics

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if s.Count != 8 || s.Mean != 5 || s.Min != 2 || s.Max != 9 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.StdDev != 2 {
		t.Errorf("expected population stddev 2, got %v", s.StdDev)
	}

	if empty := Summarize(nil); empty.Count != 0 || empty.Mean != 0 {
		t.Errorf("expected zero stats for empty input, got %+v", empty)
	}
}

func TestFairnessVariance(t *testing.T) {
	rates := []float64{0.50, 0.55, 0.52}

	mean := (0.50 + 0.55 + 0.52) / 3
	want := math.Sqrt(((0.50-mean)*(0.50-mean) + (0.55-mean)*(0.55-mean) + (0.52-mean)*(0.52-mean)) / 3)

	got := FairnessVariance(rates)
	if !approx(got, want) {
		t.Errorf("FairnessVariance = %v, want %v", got, want)
	}
	if got >= 0.20 {
		t.Errorf("expected %v to be below the fairness threshold", got)
	}
	if math.Abs(got-0.0205480) > 1e-6 {
		t.Errorf("expected about 0.020548, got %v", got)
	}
}

func TestPopulationStdDevSingleValue(t *testing.T) {
	if PopulationStdDev([]float64{0.7}) != 0 {
		t.Error("a single value has no spread")
	}
}
