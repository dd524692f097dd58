package verdict

import (
	"strings"
	"testing"

	"battle-loadtest/internal/metrics"
	"battle-loadtest/internal/player"
	"battle-loadtest/internal/protocol"
)

func outcomes(total, successes int) []player.Outcome {
	out := make([]player.Outcome, total)
	for i := range out {
		if i < successes {
			out[i] = player.Outcome{
				ID: "p", Rating: 1200, State: player.StateCompleted, Connected: true, Matched: true,
				Opponent: &protocol.Opponent{ID: "o", Rating: 1300}, RatingDiff: 100,
			}
		} else {
			out[i] = player.Outcome{ID: "p", Rating: 1200, State: player.StateFailed}
		}
	}
	return out
}

func TestLoadBoundary(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		want      Outcome
	}{
		{"exactly 0.80 passes", 80, Pass},
		{"0.79 fails", 79, Fail},
		{"all pass", 100, Pass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := metrics.Reduce("load", outcomes(100, tt.successes))
			v := Judge(KindLoad, r, Thresholds{})
			if v.Outcome != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, v.Outcome, v.Checks)
			}
			if len(v.Checks) != 1 || v.Checks[0].Metric != "success_rate" {
				t.Errorf("expected the success_rate check to drive the verdict, got %v", v.Checks)
			}
		})
	}
}

func TestNeverDefaultsToPass(t *testing.T) {
	empty := metrics.Reduce("empty", nil)
	if v := Judge(KindLoad, empty, Thresholds{}); v.Passed() {
		t.Error("zero attempted must fail")
	}

	r := metrics.Reduce("x", outcomes(10, 10))
	v := Judge("spike", r, Thresholds{})
	if v.Passed() {
		t.Error("unknown kind must fail")
	}
	if !strings.Contains(v.Reason, "unknown verdict kind") {
		t.Errorf("unexpected reason: %s", v.Reason)
	}

	broken := r
	broken.Counts.Connected = 3
	if Judge(KindLoad, broken, Thresholds{}).Passed() {
		t.Error("broken invariant must fail")
	}
}

func TestAccuracy(t *testing.T) {
	r := metrics.Reduce("accuracy", outcomes(10, 7))
	v := Judge(KindAccuracy, r, Thresholds{})
	if !v.Passed() {
		t.Errorf("expected PASS, got %s", v)
	}
	if len(v.Checks) != 3 {
		t.Errorf("expected match rate, mean and max checks, got %v", v.Checks)
	}

	far := outcomes(10, 10)
	far[0].RatingDiff = 900
	v = Judge(KindAccuracy, metrics.Reduce("accuracy", far), Thresholds{})
	if v.Passed() {
		t.Error("max rating difference 900 should fail")
	}
	failed := v.Failed()
	if len(failed) != 1 || failed[0].Metric != "max_rating_diff" {
		t.Errorf("expected max_rating_diff to drive the failure, got %v", failed)
	}

	none := metrics.Reduce("accuracy", outcomes(10, 0))
	if Judge(KindAccuracy, none, Thresholds{}).Passed() {
		t.Error("no matched pairs should fail")
	}
}

func TestFairness(t *testing.T) {
	r := metrics.Result{
		Scenario:         "fairness",
		Counts:           metrics.Counts{Attempted: 3, ConnectFailed: 3},
		FairnessVariance: metrics.FairnessVariance([]float64{0.50, 0.55, 0.52}),
	}
	if v := Judge(KindFairness, r, Thresholds{}); !v.Passed() {
		t.Errorf("expected PASS, got %s", v)
	}

	r.FairnessVariance = 0.20
	if v := Judge(KindFairness, r, Thresholds{}); v.Passed() {
		t.Error("variance of exactly 0.20 should fail")
	}
}

func TestOtherKinds(t *testing.T) {
	base := metrics.Result{Scenario: "x", Counts: metrics.Counts{Attempted: 4, Connected: 4, Matched: 4}}

	tests := []struct {
		name   string
		kind   Kind
		modify func(*metrics.Result)
		want   Outcome
	}{
		{"churn pass", KindChurn, func(r *metrics.Result) { r.AvgNormalMatchRate = 0.40 }, Pass},
		{"churn fail", KindChurn, func(r *metrics.Result) { r.AvgNormalMatchRate = 0.39 }, Fail},
		{"queue pass", KindQueueLoad, func(r *metrics.Result) { r.QueueEfficiency = 0.5 }, Pass},
		{"queue fail", KindQueueLoad, func(r *metrics.Result) { r.QueueEfficiency = 0.3 }, Fail},
		{"network pass", KindNetwork, func(r *metrics.Result) { r.MatchRate = 0.75 }, Pass},
		{"network fail", KindNetwork, func(r *metrics.Result) { r.MatchRate = 0.5 }, Fail},
		{"game pass", KindGame, func(r *metrics.Result) { r.GameCompletionRate = 1 }, Pass},
		{"game fail", KindGame, func(r *metrics.Result) { r.GameCompletionRate = 0.5 }, Fail},
		{"recovery ignores advisory", KindRecovery, func(r *metrics.Result) { r.RecoveryRate = 1; r.Reconnected = 2 }, Pass},
		{"recovery fail", KindRecovery, func(r *metrics.Result) { r.RecoveryRate = 0.5 }, Fail},
		{"diagnostic pass", KindDiagnostic, func(r *metrics.Result) { r.ProbePassRate = 1 }, Pass},
		{"diagnostic fail", KindDiagnostic, func(r *metrics.Result) { r.ProbePassRate = 0.8 }, Fail},
		{"throughput acks", KindDiagnostic, func(r *metrics.Result) {
			r.ProbePassRate = 1
			r.Probes = []metrics.ProbeSummary{{Kind: player.ProbeThroughput}}
			r.ThroughputAckRate = 0.94
		}, Fail},
		{"rating range", KindRatingRange, func(r *metrics.Result) { r.RatingDiff = metrics.Stats{Count: 4, Max: 400} }, Pass},
		{"custom threshold", KindLoad, func(r *metrics.Result) { r.SuccessRate = 0.85 }, Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.modify(&r)
			th := Thresholds{}
			if tt.name == "custom threshold" {
				th.SuccessRate = 0.9
			}
			v := Judge(tt.kind, r, th)
			if v.Outcome != tt.want {
				t.Errorf("expected %s, got %s", tt.want, v)
			}
		})
	}
}

func TestAll(t *testing.T) {
	pass := Verdict{Outcome: Pass}
	fail := Verdict{Outcome: Fail}
	if !All([]Verdict{pass, pass}) {
		t.Error("all passing should be true")
	}
	if All([]Verdict{pass, fail}) {
		t.Error("one failure should be false")
	}
	if All(nil) {
		t.Error("no verdicts should be false")
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		if got, err := ParseKind(string(k)); err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("nope"); err == nil {
		t.Error("expected error")
	}
}
