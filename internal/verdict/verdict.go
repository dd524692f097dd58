package verdict

import (
	"fmt"
	"strings"

	"battle-loadtest/internal/metrics"
)

// Kind はシナリオの判定基準の種類
type Kind string

const (
	KindConnectivity Kind = "connectivity"
	KindLoad         Kind = "load"
	KindAccuracy     Kind = "accuracy"
	KindRatingRange  Kind = "rating_range"
	KindQueueLoad    Kind = "queue_load"
	KindFairness     Kind = "fairness"
	KindChurn        Kind = "churn"
	KindNetwork      Kind = "network"
	KindGame         Kind = "game"
	KindRecovery     Kind = "recovery"
	KindDiagnostic   Kind = "diagnostic"
)

// Kinds は全ての種類を返す
func Kinds() []Kind {
	return []Kind{
		KindConnectivity, KindLoad, KindAccuracy, KindRatingRange, KindQueueLoad,
		KindFairness, KindChurn, KindNetwork, KindGame, KindRecovery, KindDiagnostic,
	}
}

// ParseKind は文字列から Kind を得る
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown verdict kind %q", s)
}

// 判定の閾値
const (
	LoadSuccessThreshold       = 0.80
	AccuracyMatchRateThreshold = 0.60
	MeanRatingDiffThreshold    = 200.0
	MaxRatingDiffThreshold     = 400.0
	QueueEfficiencyThreshold   = 0.50
	FairnessVarianceThreshold  = 0.20
	ChurnMatchRateThreshold    = 0.40
	NetworkSuccessThreshold    = 0.70
	GameCompletionThreshold    = 0.80
	RecoveryThreshold          = 0.80
	DiagnosticPassThreshold    = 0.90
	ThroughputAckRateThreshold = 0.95
	RoundResumeAdvisoryMinimum = 1.0
)

// Outcome は判定結果
type Outcome string

const (
	Pass Outcome = "PASS"
	Fail Outcome = "FAIL"
)

// Op は比較演算子
type Op string

const (
	AtLeast  Op = ">="
	AtMost   Op = "<="
	LessThan Op = "<"
)

// Check は1つの指標の判定
type Check struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Op        Op      `json:"op"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
	Advisory  bool    `json:"advisory,omitempty"` // 判定には使わない
	Note      string  `json:"note,omitempty"`
}

func (c Check) String() string {
	status := "ok"
	if !c.Passed {
		status = "FAILED"
	}
	s := fmt.Sprintf("%s=%.3f %s %.3f (%s)", c.Metric, c.Value, c.Op, c.Threshold, status)
	if c.Advisory {
		s += " [advisory]"
	}
	if c.Note != "" {
		s += ": " + c.Note
	}
	return s
}

func check(metric string, value float64, op Op, threshold float64) Check {
	c := Check{Metric: metric, Value: value, Op: op, Threshold: threshold}
	switch op {
	case AtLeast:
		c.Passed = value >= threshold
	case AtMost:
		c.Passed = value <= threshold
	case LessThan:
		c.Passed = value < threshold
	}
	return c
}

// Thresholds はシナリオごとに閾値を上書きする。0 の項目は既定値を使う
type Thresholds struct {
	SuccessRate      float64 `json:"success_rate,omitempty" yaml:"success_rate,omitempty"`
	MatchRate        float64 `json:"match_rate,omitempty" yaml:"match_rate,omitempty"`
	MeanRatingDiff   float64 `json:"mean_rating_diff,omitempty" yaml:"mean_rating_diff,omitempty"`
	MaxRatingDiff    float64 `json:"max_rating_diff,omitempty" yaml:"max_rating_diff,omitempty"`
	QueueEfficiency  float64 `json:"queue_efficiency,omitempty" yaml:"queue_efficiency,omitempty"`
	FairnessVariance float64 `json:"fairness_variance,omitempty" yaml:"fairness_variance,omitempty"`
}

func pick(override, def float64) float64 {
	if override > 0 {
		return override
	}
	return def
}

// Verdict はシナリオの判定
type Verdict struct {
	Scenario string  `json:"scenario"`
	Kind     Kind    `json:"kind"`
	Outcome  Outcome `json:"outcome"`
	Checks   []Check `json:"checks"`
	Reason   string  `json:"reason,omitempty"`
}

// Passed は PASS かどうかを返す
func (v Verdict) Passed() bool {
	return v.Outcome == Pass
}

// Failed は判定に使われて不合格になった指標を返す
func (v Verdict) Failed() []Check {
	var out []Check
	for _, c := range v.Checks {
		if !c.Passed && !c.Advisory {
			out = append(out, c)
		}
	}
	return out
}

func (v Verdict) String() string {
	if v.Passed() {
		return fmt.Sprintf("%s: PASS", v.Scenario)
	}
	var parts []string
	for _, c := range v.Failed() {
		parts = append(parts, c.String())
	}
	if v.Reason != "" {
		parts = append([]string{v.Reason}, parts...)
	}
	return fmt.Sprintf("%s: FAIL (%s)", v.Scenario, strings.Join(parts, "; "))
}

// Judge は集計結果を種類ごとの閾値で判定する。判定できないときは FAIL を返す
func Judge(kind Kind, r metrics.Result, t Thresholds) Verdict {
	v := Verdict{Scenario: r.Scenario, Kind: kind}

	if r.Counts.Attempted == 0 {
		v.Outcome = Fail
		v.Reason = "no players attempted"
		return v
	}
	if err := r.CheckInvariant(); err != nil {
		v.Outcome = Fail
		v.Reason = err.Error()
		return v
	}

	switch kind {
	case KindConnectivity, KindLoad:
		v.Checks = append(v.Checks,
			check("success_rate", r.SuccessRate, AtLeast, pick(t.SuccessRate, LoadSuccessThreshold)))

	case KindAccuracy:
		v.Checks = append(v.Checks,
			check("match_rate", r.MatchRate, AtLeast, pick(t.MatchRate, AccuracyMatchRateThreshold)))
		v.Checks = append(v.Checks, ratingDiffChecks(r, t, true)...)

	case KindRatingRange:
		v.Checks = append(v.Checks, ratingDiffChecks(r, t, false)...)

	case KindQueueLoad:
		v.Checks = append(v.Checks,
			check("queue_efficiency", r.QueueEfficiency, AtLeast, pick(t.QueueEfficiency, QueueEfficiencyThreshold)))

	case KindFairness:
		c := check("fairness_variance", r.FairnessVariance, LessThan, pick(t.FairnessVariance, FairnessVarianceThreshold))
		c.Note = fmt.Sprintf("%d rating buckets", len(r.Buckets))
		v.Checks = append(v.Checks, c)

	case KindChurn:
		v.Checks = append(v.Checks,
			check("avg_normal_match_rate", r.AvgNormalMatchRate, AtLeast, pick(t.MatchRate, ChurnMatchRateThreshold)))

	case KindNetwork:
		v.Checks = append(v.Checks,
			check("match_rate", r.MatchRate, AtLeast, pick(t.MatchRate, NetworkSuccessThreshold)))

	case KindGame:
		v.Checks = append(v.Checks,
			check("game_completion_rate", r.GameCompletionRate, AtLeast, pick(t.SuccessRate, GameCompletionThreshold)))

	case KindRecovery:
		v.Checks = append(v.Checks,
			check("recovery_rate", r.RecoveryRate, AtLeast, pick(t.SuccessRate, RecoveryThreshold)))
		resume := 0.0
		if r.Reconnected > 0 {
			resume = float64(r.ResumedRounds) / float64(r.Reconnected)
		}
		c := check("round_resume_rate", resume, AtLeast, RoundResumeAdvisoryMinimum)
		c.Advisory = true
		c.Note = "server resume semantics unconfirmed"
		v.Checks = append(v.Checks, c)

	case KindDiagnostic:
		v.Checks = append(v.Checks,
			check("probe_pass_rate", r.ProbePassRate, AtLeast, pick(t.SuccessRate, DiagnosticPassThreshold)))
		if _, ok := r.Probe("throughput"); ok {
			v.Checks = append(v.Checks,
				check("throughput_ack_rate", r.ThroughputAckRate, AtLeast, ThroughputAckRateThreshold))
		}

	default:
		v.Outcome = Fail
		v.Reason = fmt.Sprintf("unknown verdict kind %q", kind)
		return v
	}

	v.Outcome = Pass
	if len(v.Failed()) > 0 {
		v.Outcome = Fail
	}
	return v
}

// ratingDiffChecks は対戦相手とのレーティング差を判定する
func ratingDiffChecks(r metrics.Result, t Thresholds, requireMean bool) []Check {
	if r.RatingDiff.Count == 0 {
		c := check("matched_pairs", 0, AtLeast, 1)
		c.Note = "no matched pairs to measure"
		return []Check{c}
	}

	var out []Check
	if requireMean {
		out = append(out, check("mean_rating_diff", r.RatingDiff.Mean, AtMost, pick(t.MeanRatingDiff, MeanRatingDiffThreshold)))
	}
	out = append(out, check("max_rating_diff", r.RatingDiff.Max, AtMost, pick(t.MaxRatingDiff, MaxRatingDiffThreshold)))
	return out
}

// All は全ての判定が PASS かどうかを返す
func All(verdicts []Verdict) bool {
	if len(verdicts) == 0 {
		return false
	}
	for _, v := range verdicts {
		if !v.Passed() {
			return false
		}
	}
	return true
}
