package metrics

import (
	"fmt"
	"sort"
	"time"

	"battle-loadtest/internal/player"
	"battle-loadtest/internal/population"
)

// maxErrorEntries は Result に残すエラーの最大数
const maxErrorEntries = 20

// Counts は終端バケットごとの人数
type Counts struct {
	Attempted     int `json:"attempted"`
	Connected     int `json:"connected"`
	ConnectFailed int `json:"connect_failed"`
	Matched       int `json:"matched"`
	TimedOut      int `json:"timed_out"`
	Pending       int `json:"pending"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	Cancelled     int `json:"cancelled"`
	Errored       int `json:"errored"`
}

// BucketSummary はレーティング帯ごとのマッチ率
type BucketSummary struct {
	Bucket    population.Bucket `json:"bucket"`
	Players   int               `json:"players"`
	Matched   int               `json:"matched"`
	MatchRate float64           `json:"match_rate"`
}

// BurstSummary はバーストごとの集計
type BurstSummary struct {
	Index           int     `json:"index"`
	Attempted       int     `json:"attempted"`
	Matched         int     `json:"matched"`
	Succeeded       int     `json:"succeeded"`
	SuccessRate     float64 `json:"success_rate"`
	MatchRate       float64 `json:"match_rate"`
	Normal          int     `json:"normal"`
	NormalMatched   int     `json:"normal_matched"`
	NormalMatchRate float64 `json:"normal_match_rate"`
	QuickExit       int     `json:"quick_exit"`
}

// ProbeSummary は診断の種類ごとの集計
type ProbeSummary struct {
	Kind      player.ProbeKind `json:"kind"`
	Attempted int              `json:"attempted"`
	Passed    int              `json:"passed"`
	PassRate  float64          `json:"pass_rate"`
	Sent      int              `json:"sent"`
	Acked     int              `json:"acked"`
}

// Result は1シナリオ分の集計結果。作成後は変更しない
type Result struct {
	Scenario string        `json:"scenario"`
	Counts   Counts        `json:"counts"`
	Elapsed  time.Duration `json:"elapsed"`

	SuccessRate     float64 `json:"success_rate"`
	MatchRate       float64 `json:"match_rate"`
	QueueEfficiency float64 `json:"queue_efficiency"`

	ConnectLatencyMs Stats `json:"connect_latency_ms"`
	MatchWaitMs      Stats `json:"match_wait_ms"`
	DurationMs       Stats `json:"duration_ms"`
	RatingDiff       Stats `json:"rating_diff"`

	Buckets          []BucketSummary `json:"buckets,omitempty"`
	FairnessVariance float64         `json:"fairness_variance"`

	Bursts             []BurstSummary `json:"bursts,omitempty"`
	AvgNormalMatchRate float64        `json:"avg_normal_match_rate"`

	GamesCompleted     int     `json:"games_completed"`
	GameCompletionRate float64 `json:"game_completion_rate"`
	Reconnected        int     `json:"reconnected"`
	RecoveryRate       float64 `json:"recovery_rate"`
	ResumedRounds      int     `json:"resumed_rounds"`

	Probes            []ProbeSummary `json:"probes,omitempty"`
	ProbePassRate     float64        `json:"probe_pass_rate"`
	ThroughputAckRate float64        `json:"throughput_ack_rate"`

	QueueUpdates    int      `json:"queue_updates"`
	MessageDrops    int      `json:"message_drops"`
	MessageTimeouts int      `json:"message_timeouts"`
	ConnectFailures int      `json:"connect_failures"`
	ConnectionDrops int      `json:"connection_drops"`
	DecodeErrors    int      `json:"decode_errors"`
	Errors          []string `json:"errors,omitempty"`
}

// Reduce は全プレイヤーの結果を集計する
func Reduce(scenario string, outcomes []player.Outcome) Result {
	r := Result{Scenario: scenario}

	var connect, wait, duration, diff []float64
	buckets := map[population.Bucket]*BucketSummary{}
	bursts := map[int]*BurstSummary{}
	probes := map[player.ProbeKind]*ProbeSummary{}
	successes, gamePlayers := 0, 0

	for _, o := range outcomes {
		c := &r.Counts
		c.Attempted++
		switch o.Category() {
		case player.CategoryConnectFailed:
			c.ConnectFailed++
		case player.CategoryMatched:
			c.Matched++
		case player.CategoryTimedOut:
			c.TimedOut++
		case player.CategoryPending:
			c.Pending++
		}
		if o.Connected {
			c.Connected++
			connect = append(connect, millis(o.ConnectLatency))
		}
		if o.Completed() {
			c.Completed++
		}
		if o.Connected && o.Completed() {
			successes++
		}
		if o.State == player.StateFailed {
			c.Failed++
		}
		if o.Cancelled {
			c.Cancelled++
		}
		if len(o.Errors) > 0 {
			c.Errored++
			if len(r.Errors) < maxErrorEntries {
				r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", o.ID, o.Errors[len(o.Errors)-1]))
			}
		}

		if o.Matched {
			wait = append(wait, millis(o.MatchWait))
			if o.Opponent != nil {
				diff = append(diff, float64(o.RatingDiff))
			}
		}
		duration = append(duration, millis(o.Duration))

		if o.Probe == "" {
			b := buckets[population.BucketOf(o.Rating)]
			if b == nil {
				b = &BucketSummary{Bucket: population.BucketOf(o.Rating)}
				buckets[b.Bucket] = b
			}
			b.Players++
			if o.Matched {
				b.Matched++
			}
		}

		bs := bursts[o.Burst]
		if bs == nil {
			bs = &BurstSummary{Index: o.Burst}
			bursts[o.Burst] = bs
		}
		bs.Attempted++
		if o.Connected && o.Completed() {
			bs.Succeeded++
		}
		if o.Category() == player.CategoryMatched {
			bs.Matched++
		}
		if o.Role == player.RoleQuickExit {
			bs.QuickExit++
		} else {
			bs.Normal++
			if o.Matched {
				bs.NormalMatched++
			}
		}

		if o.Kind == player.KindGame && o.Matched {
			gamePlayers++
		}
		if o.GameCompleted {
			r.GamesCompleted++
		}
		if o.Reconnected {
			r.Reconnected++
		}
		if o.ResumedRound {
			r.ResumedRounds++
		}

		if o.Probe != "" {
			ps := probes[o.Probe]
			if ps == nil {
				ps = &ProbeSummary{Kind: o.Probe}
				probes[o.Probe] = ps
			}
			ps.Attempted++
			ps.Sent += o.ProbeSent
			ps.Acked += o.ProbeAcked
			if o.ProbePassed {
				ps.Passed++
			}
		}

		r.QueueUpdates += o.QueueUpdates
		r.MessageDrops += o.MessageDrops
		r.MessageTimeouts += o.MessageTimeouts
		r.ConnectFailures += o.ConnectFailures
		r.ConnectionDrops += o.ConnectionDrops
		r.DecodeErrors += o.DecodeErrors
	}

	r.SuccessRate = rate(successes, r.Counts.Attempted)
	r.MatchRate = rate(r.Counts.Matched, r.Counts.Attempted)
	r.QueueEfficiency = rate(r.Counts.Matched, r.Counts.Connected)
	r.GameCompletionRate = rate(r.GamesCompleted, r.Counts.Attempted)
	r.RecoveryRate = rate(r.Reconnected, gamePlayers)

	r.ConnectLatencyMs = Summarize(connect)
	r.MatchWaitMs = Summarize(wait)
	r.DurationMs = Summarize(duration)
	r.RatingDiff = Summarize(diff)

	var bucketRates []float64
	for _, name := range population.Buckets() {
		b, ok := buckets[name]
		if !ok {
			continue
		}
		b.MatchRate = rate(b.Matched, b.Players)
		r.Buckets = append(r.Buckets, *b)
		bucketRates = append(bucketRates, b.MatchRate)
	}
	r.FairnessVariance = FairnessVariance(bucketRates)

	r.Bursts, r.AvgNormalMatchRate = summarizeBursts(bursts)
	r.Probes, r.ProbePassRate, r.ThroughputAckRate = summarizeProbes(probes)
	return r
}

// summarizeBursts はバーストを順に並べ、通常プレイヤーのマッチ率の平均を返す。
// 早期離脱プレイヤーは分母に含めない
func summarizeBursts(bursts map[int]*BurstSummary) ([]BurstSummary, float64) {
	out := make([]BurstSummary, 0, len(bursts))
	sum, n := 0.0, 0
	for _, b := range bursts {
		b.SuccessRate = rate(b.Succeeded, b.Attempted)
		b.MatchRate = rate(b.Matched, b.Attempted)
		if b.Normal > 0 {
			b.NormalMatchRate = rate(b.NormalMatched, b.Normal)
			sum += b.NormalMatchRate
			n++
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })

	if n == 0 {
		return out, 0
	}
	return out, sum / float64(n)
}

func summarizeProbes(probes map[player.ProbeKind]*ProbeSummary) ([]ProbeSummary, float64, float64) {
	var out []ProbeSummary
	attempted, passed := 0, 0
	ackRate := 0.0
	for _, kind := range player.AllProbes() {
		ps, ok := probes[kind]
		if !ok {
			continue
		}
		ps.PassRate = rate(ps.Passed, ps.Attempted)
		attempted += ps.Attempted
		passed += ps.Passed
		if kind == player.ProbeThroughput {
			ackRate = rate(ps.Acked, ps.Sent)
		}
		out = append(out, *ps)
	}
	return out, rate(passed, attempted), ackRate
}

// Probe は指定した診断の集計を返す
func (r Result) Probe(kind player.ProbeKind) (ProbeSummary, bool) {
	for _, p := range r.Probes {
		if p.Kind == kind {
			return p, true
		}
	}
	return ProbeSummary{}, false
}

// CheckInvariant は全員がちょうど1つの終端バケットに入っていることを確かめる
func (r Result) CheckInvariant() error {
	c := r.Counts
	if c.Attempted != c.Connected+c.ConnectFailed {
		return fmt.Errorf("attempted %d != connected %d + connect_failed %d",
			c.Attempted, c.Connected, c.ConnectFailed)
	}
	if c.Connected != c.Matched+c.TimedOut+c.Pending {
		return fmt.Errorf("connected %d != matched %d + timed_out %d + pending %d",
			c.Connected, c.Matched, c.TimedOut, c.Pending)
	}
	return nil
}
