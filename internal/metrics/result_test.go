package metrics

import (
	"testing"
	"time"

	"battle-loadtest/internal/player"
	"battle-loadtest/internal/protocol"
)

func matchedOutcome(id string, rating, opponent int) player.Outcome {
	diff := rating - opponent
	if diff < 0 {
		diff = -diff
	}
	return player.Outcome{
		ID:             id,
		Rating:         rating,
		State:          player.StateCompleted,
		Connected:      true,
		Matched:        true,
		ConnectLatency: 10 * time.Millisecond,
		MatchWait:      time.Second,
		Opponent:       &protocol.Opponent{ID: "opp", Rating: opponent},
		RatingDiff:     diff,
	}
}

func TestReduceCounts(t *testing.T) {
	outcomes := []player.Outcome{
		matchedOutcome("a", 1200, 1300),
		matchedOutcome("b", 1300, 1200),
		{ID: "c", Rating: 1200, State: player.StateCompleted, Connected: true, TimedOut: true},
		{ID: "d", Rating: 1200, State: player.StateFailed, Errors: []string{"connection refused"}},
		{ID: "e", Rating: 1200, State: player.StateFailed, Connected: true},
	}

	r := Reduce("test", outcomes)
	c := r.Counts
	if c.Attempted != 5 || c.Connected != 4 || c.ConnectFailed != 1 {
		t.Errorf("unexpected connection counts: %+v", c)
	}
	if c.Matched != 2 || c.TimedOut != 1 || c.Pending != 1 {
		t.Errorf("unexpected terminal counts: %+v", c)
	}
	if err := r.CheckInvariant(); err != nil {
		t.Errorf("invariant violated: %v", err)
	}

	if !approx(r.SuccessRate, 3.0/5.0) {
		t.Errorf("expected success rate 0.6, got %v", r.SuccessRate)
	}
	if !approx(r.MatchRate, 2.0/5.0) {
		t.Errorf("expected match rate 0.4, got %v", r.MatchRate)
	}
	if !approx(r.QueueEfficiency, 2.0/4.0) {
		t.Errorf("expected queue efficiency 0.5, got %v", r.QueueEfficiency)
	}
	if r.RatingDiff.Mean != 100 || r.RatingDiff.Max != 100 {
		t.Errorf("unexpected rating diff stats: %+v", r.RatingDiff)
	}
	if r.MatchWaitMs.Mean != 1000 {
		t.Errorf("expected mean wait 1000ms, got %v", r.MatchWaitMs.Mean)
	}
	if len(r.Errors) != 1 || r.Errors[0] != "d: connection refused" {
		t.Errorf("unexpected error entries: %v", r.Errors)
	}
}

func TestSuccessRateBoundary(t *testing.T) {
	build := func(successes int) []player.Outcome {
		outcomes := make([]player.Outcome, 100)
		for i := range outcomes {
			if i < successes {
				outcomes[i] = matchedOutcome("p", 1200, 1200)
			} else {
				outcomes[i] = player.Outcome{ID: "p", State: player.StateFailed}
			}
		}
		return outcomes
	}

	if r := Reduce("load", build(80)); !approx(r.SuccessRate, 0.80) {
		t.Errorf("expected 0.80, got %v", r.SuccessRate)
	}
	if r := Reduce("load", build(79)); !approx(r.SuccessRate, 0.79) {
		t.Errorf("expected 0.79, got %v", r.SuccessRate)
	}
}

func TestReduceBucketsAndFairness(t *testing.T) {
	var outcomes []player.Outcome
	add := func(rating, players, matched int) {
		for i := range players {
			if i < matched {
				outcomes = append(outcomes, matchedOutcome("p", rating, rating))
			} else {
				outcomes = append(outcomes, player.Outcome{ID: "p", Rating: rating, State: player.StateCompleted, Connected: true, TimedOut: true})
			}
		}
	}
	add(900, 100, 50)
	add(1200, 100, 55)
	add(1600, 100, 52)

	r := Reduce("fairness", outcomes)
	if len(r.Buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(r.Buckets))
	}
	want := map[string]float64{"low": 0.50, "medium": 0.55, "high": 0.52}
	for _, b := range r.Buckets {
		if !approx(b.MatchRate, want[string(b.Bucket)]) {
			t.Errorf("bucket %s: expected %v, got %v", b.Bucket, want[string(b.Bucket)], b.MatchRate)
		}
	}
	if !approx(r.FairnessVariance, FairnessVariance([]float64{0.50, 0.55, 0.52})) {
		t.Errorf("unexpected fairness variance %v", r.FairnessVariance)
	}
}

func TestAvgNormalMatchRateExcludesQuickExit(t *testing.T) {
	var outcomes []player.Outcome
	// バースト0: 通常2人中2人、早期離脱2人は未マッチ
	for range 2 {
		o := matchedOutcome("n", 1200, 1200)
		outcomes = append(outcomes, o)
		outcomes = append(outcomes, player.Outcome{ID: "q", Role: player.RoleQuickExit, State: player.StateCompleted, Connected: true, TimedOut: true})
	}
	// バースト1: 通常4人中1人
	for i := range 4 {
		o := player.Outcome{ID: "n", Burst: 1, State: player.StateCompleted, Connected: true, TimedOut: true}
		if i == 0 {
			o = matchedOutcome("n", 1200, 1200)
			o.Burst = 1
		}
		outcomes = append(outcomes, o)
	}
	quick := matchedOutcome("q", 1200, 1200)
	quick.Burst = 1
	quick.Role = player.RoleQuickExit
	outcomes = append(outcomes, quick)

	r := Reduce("churn", outcomes)
	if len(r.Bursts) != 2 {
		t.Fatalf("expected 2 bursts, got %d", len(r.Bursts))
	}
	if r.Bursts[0].Normal != 2 || r.Bursts[0].QuickExit != 2 {
		t.Errorf("unexpected burst 0 roles: %+v", r.Bursts[0])
	}
	if r.Bursts[1].NormalMatchRate != 0.25 {
		t.Errorf("quick-exit players must not enter the normal denominator, got %v", r.Bursts[1].NormalMatchRate)
	}
	if !approx(r.AvgNormalMatchRate, (1.0+0.25)/2) {
		t.Errorf("expected avg normal match rate 0.625, got %v", r.AvgNormalMatchRate)
	}
}

func TestReduceProbesAndGames(t *testing.T) {
	outcomes := []player.Outcome{
		{ID: "t", Kind: player.KindProbe, Probe: player.ProbeThroughput, Connected: true, State: player.StateCompleted, ProbePassed: true, ProbeSent: 100, ProbeAcked: 97},
		{ID: "p1", Kind: player.KindProbe, Probe: player.ProbePing, Connected: true, State: player.StateCompleted, ProbePassed: true},
		{ID: "p2", Kind: player.KindProbe, Probe: player.ProbePing, Connected: true, State: player.StateCompleted, TimedOut: true},
	}
	g1 := matchedOutcome("g1", 1200, 1250)
	g1.Kind = player.KindGame
	g1.GameCompleted = true
	g1.Reconnected = true
	g1.ResumedRound = true
	g2 := matchedOutcome("g2", 1250, 1200)
	g2.Kind = player.KindGame
	outcomes = append(outcomes, g1, g2)

	r := Reduce("mixed", outcomes)
	if err := r.CheckInvariant(); err != nil {
		t.Errorf("invariant violated: %v", err)
	}
	if !approx(r.ThroughputAckRate, 0.97) {
		t.Errorf("expected ack rate 0.97, got %v", r.ThroughputAckRate)
	}
	ping, ok := r.Probe(player.ProbePing)
	if !ok || ping.Attempted != 2 || ping.PassRate != 0.5 {
		t.Errorf("unexpected ping summary: %+v", ping)
	}
	if !approx(r.ProbePassRate, 2.0/3.0) {
		t.Errorf("expected probe pass rate 2/3, got %v", r.ProbePassRate)
	}
	if r.GamesCompleted != 1 || r.Reconnected != 1 || r.ResumedRounds != 1 {
		t.Errorf("unexpected game counters: %+v", r)
	}
	if r.RecoveryRate != 0.5 {
		t.Errorf("expected recovery rate 0.5, got %v", r.RecoveryRate)
	}
	if len(r.Buckets) != 1 || r.Buckets[0].Players != 2 {
		t.Errorf("probe players must not enter rating buckets: %+v", r.Buckets)
	}
}

func TestCheckInvariantDetectsMismatch(t *testing.T) {
	r := Result{Counts: Counts{Attempted: 3, Connected: 2, ConnectFailed: 0}}
	if r.CheckInvariant() == nil {
		t.Error("expected invariant violation")
	}
	r = Result{Counts: Counts{Attempted: 2, Connected: 2, Matched: 1}}
	if r.CheckInvariant() == nil {
		t.Error("expected invariant violation")
	}
}
