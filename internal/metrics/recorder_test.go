package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"battle-loadtest/internal/player"
)

func TestRecorder(t *testing.T) {
	r := New("live")

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				r.Record(player.Outcome{ID: "f", State: player.StateFailed})
				return
			}
			r.Record(matchedOutcome("m", 1200, 1200))
		}(i)
	}
	wg.Wait()

	snap := r.Snapshot()
	if snap.Attempted != 100 || snap.Matched != 75 || snap.ConnectFailed != 25 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if r.MatchRate() != 0.75 {
		t.Errorf("expected match rate 0.75, got %v", r.MatchRate())
	}
	if r.AverageMatchWait() != time.Second {
		t.Errorf("expected average wait 1s, got %v", r.AverageMatchWait())
	}
	if r.P99ConnectLatency() != 10*time.Millisecond {
		t.Errorf("expected p99 10ms, got %v", r.P99ConnectLatency())
	}
}

func TestRecorderEmpty(t *testing.T) {
	r := NewWithConfig("empty", Config{})
	if r.MatchRate() != 0 || r.AverageMatchWait() != 0 || r.P99ConnectLatency() != 0 {
		t.Error("empty recorder should report zeros")
	}
}

func TestExporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp, err := NewExporter(reg)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}

	r := New("burst")
	r.SetExporter(exp)
	r.Record(matchedOutcome("a", 1200, 1300))
	r.Record(matchedOutcome("b", 1300, 1200))
	r.Record(player.Outcome{ID: "c", State: player.StateFailed, ConnectFailures: 4, ConnectionDrops: 3})
	exp.ObserveVerdict("burst", "PASS")

	if got := testutil.ToFloat64(exp.players.WithLabelValues("burst", "matched")); got != 2 {
		t.Errorf("expected 2 matched, got %v", got)
	}
	if got := testutil.ToFloat64(exp.players.WithLabelValues("burst", "connect_failed")); got != 1 {
		t.Errorf("expected 1 connect_failed, got %v", got)
	}
	if got := testutil.ToFloat64(exp.drops.WithLabelValues("burst", "connection")); got != 3 {
		t.Errorf("expected 3 connection drops, got %v", got)
	}
	if got := testutil.ToFloat64(exp.verdicts.WithLabelValues("burst", "PASS")); got != 1 {
		t.Errorf("expected 1 verdict, got %v", got)
	}
	if n := testutil.CollectAndCount(exp.ratingDiff); n != 1 {
		t.Errorf("expected 1 rating diff series, got %d", n)
	}

	if _, err := NewExporter(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestNilExporterIsSafe(t *testing.T) {
	var exp *Exporter
	exp.Observe("x", player.Outcome{})
	exp.ObserveVerdict("x", "FAIL")
}
