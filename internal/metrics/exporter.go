package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"battle-loadtest/internal/player"
)

const namespace = "battle_loadtest"

// Exporter は結果を Prometheus のメトリクスとして公開する
type Exporter struct {
	players        *prometheus.CounterVec
	connectLatency *prometheus.HistogramVec
	matchWait      *prometheus.HistogramVec
	ratingDiff     *prometheus.HistogramVec
	drops          *prometheus.CounterVec
	verdicts       *prometheus.CounterVec
}

// NewExporter はエクスポータを作成して reg に登録する
func NewExporter(reg prometheus.Registerer) (*Exporter, error) {
	e := &Exporter{
		players: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "players_total",
			Help:      "Virtual players by terminal category.",
		}, []string{"scenario", "category"}),
		connectLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_latency_seconds",
			Help:      "Time to establish the player connection.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"scenario"}),
		matchWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_wait_seconds",
			Help:      "Time from entering the queue to MATCH_FOUND.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"scenario"}),
		ratingDiff: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rating_difference",
			Help:      "Absolute rating difference between matched opponents.",
			Buckets:   prometheus.LinearBuckets(0, 50, 12),
		}, []string{"scenario"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_drops_total",
			Help:      "Messages and connection attempts lost to the network model.",
		}, []string{"scenario", "kind"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Scenario verdicts.",
		}, []string{"scenario", "verdict"}),
	}

	for _, c := range []prometheus.Collector{
		e.players, e.connectLatency, e.matchWait, e.ratingDiff, e.drops, e.verdicts,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Observe は1人分の結果を記録する
func (e *Exporter) Observe(scenario string, out player.Outcome) {
	if e == nil {
		return
	}

	e.players.WithLabelValues(scenario, string(out.Category())).Inc()
	if out.Connected {
		e.connectLatency.WithLabelValues(scenario).Observe(out.ConnectLatency.Seconds())
	}
	if out.Matched {
		e.matchWait.WithLabelValues(scenario).Observe(out.MatchWait.Seconds())
		if out.Opponent != nil {
			e.ratingDiff.WithLabelValues(scenario).Observe(float64(out.RatingDiff))
		}
	}
	if out.MessageDrops > 0 {
		e.drops.WithLabelValues(scenario, "message").Add(float64(out.MessageDrops))
	}
	if out.ConnectionDrops > 0 {
		e.drops.WithLabelValues(scenario, "connection").Add(float64(out.ConnectionDrops))
	}
}

// ObserveVerdict は判定結果を記録する
func (e *Exporter) ObserveVerdict(scenario, verdict string) {
	if e == nil {
		return
	}
	e.verdicts.WithLabelValues(scenario, verdict).Inc()
}
