package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"battle-loadtest/internal/player"
)

// Config は Recorder の設定
type Config struct {
	MaxLatencySamples int
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{MaxLatencySamples: 1000}
}

// Recorder は実行中のシナリオの結果を逐次数える
type Recorder struct {
	scenario string
	exporter *Exporter

	attempted     atomic.Uint64
	connected     atomic.Uint64
	matched       atomic.Uint64
	timedOut      atomic.Uint64
	connectFailed atomic.Uint64
	completed     atomic.Uint64
	totalWaitNs   atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	connectLatencies  []time.Duration
	maxLatencySamples int
}

// New は新しい Recorder を作成する
func New(scenario string) *Recorder {
	return NewWithConfig(scenario, DefaultConfig())
}

// NewWithConfig は設定を指定して Recorder を作成する
func NewWithConfig(scenario string, config Config) *Recorder {
	if config.MaxLatencySamples <= 0 {
		config.MaxLatencySamples = 1000
	}
	return &Recorder{
		scenario:          scenario,
		startTime:         time.Now(),
		connectLatencies:  make([]time.Duration, 0, config.MaxLatencySamples),
		maxLatencySamples: config.MaxLatencySamples,
	}
}

// SetExporter は Prometheus へのエクスポータを設定する
func (r *Recorder) SetExporter(e *Exporter) {
	r.exporter = e
}

// Record は確定した結果を1件記録する
func (r *Recorder) Record(out player.Outcome) {
	r.attempted.Add(1)
	switch out.Category() {
	case player.CategoryConnectFailed:
		r.connectFailed.Add(1)
	case player.CategoryMatched:
		r.matched.Add(1)
	case player.CategoryTimedOut:
		r.timedOut.Add(1)
	}
	if out.Completed() {
		r.completed.Add(1)
	}
	if out.Matched {
		r.totalWaitNs.Add(uint64(out.MatchWait.Nanoseconds()))
	}

	if out.Connected {
		r.connected.Add(1)
		r.mu.Lock()
		if len(r.connectLatencies) < r.maxLatencySamples {
			r.connectLatencies = append(r.connectLatencies, out.ConnectLatency)
		}
		r.mu.Unlock()
	}

	r.exporter.Observe(r.scenario, out)
}

// Attempted は記録した人数を返す
func (r *Recorder) Attempted() uint64 {
	return r.attempted.Load()
}

// Matched はマッチした人数を返す
func (r *Recorder) Matched() uint64 {
	return r.matched.Load()
}

// MatchRate は現在のマッチ率を返す（0.0〜1.0）
func (r *Recorder) MatchRate() float64 {
	total := r.attempted.Load()
	if total == 0 {
		return 0
	}
	return float64(r.matched.Load()) / float64(total)
}

// AverageMatchWait は平均マッチ待ち時間を返す
func (r *Recorder) AverageMatchWait() time.Duration {
	matched := r.matched.Load()
	if matched == 0 {
		return 0
	}
	return time.Duration(r.totalWaitNs.Load() / matched)
}

// P99ConnectLatency は接続レイテンシの P99 を返す（サンプルベース）
func (r *Recorder) P99ConnectLatency() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.connectLatencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(r.connectLatencies))
	copy(sorted, r.connectLatencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Throughput は開始からの1秒あたりの確定数を返す
func (r *Recorder) Throughput() float64 {
	elapsed := time.Since(r.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(r.attempted.Load()) / elapsed
}

// Snapshot は Recorder のスナップショット
type Snapshot struct {
	Scenario          string        `json:"scenario"`
	Attempted         uint64        `json:"attempted"`
	Connected         uint64        `json:"connected"`
	ConnectFailed     uint64        `json:"connect_failed"`
	Matched           uint64        `json:"matched"`
	TimedOut          uint64        `json:"timed_out"`
	Completed         uint64        `json:"completed"`
	MatchRate         float64       `json:"match_rate"`
	AverageMatchWait  time.Duration `json:"average_match_wait"`
	P99ConnectLatency time.Duration `json:"p99_connect_latency"`
	Throughput        float64       `json:"throughput"`
	Elapsed           time.Duration `json:"elapsed"`
}

// Snapshot は現在のスナップショットを返す
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Scenario:          r.scenario,
		Attempted:         r.attempted.Load(),
		Connected:         r.connected.Load(),
		ConnectFailed:     r.connectFailed.Load(),
		Matched:           r.matched.Load(),
		TimedOut:          r.timedOut.Load(),
		Completed:         r.completed.Load(),
		MatchRate:         r.MatchRate(),
		AverageMatchWait:  r.AverageMatchWait(),
		P99ConnectLatency: r.P99ConnectLatency(),
		Throughput:        r.Throughput(),
		Elapsed:           time.Since(r.startTime),
	}
}
