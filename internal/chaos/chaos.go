package chaos

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"battle-loadtest/internal/logger"
)

// Switch は開始から After 経過後に Profile へ切り替える予定
type Switch struct {
	After   time.Duration `json:"after" yaml:"after"`
	Profile string        `json:"profile" yaml:"profile"`
}

// Config は Monkey の設定
type Config struct {
	Schedule      []Switch      // 時刻指定の切り替え
	Rotation      []string      // Interval ごとに順番に適用するプロファイル
	Interval      time.Duration // ローテーション間隔（0で無効）
	RestoreOnStop bool          // 停止時に開始時点のプロファイルへ戻す
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Second,
		RestoreOnStop: true,
	}
}

// Stats は切り替えの統計情報
type Stats struct {
	TotalSwitches uint64            `json:"total_switches"`
	ByProfile     map[string]uint64 `json:"switches_by_profile"`
}

// Monkey はシナリオ実行中にネットワーク状態を切り替える
type Monkey struct {
	config Config
	sim    *Simulator

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu          sync.RWMutex
	switchCount uint64
	byProfile   map[string]uint64
	lastSwitch  time.Time
	rotationIdx int
	initial     *Profile
}

// New は新しい Monkey を作成する
func New(sim *Simulator, config Config) *Monkey {
	return &Monkey{
		config:    config,
		sim:       sim,
		byProfile: make(map[string]uint64),
	}
}

// Start は切り替えを開始する
func (m *Monkey) Start(ctx context.Context) {
	if m.running.Swap(true) {
		return
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.mu.Lock()
	if p, ok := m.sim.Active(); ok {
		m.initial = &p
	} else {
		m.initial = nil
	}
	m.mu.Unlock()

	if len(m.config.Schedule) > 0 {
		m.wg.Add(1)
		go m.scheduleLoop()
	}

	if m.config.Interval > 0 && len(m.config.Rotation) > 0 {
		m.wg.Add(1)
		go m.rotationLoop()
	}

	logger.Info("", "ChaosMonkey started (schedule: %d, rotation: %d every %v)",
		len(m.config.Schedule), len(m.config.Rotation), m.config.Interval)
}

// Stop は切り替えを停止する
func (m *Monkey) Stop() {
	if !m.running.Swap(false) {
		return
	}

	m.cancel()
	m.wg.Wait()

	if m.config.RestoreOnStop {
		m.restore()
	}

	logger.Info("", "ChaosMonkey stopped (total switches: %d)", m.SwitchCount())
}

// scheduleLoop は予定された切り替えを順に実行する
func (m *Monkey) scheduleLoop() {
	defer m.wg.Done()

	start := time.Now()
	for _, sw := range m.config.Schedule {
		wait := time.Until(start.Add(sw.After))
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-m.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		m.switchTo(sw.Profile)
	}
}

// rotationLoop は Interval ごとに次のプロファイルを適用する
func (m *Monkey) rotationLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			name := m.config.Rotation[m.rotationIdx%len(m.config.Rotation)]
			m.rotationIdx++
			m.mu.Unlock()
			m.switchTo(name)
		}
	}
}

// switchTo はプロファイル名を解決して適用する
func (m *Monkey) switchTo(name string) {
	p, ok := Preset(name)
	if !ok {
		logger.Warn("", "ChaosMonkey: unknown network profile %q", name)
		return
	}

	m.sim.Apply(p)

	m.mu.Lock()
	m.switchCount++
	m.byProfile[name]++
	m.lastSwitch = time.Now()
	m.mu.Unlock()
}

// restore は開始時点のプロファイルへ戻す
func (m *Monkey) restore() {
	m.mu.RLock()
	initial := m.initial
	m.mu.RUnlock()

	if initial == nil {
		m.sim.Clear()
		return
	}
	m.sim.Apply(*initial)
}

// IsRunning は実行中かどうかを返す
func (m *Monkey) IsRunning() bool {
	return m.running.Load()
}

// SwitchCount は切り替え回数を返す
func (m *Monkey) SwitchCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.switchCount
}

// Stats は切り替え統計を返す
func (m *Monkey) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byProfile := make(map[string]uint64, len(m.byProfile))
	for name, count := range m.byProfile {
		byProfile[name] = count
	}

	return Stats{
		TotalSwitches: m.switchCount,
		ByProfile:     byProfile,
	}
}

// LastSwitch は最後に切り替えた時刻を返す
func (m *Monkey) LastSwitch() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSwitch
}
