package chaos

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"battle-loadtest/internal/events"
	"battle-loadtest/internal/logger"
)

// Simulator はアプリケーション層でネットワーク状態を模擬する。
// アクティブなプロファイルは丸ごと差し替えられるため、
// 読み手は常に一貫したスナップショットを見る。
// nil の Simulator はプロファイルなしとして振る舞う
type Simulator struct {
	active   atomic.Pointer[Profile]
	drops    atomic.Uint64
	switches atomic.Uint64
	eventBus events.Publisher
}

// NewSimulator はプロファイル未設定の Simulator を作成する
func NewSimulator() *Simulator {
	return &Simulator{}
}

// SetEventBus はイベントバスを設定する
func (s *Simulator) SetEventBus(bus events.Publisher) {
	s.eventBus = bus
}

// Apply はアクティブなプロファイルを差し替える
func (s *Simulator) Apply(p Profile) {
	s.active.Store(&p)
	s.switches.Add(1)
	logger.Debug("", "Network profile applied: %s", p)
	if s.eventBus != nil {
		s.eventBus.Publish(events.NewProfileSwitchEvent(p.Name))
	}
}

// Clear はプロファイルを外す
func (s *Simulator) Clear() {
	if s.active.Swap(nil) == nil {
		return
	}
	s.switches.Add(1)
	logger.Debug("", "Network profile cleared")
	if s.eventBus != nil {
		s.eventBus.Publish(events.NewProfileSwitchEvent(""))
	}
}

// Active は現在のプロファイルを返す
func (s *Simulator) Active() (Profile, bool) {
	if s == nil {
		return Profile{}, false
	}
	p := s.active.Load()
	if p == nil {
		return Profile{}, false
	}
	return *p, true
}

// DelayFor は base に遅延と揺らぎを加えた待ち時間を返す
func (s *Simulator) DelayFor(base time.Duration) time.Duration {
	p, ok := s.Active()
	if !ok {
		return base
	}

	d := base + p.Latency
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(2*int64(p.Jitter)+1)) - p.Jitter
	}
	if d < 0 {
		return 0
	}
	return d
}

// ShouldDrop は呼び出しごとに独立して損失を判定する
func (s *Simulator) ShouldDrop() bool {
	p, ok := s.Active()
	if !ok || p.PacketLoss <= 0 {
		return false
	}
	if p.PacketLoss >= 1 || rand.Float64() < p.PacketLoss {
		s.drops.Add(1)
		return true
	}
	return false
}

// Wait は DelayFor(base) だけ待つ。ctx が先に終われば ctx のエラーを返す
func (s *Simulator) Wait(ctx context.Context, base time.Duration) error {
	d := s.DelayFor(base)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Drops は模擬的に落としたメッセージ数を返す
func (s *Simulator) Drops() uint64 {
	if s == nil {
		return 0
	}
	return s.drops.Load()
}

// Switches はプロファイルの差し替え回数を返す
func (s *Simulator) Switches() uint64 {
	if s == nil {
		return 0
	}
	return s.switches.Load()
}
