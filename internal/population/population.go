package population

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"battle-loadtest/internal/logger"
	"battle-loadtest/internal/player"
)

// Slot は起動した1プレイヤー分の枠。結果は一度だけ確定する
type Slot struct {
	player   *player.Player
	burst    int
	launched time.Time
	outcome  atomic.Pointer[player.Outcome]
}

// Player はプレイヤーを返す
func (s *Slot) Player() *player.Player {
	return s.player
}

// ID はプレイヤーIDを返す
func (s *Slot) ID() string {
	return s.player.ID()
}

// Burst は所属するバーストの番号を返す
func (s *Slot) Burst() int {
	return s.burst
}

// Resolve は結果を確定する。既に確定していれば false を返す
func (s *Slot) Resolve(out player.Outcome) bool {
	out.Burst = s.burst
	return s.outcome.CompareAndSwap(nil, &out)
}

// Outcome は確定した結果を返す
func (s *Slot) Outcome() (player.Outcome, bool) {
	out := s.outcome.Load()
	if out == nil {
		return player.Outcome{}, false
	}
	return *out, true
}

// Resolved は結果が確定しているかを返す
func (s *Slot) Resolved() bool {
	return s.outcome.Load() != nil
}

// Registry はシナリオ内のプレイヤー管理の基本操作を定義するインターフェース
type Registry interface {
	Add(p *player.Player, burst int) (*Slot, error)
	Get(id string) (*Slot, bool)
	Slots() []*Slot
	Size() int
	Seal(reason string) []*Slot
	Outcomes() []player.Outcome
}

var _ Registry = (*Population)(nil)

// Population はシナリオで起動した全プレイヤーを管理する
type Population struct {
	mu    sync.RWMutex
	slots map[string]*Slot
	order []*Slot
}

// New は新しい Population を作成する
func New() *Population {
	return &Population{
		slots: make(map[string]*Slot),
	}
}

// Add はプレイヤーを登録する
func (p *Population) Add(pl *player.Player, burst int) (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.slots[pl.ID()]; exists {
		return nil, fmt.Errorf("player %s already exists in population", pl.ID())
	}

	s := &Slot{player: pl, burst: burst, launched: time.Now()}
	p.slots[pl.ID()] = s
	p.order = append(p.order, s)
	return s, nil
}

// Get はプレイヤーIDで枠を取得する
func (p *Population) Get(id string) (*Slot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, exists := p.slots[id]
	return s, exists
}

// Slots は起動順に全ての枠を返す
func (p *Population) Slots() []*Slot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Slot, len(p.order))
	copy(out, p.order)
	return out
}

// Size は登録数を返す
func (p *Population) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// ResolvedCount は結果が確定した数を返す
func (p *Population) ResolvedCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0
	for _, s := range p.order {
		if s.Resolved() {
			count++
		}
	}
	return count
}

// Seal は未確定の枠を全て打ち切りとして確定し、確定させた枠を返す
func (p *Population) Seal(reason string) []*Slot {
	var sealed []*Slot
	for _, s := range p.Slots() {
		if s.Resolved() {
			continue
		}
		if s.Resolve(s.player.Abandon(reason)) {
			sealed = append(sealed, s)
		}
	}

	if len(sealed) > 0 {
		logger.Warn("", "Sealed %d unfinished players as timed out (%s)", len(sealed), reason)
	}
	return sealed
}

// Outcomes は起動順に確定済みの結果を返す
func (p *Population) Outcomes() []player.Outcome {
	slots := p.Slots()
	out := make([]player.Outcome, 0, len(slots))
	for _, s := range slots {
		if o, ok := s.Outcome(); ok {
			out = append(out, o)
		}
	}
	return out
}

// CreatePlayers は count 人のプレイヤーを作成して登録する。
// ID は "<prefix>-<通し番号>" になる
func (p *Population) CreatePlayers(count int, prefix string, ratings []int, config player.Config, burst int) ([]*Slot, error) {
	if len(ratings) < count {
		return nil, fmt.Errorf("need %d ratings, got %d", count, len(ratings))
	}

	start := p.Size()
	slots := make([]*Slot, 0, count)
	for i := range count {
		id := fmt.Sprintf("%s-%d", prefix, start+i+1)
		pl := player.New(player.Identity{ID: id, Rating: ratings[i]}, config)
		s, err := p.Add(pl, burst)
		if err != nil {
			return slots, err
		}
		slots = append(slots, s)
	}

	logger.Debug("", "Created %d players with prefix '%s'", count, prefix)
	return slots, nil
}
