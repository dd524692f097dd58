package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"battle-loadtest/internal/logger"
)

// Job はワーカーが実行するジョブを表す。ctx はプール停止時にキャンセルされる
type Job func(ctx context.Context)

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	Limit int // 同時実行数の上限（0で無制限）
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Limit: 0, // プレイヤーは全員同時に動かす
	}
}

// Stats はプールの統計情報
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Panics    int64 `json:"panics"`
}

// Pool は監視付きのゴルーチンのグループを管理する
type Pool struct {
	limit    int
	group    *errgroup.Group
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	stopping atomic.Bool
	mu       sync.Mutex

	submitted atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
}

// NewPool は新しいワーカープールを作成する
// limit が 0 の場合は同時実行数を制限しない
func NewPool(limit int) *Pool {
	config := DefaultPoolConfig()
	config.Limit = limit
	return NewPoolWithConfig(config)
}

// NewPoolWithConfig は設定を指定してワーカープールを作成する
func NewPoolWithConfig(config PoolConfig) *Pool {
	limit := config.Limit
	if limit < 0 {
		limit = 0
	}
	return &Pool{limit: limit}
}

// Start はワーカープールを起動する
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.group = new(errgroup.Group)
	if p.limit > 0 {
		p.group.SetLimit(p.limit)
	}
	p.started = true

	logger.Debug("", "WorkerPool started (limit %d)", p.limit)
}

func (p *Pool) running() (*errgroup.Group, context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopping.Load() {
		return nil, nil, false
	}
	return p.group, p.ctx, true
}

// wrap はジョブの panic を回収して完了数を数える
func (p *Pool) wrap(ctx context.Context, job Job) func() error {
	return func() (err error) {
		defer p.completed.Add(1)
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				logger.Error("", "Job panicked: %v", r)
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		job(ctx)
		return nil
	}
}

// Submit はジョブをプールに送信する。上限に達している場合は空きが出るまでブロックする
func (p *Pool) Submit(job Job) bool {
	group, ctx, ok := p.running()
	if !ok {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	default:
	}

	p.submitted.Add(1)
	group.Go(p.wrap(ctx, job))
	return true
}

// TrySubmit はジョブを送信する。上限に達している場合は false を返す
func (p *Pool) TrySubmit(job Job) bool {
	group, ctx, ok := p.running()
	if !ok {
		return false
	}

	p.submitted.Add(1)
	if !group.TryGo(p.wrap(ctx, job)) {
		p.submitted.Add(-1)
		return false
	}
	return true
}

// Wait は全てのジョブの完了を最大 timeout 待つ。全て完了したら true を返す
func (p *Pool) Wait(timeout time.Duration) bool {
	p.mu.Lock()
	group := p.group
	p.mu.Unlock()
	if group == nil {
		return true
	}

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Stop はワーカープールを停止する。実行中のジョブの ctx をキャンセルし完了を待つ
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	group := p.group
	p.mu.Unlock()

	p.stopping.Store(true)
	p.cancel()
	_ = group.Wait()

	p.mu.Lock()
	p.started = false
	p.stopping.Store(false)
	p.mu.Unlock()

	logger.Debug("", "WorkerPool stopped")
}

// Limit は同時実行数の上限を返す
func (p *Pool) Limit() int {
	return p.limit
}

// Active は実行中または待機中のジョブ数を返す
func (p *Pool) Active() int64 {
	return p.submitted.Load() - p.completed.Load()
}

// Stats は統計情報を返す
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}
