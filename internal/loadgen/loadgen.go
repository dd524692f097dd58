package loadgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"battle-loadtest/internal/events"
	"battle-loadtest/internal/logger"
	"battle-loadtest/internal/player"
	"battle-loadtest/internal/population"
	"battle-loadtest/internal/worker"
)

// Pattern は負荷パターン
type Pattern string

const (
	PatternBurst          Pattern = "burst"
	PatternRamp           Pattern = "ramp"
	PatternRepeatedBursts Pattern = "repeated_bursts"
	PatternSustained      Pattern = "sustained"
)

// ParsePattern は文字列から Pattern を得る
func ParsePattern(s string) (Pattern, error) {
	switch p := Pattern(s); p {
	case PatternBurst, PatternRamp, PatternRepeatedBursts, PatternSustained:
		return p, nil
	default:
		return "", fmt.Errorf("unknown load pattern %q", s)
	}
}

// Cohort は起動するプレイヤーの属性
type Cohort struct {
	Ratings        population.RatingSpec
	Region         string
	QuickExitShare float64  // 各バーストの後半をこの割合だけ早期離脱にする
	Difficulties   []string // 空ならプランの値を使う
}

// Config は Orchestrator の設定
type Config struct {
	Name    string
	Pattern Pattern
	Players int // バーストの人数、ランプの目標人数、持続セッション数
	Prefix  string
	Cohort  Cohort

	// ランプ
	RampDuration time.Duration
	Tick         time.Duration

	// 繰り返しバースト
	Bursts   int
	BurstMin int // 0以外なら各バーストの人数を [BurstMin, BurstMax] から選ぶ
	BurstMax int
	BurstGap time.Duration
	Waves    bool // true なら前のバーストの完了を待たずに次を起動する

	// 持続セッション
	SessionDuration time.Duration
	ThinkMin        time.Duration
	ThinkMax        time.Duration

	Timeout time.Duration // シナリオ全体の期限
	Grace   time.Duration // 期限後に結果を待つ時間
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Pattern: PatternBurst,
		Players: 50,
		Prefix:  "load-user",
		Cohort: Cohort{
			Ratings: population.RatingSpec{Distribution: population.DistRealistic},
		},
		Tick:     time.Second,
		BurstGap: 5 * time.Second,
		ThinkMin: 10 * time.Second,
		ThinkMax: 30 * time.Second,
		Timeout:  5 * time.Minute,
		Grace:    5 * time.Second,
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if _, err := ParsePattern(string(c.Pattern)); err != nil {
		return err
	}
	if c.Players < 1 && !(c.Pattern == PatternRepeatedBursts && c.BurstMin > 0) {
		return fmt.Errorf("players must be positive, got %d", c.Players)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Cohort.QuickExitShare < 0 || c.Cohort.QuickExitShare > 1 {
		return fmt.Errorf("quick exit share must be within [0, 1], got %v", c.Cohort.QuickExitShare)
	}

	switch c.Pattern {
	case PatternRamp:
		if c.RampDuration <= 0 {
			return fmt.Errorf("ramp duration must be positive")
		}
		if c.Tick <= 0 {
			return fmt.Errorf("ramp tick must be positive")
		}
	case PatternRepeatedBursts:
		if c.Bursts < 1 {
			return fmt.Errorf("bursts must be positive, got %d", c.Bursts)
		}
		if c.BurstMin > 0 && c.BurstMax < c.BurstMin {
			return fmt.Errorf("burst max %d below burst min %d", c.BurstMax, c.BurstMin)
		}
	case PatternSustained:
		if c.SessionDuration <= 0 {
			return fmt.Errorf("session duration must be positive")
		}
		if c.ThinkMax < c.ThinkMin {
			return fmt.Errorf("think max below think min")
		}
	}
	return nil
}

// Run は1回の実行結果
type Run struct {
	ID       string           `json:"id"`
	Pattern  Pattern          `json:"pattern"`
	Bursts   int              `json:"bursts"`
	Sealed   int              `json:"sealed"`
	Outcomes []player.Outcome `json:"outcomes"`
	Started  time.Time        `json:"started"`
	Elapsed  time.Duration    `json:"elapsed"`
}

// Orchestrator はプレイヤー集団を負荷パターンに従って起動し、監視する
type Orchestrator struct {
	config       Config
	plan         player.Plan
	playerConfig player.Config

	runID   string
	pop     *population.Population
	sampler *population.Sampler
	pool  *worker.Pool
	seq   atomic.Int64

	onBurst  func(index int)
	observe  func(player.Outcome)
	eventBus events.Publisher
	running  atomic.Bool
}

// New は新しい Orchestrator を作成する
func New(config Config, plan player.Plan, playerConfig player.Config) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid load config: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid player plan: %w", err)
	}
	if config.Prefix == "" {
		config.Prefix = "load-user"
	}
	if config.Tick <= 0 {
		config.Tick = time.Second
	}
	sampler, err := population.NewSampler(config.Cohort.Ratings)
	if err != nil {
		return nil, fmt.Errorf("invalid rating distribution: %w", err)
	}

	return &Orchestrator{
		config:       config,
		plan:         plan,
		playerConfig: playerConfig,
		runID:        uuid.NewString(),
		pop:          population.New(),
		sampler:      sampler,
		pool:         worker.NewPool(0),
	}, nil
}

// SetEventBus はイベントバスを設定する
func (o *Orchestrator) SetEventBus(bus events.Publisher) {
	o.eventBus = bus
}

// OnBurst は各バースト起動直前に呼ばれるフックを設定する
func (o *Orchestrator) OnBurst(fn func(index int)) {
	o.onBurst = fn
}

// Observe は結果が確定するたびに呼ばれる関数を設定する
func (o *Orchestrator) Observe(fn func(player.Outcome)) {
	o.observe = fn
}

// RunID は実行IDを返す
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Population はプレイヤー集団を返す
func (o *Orchestrator) Population() *population.Population {
	return o.pop
}

func (o *Orchestrator) publishEvent(event events.Event) {
	if o.eventBus != nil {
		o.eventBus.Publish(event)
	}
}

// Run は負荷パターンを実行し、全プレイヤーの結果を返す。
// 期限までに終わらなかったプレイヤーは時間切れとして数える
func (o *Orchestrator) Run(ctx context.Context) (Run, error) {
	if o.running.Swap(true) {
		return Run{}, errors.New("orchestrator already ran")
	}

	started := time.Now()
	deadline := started.Add(o.config.Timeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	o.pool.Start(runCtx)

	logger.Info(o.config.Name, "Starting %s run %s (players: %d, timeout: %v)",
		o.config.Pattern, o.runID[:8], o.config.Players, o.config.Timeout)

	var bursts int
	switch o.config.Pattern {
	case PatternBurst:
		bursts = 1
		o.beginBurst(0, o.config.Players)
		o.launch(runCtx, 0, o.draw(o.config.Players))
	case PatternRamp:
		bursts = 1
		o.ramp(runCtx)
	case PatternRepeatedBursts:
		bursts = o.repeatedBursts(runCtx)
	case PatternSustained:
		bursts = 1
		o.sustained(runCtx)
	}

	if !o.pool.Wait(time.Until(deadline) + o.config.Grace) {
		logger.Warn(o.config.Name, "Scenario deadline reached with %d tasks running", o.pool.Active())
	}
	cancel()
	if !o.pool.Wait(o.config.Grace) {
		logger.Warn(o.config.Name, "%d tasks did not stop within grace period", o.pool.Active())
	}

	sealed := o.pop.Seal("scenario deadline")
	for _, s := range sealed {
		out, _ := s.Outcome()
		o.finish(out)
	}

	run := Run{
		ID:       o.runID,
		Pattern:  o.config.Pattern,
		Bursts:   bursts,
		Sealed:   len(sealed),
		Outcomes: o.pop.Outcomes(),
		Started:  started,
		Elapsed:  time.Since(started),
	}

	logger.Info(o.config.Name, "Run %s finished: %d players, %d sealed, %v elapsed",
		o.runID[:8], len(run.Outcomes), run.Sealed, run.Elapsed.Round(time.Millisecond))
	return run, nil
}

// beginBurst はフックを呼び、バースト開始イベントを発行する
func (o *Orchestrator) beginBurst(index, size int) {
	if o.onBurst != nil {
		o.onBurst(index)
	}
	profile := ""
	if active, ok := o.playerConfig.Network.Active(); ok {
		profile = active.Name
	}
	o.publishEvent(events.NewBurstStartEvent(o.config.Name, index, size, profile))
}

// draw は n 人分のレーティングを分布の比率どおりに一括で割り当てる
func (o *Orchestrator) draw(n int) []int {
	ratings, err := population.Ratings(o.config.Cohort.Ratings, n)
	if err != nil {
		logger.Error(o.config.Name, "Failed to assign ratings: %v", err)
		return nil
	}
	return ratings
}

// launch は ratings の人数を同時に起動する。返すチャネルは全員の結果確定で閉じる
func (o *Orchestrator) launch(ctx context.Context, burst int, ratings []int) <-chan struct{} {
	var wg sync.WaitGroup
	done := make(chan struct{})

	count := len(ratings)
	normal := count - int(float64(count)*o.config.Cohort.QuickExitShare)
	for i := range count {
		role := player.RoleNormal
		if i >= normal {
			role = player.RoleQuickExit
		}

		slot, err := o.spawn(ratings[i], role, burst)
		if err != nil {
			logger.Error(o.config.Name, "Failed to spawn player: %v", err)
			continue
		}

		plan := o.planFor()
		wg.Add(1)
		ok := o.pool.Submit(func(ctx context.Context) {
			defer wg.Done()
			o.resolve(slot, slot.Player().Run(ctx, plan))
		})
		if !ok {
			wg.Done()
		}
	}

	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// spawn は1人のプレイヤーを作成して登録する
func (o *Orchestrator) spawn(rating int, role player.Role, burst int) (*population.Slot, error) {
	id := fmt.Sprintf("%s-%s-%d", o.config.Prefix, o.runID[:8], o.seq.Add(1))
	p := player.New(player.Identity{
		ID:     id,
		Rating: rating,
		Region: o.config.Cohort.Region,
		Role:   role,
	}, o.playerConfig)
	return o.pop.Add(p, burst)
}

// planFor はプレイヤーごとのプランを作る
func (o *Orchestrator) planFor() player.Plan {
	plan := o.plan
	if d := o.config.Cohort.Difficulties; len(d) > 0 {
		plan.Difficulty = d[rand.Intn(len(d))]
	}
	return plan
}

func (o *Orchestrator) resolve(slot *population.Slot, out player.Outcome) {
	if !slot.Resolve(out) {
		return
	}
	out, _ = slot.Outcome()
	o.finish(out)
}

// finish は確定した結果を通知する
func (o *Orchestrator) finish(out player.Outcome) {
	var err error
	if len(out.Errors) > 0 {
		err = errors.New(out.Errors[len(out.Errors)-1])
	}
	o.publishEvent(events.NewPlayerOutcomeEvent(out.ID, string(out.Category()), err))
	if o.observe != nil {
		o.observe(out)
	}
}

// ramp は期待累積人数 elapsed*rate に追いつくように tick ごとに起動する
func (o *Orchestrator) ramp(ctx context.Context) {
	target := o.config.Players
	rate := float64(target) / o.config.RampDuration.Seconds()
	ratings := o.draw(target)
	if len(ratings) < target {
		return
	}
	o.beginBurst(0, target)

	start := time.Now()
	ticker := time.NewTicker(o.config.Tick)
	defer ticker.Stop()

	launched := 0
	for launched < target {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		elapsed := time.Since(start)
		expected := int(elapsed.Seconds() * rate)
		if elapsed >= o.config.RampDuration || expected > target {
			expected = target
		}
		if delta := expected - launched; delta > 0 {
			o.launch(ctx, 0, ratings[launched:expected])
			launched = expected
			logger.Debug(o.config.Name, "Ramp launched %d players (%d/%d)", delta, launched, target)
		}
	}
}

// repeatedBursts はバーストを順に実行し、実行したバースト数を返す
func (o *Orchestrator) repeatedBursts(ctx context.Context) int {
	ran := 0
	for i := range o.config.Bursts {
		if ctx.Err() != nil {
			break
		}

		size := o.config.Players
		if o.config.BurstMin > 0 {
			size = o.config.BurstMin + rand.Intn(o.config.BurstMax-o.config.BurstMin+1)
		}

		logger.Info(o.config.Name, "Burst %d/%d: %d players", i+1, o.config.Bursts, size)
		o.beginBurst(i, size)
		done := o.launch(ctx, i, o.draw(size))
		ran++

		if !o.config.Waves {
			select {
			case <-done:
			case <-ctx.Done():
				return ran
			}
		}

		if i < o.config.Bursts-1 {
			if err := sleepCtx(ctx, o.config.BurstGap); err != nil {
				break
			}
		}
	}
	return ran
}

// sustained はセッションループを並行に走らせ、期間が過ぎるまで新しいセッションを作り続ける
func (o *Orchestrator) sustained(ctx context.Context) {
	o.beginBurst(0, o.config.Players)
	end := time.Now().Add(o.config.SessionDuration)

	for session := range o.config.Players {
		o.pool.Submit(func(ctx context.Context) {
			o.sessionLoop(ctx, session, end)
		})
	}
}

func (o *Orchestrator) sessionLoop(ctx context.Context, session int, end time.Time) {
	iteration := 0
	for time.Now().Before(end) && ctx.Err() == nil {
		slot, err := o.spawn(o.sampler.Next(), player.RoleNormal, session)
		if err != nil {
			logger.Error(o.config.Name, "Failed to spawn player: %v", err)
			return
		}

		o.resolve(slot, slot.Player().Run(ctx, o.planFor()))
		iteration++

		think := o.config.ThinkMin
		if span := o.config.ThinkMax - o.config.ThinkMin; span > 0 {
			think += time.Duration(rand.Int63n(int64(span)))
		}
		if remaining := time.Until(end); think > remaining {
			think = remaining
		}
		if sleepCtx(ctx, think) != nil {
			break
		}
	}
	logger.Debug(o.config.Name, "Session %d finished after %d iterations", session, iteration)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
