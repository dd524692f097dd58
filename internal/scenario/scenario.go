package scenario

import (
	"context"
	"fmt"
	"sync"
	"time"

	"battle-loadtest/internal/chaos"
	"battle-loadtest/internal/events"
	"battle-loadtest/internal/loadgen"
	"battle-loadtest/internal/logger"
	"battle-loadtest/internal/metrics"
	"battle-loadtest/internal/player"
	"battle-loadtest/internal/transport"
	"battle-loadtest/internal/verdict"
)

// DefaultEndpoint は接続先の既定値
const DefaultEndpoint = "ws://localhost:3001"

// NetworkPlan はシナリオ中のネットワーク状態の変化
type NetworkPlan struct {
	Profile          string         // 開始時に適用するプロファイル（空で無し）
	PerBurst         []string       // バースト i の直前に適用するプロファイル（循環）
	Schedule         []chaos.Switch // 開始からの経過時間で切り替える
	Rotation         []string       // RotationInterval ごとに順番に適用する
	RotationInterval time.Duration
}

// profileNames は参照している全てのプロファイル名を返す
func (n NetworkPlan) profileNames() []string {
	var names []string
	if n.Profile != "" {
		names = append(names, n.Profile)
	}
	names = append(names, n.PerBurst...)
	for _, s := range n.Schedule {
		names = append(names, s.Profile)
	}
	return append(names, n.Rotation...)
}

// Config はシナリオの設定
type Config struct {
	Name        string // シナリオ名
	Description string // 説明
	Kind        verdict.Kind

	Load       loadgen.Config // 負荷パターン
	Plan       player.Plan    // 各プレイヤーのライフサイクル（Endpoint は実行時に設定）
	Player     player.Config  // ポーリング間隔など（Dialer と Network は実行時に設定）
	Network    NetworkPlan
	Thresholds verdict.Thresholds
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	load := loadgen.DefaultConfig()
	load.Name = "default"
	return Config{
		Name:        "default",
		Description: "Default scenario",
		Kind:        verdict.KindLoad,
		Load:        load,
		Plan:        player.DefaultPlan(""),
		Player:      player.DefaultConfig(),
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if _, err := verdict.ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if err := c.Load.Validate(); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	plan := c.Plan
	if plan.Endpoint == "" {
		plan.Endpoint = DefaultEndpoint
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	for _, name := range c.Network.profileNames() {
		if _, ok := chaos.Preset(name); !ok {
			return fmt.Errorf("unknown network profile %q", name)
		}
	}
	if len(c.Network.Rotation) > 0 && c.Network.RotationInterval <= 0 {
		return fmt.Errorf("rotation interval must be positive")
	}
	return nil
}

// Result はシナリオ実行結果
type Result struct {
	ScenarioName string          `json:"scenario"`
	Description  string          `json:"description"`
	Kind         verdict.Kind    `json:"kind"`
	Pattern      loadgen.Pattern `json:"pattern"`
	RunID        string          `json:"run_id"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	Duration     time.Duration   `json:"duration"`

	Metrics metrics.Result  `json:"metrics"`
	Verdict verdict.Verdict `json:"verdict"`

	// ネットワーク統計
	BurstProfiles   []string `json:"burst_profiles,omitempty"`
	ProfileSwitches uint64   `json:"profile_switches"`
	SimulatedDrops  uint64   `json:"simulated_drops"`
	Sealed          int      `json:"sealed"`
}

// Passed は判定が PASS かどうかを返す
func (r *Result) Passed() bool {
	return r.Verdict.Passed()
}

// Engine はシナリオ実行エンジン
type Engine struct {
	config   Config
	endpoint string
	dialer   transport.Dialer
	eventBus events.Publisher
	exporter *metrics.Exporter

	mu       sync.RWMutex
	running  bool
	recorder *metrics.Recorder
	sim      *chaos.Simulator
	monkey   *chaos.Monkey

	profileMu     sync.Mutex
	burstProfiles []string
}

// New は新しいEngineを作成する
func New(config Config, endpoint string) *Engine {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Engine{
		config:   config,
		endpoint: endpoint,
		dialer:   transport.NewWebSocketDialer(),
	}
}

// SetEventBus はイベントバスを設定する
func (e *Engine) SetEventBus(bus events.Publisher) {
	e.eventBus = bus
}

// SetExporter は Prometheus エクスポータを設定する
func (e *Engine) SetExporter(exp *metrics.Exporter) {
	e.exporter = exp
}

// SetDialer は接続に使う Dialer を差し替える
func (e *Engine) SetDialer(d transport.Dialer) {
	e.dialer = d
}

// Config は設定を返す
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) publishEvent(event events.Event) {
	if e.eventBus != nil {
		e.eventBus.Publish(event)
	}
}

// Run はシナリオを実行する
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %w", e.config.Name, err)
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("scenario is already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	name := e.config.Name
	logger.Info(name, "=== Scenario '%s' started ===", name)
	logger.Info(name, "Description: %s", e.config.Description)

	result := &Result{
		ScenarioName: name,
		Description:  e.config.Description,
		Kind:         e.config.Kind,
		Pattern:      e.config.Load.Pattern,
		StartTime:    time.Now(),
	}

	orch, err := e.setup()
	if err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}
	defer e.teardown()

	e.publishEvent(events.NewScenarioStartEvent(name, e.config.Load.Players))
	if e.monkey != nil {
		e.monkey.Start(ctx)
	}

	run, err := orch.Run(ctx)
	if err != nil {
		return nil, err
	}
	if e.monkey != nil {
		e.monkey.Stop()
	}

	result.RunID = run.ID
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	e.collectResults(result, run)

	e.exporter.ObserveVerdict(name, string(result.Verdict.Outcome))
	e.publishEvent(events.NewScenarioCompleteEvent(name, string(result.Verdict.Outcome), result.Metrics.Counts.Attempted))

	logger.Info(name, "=== Scenario '%s' completed: %s ===", name, result.Verdict.Outcome)
	return result, nil
}

// setup はネットワーク模擬と Orchestrator を用意する
func (e *Engine) setup() (*loadgen.Orchestrator, error) {
	sim := chaos.NewSimulator()
	sim.SetEventBus(e.eventBus)

	network := e.config.Network
	if network.Profile != "" {
		p, _ := chaos.Preset(network.Profile)
		sim.Apply(p)
	}

	var monkey *chaos.Monkey
	if len(network.Schedule) > 0 || len(network.Rotation) > 0 {
		mc := chaos.DefaultConfig()
		mc.Schedule = network.Schedule
		mc.Rotation = network.Rotation
		mc.Interval = network.RotationInterval
		monkey = chaos.New(sim, mc)
	}

	plan := e.config.Plan
	plan.Endpoint = e.endpoint

	pc := e.config.Player
	pc.Dialer = e.dialer
	pc.Network = sim

	load := e.config.Load
	load.Name = e.config.Name

	orch, err := loadgen.New(load, plan, pc)
	if err != nil {
		return nil, err
	}
	orch.SetEventBus(e.eventBus)

	rec := metrics.New(e.config.Name)
	rec.SetExporter(e.exporter)
	orch.Observe(rec.Record)

	e.profileMu.Lock()
	e.burstProfiles = nil
	e.profileMu.Unlock()
	if len(network.PerBurst) > 0 {
		orch.OnBurst(func(index int) {
			name := network.PerBurst[index%len(network.PerBurst)]
			p, _ := chaos.Preset(name)
			sim.Apply(p)
			e.profileMu.Lock()
			e.burstProfiles = append(e.burstProfiles, name)
			e.profileMu.Unlock()
			logger.Info(e.config.Name, "Burst %d under network profile %s", index+1, p)
		})
	}

	e.mu.Lock()
	e.recorder = rec
	e.sim = sim
	e.monkey = monkey
	e.mu.Unlock()
	return orch, nil
}

// teardown はシナリオ実行後のクリーンアップ
func (e *Engine) teardown() {
	e.mu.RLock()
	monkey := e.monkey
	e.mu.RUnlock()
	if monkey != nil {
		monkey.Stop()
	}
}

// collectResults は結果を集計して判定する
func (e *Engine) collectResults(result *Result, run loadgen.Run) {
	result.Metrics = metrics.Reduce(e.config.Name, run.Outcomes)
	result.Metrics.Elapsed = run.Elapsed
	result.Sealed = run.Sealed
	result.Verdict = verdict.Judge(e.config.Kind, result.Metrics, e.config.Thresholds)

	e.profileMu.Lock()
	result.BurstProfiles = append([]string(nil), e.burstProfiles...)
	e.profileMu.Unlock()

	e.mu.RLock()
	defer e.mu.RUnlock()
	result.ProfileSwitches = e.sim.Switches()
	result.SimulatedDrops = e.sim.Drops()
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Metrics は実行中のメトリクスを返す
func (e *Engine) Metrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.recorder == nil {
		return nil
	}
	snapshot := e.recorder.Snapshot()
	return &snapshot
}

// NetworkStats はプロファイル切り替えの統計を返す
func (e *Engine) NetworkStats() *chaos.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.monkey == nil {
		return nil
	}
	stats := e.monkey.Stats()
	return &stats
}
