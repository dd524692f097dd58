package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"battle-loadtest/internal/chaos"
	"battle-loadtest/internal/logger"
	"battle-loadtest/internal/protocol"
	"battle-loadtest/internal/transport"
)

var (
	// ErrConnectExhausted は再試行を使い切っても接続できなかった場合に返される
	ErrConnectExhausted = errors.New("connect retries exhausted")
	// ErrNotConnected は接続がない状態で送受信しようとした場合に返される
	ErrNotConnected = errors.New("not connected")
	// ErrTerminal は終端状態のプレイヤーに操作しようとした場合に返される
	ErrTerminal = errors.New("player is in a terminal state")
	// ErrWaitTimeout は待ち時間内に目的のメッセージが届かなかった場合に返される
	ErrWaitTimeout = errors.New("wait timed out")
	// ErrSimulatedDrop は模擬ネットワークが接続試行を落とした場合に返される
	ErrSimulatedDrop = errors.New("dropped by network simulation")
)

// Identity はプレイヤーの識別情報
type Identity struct {
	ID       string
	Username string
	Rating   int
	Region   string
	Role     Role
}

// Config はプレイヤーの動作設定
type Config struct {
	Dialer       transport.Dialer
	Network      *chaos.Simulator // nil でネットワーク模擬なし
	PollInterval time.Duration    // 1回の受信待ちの上限
	BackoffBase  time.Duration    // 再接続の待ち時間の基数（試行ごとに倍）
	DropPause    time.Duration    // 受信を模擬的に落とした後の待ち時間
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Dialer:       transport.NewWebSocketDialer(),
		PollInterval: 5 * time.Second,
		BackoffBase:  time.Second,
		DropPause:    100 * time.Millisecond,
	}
}

// Preferences はマッチメイキングの希望条件
type Preferences struct {
	Difficulty string
}

// Player は1セッション分の仮想プレイヤー。
// 状態を変更するのは自身のライフサイクルだけで、
// 別ゴルーチンからは State と Abandon のみ呼び出せる
type Player struct {
	identity Identity
	config   Config

	state     atomic.Int32
	connected atomic.Bool
	matched   atomic.Bool
	plan      atomic.Pointer[Plan]

	conn          transport.Conn
	endpoint      string
	maxRetries    int
	autoReconnect bool

	connectAt      time.Time
	queueEnterAt   time.Time
	matchFoundAt   time.Time
	connectLatency time.Duration

	gameID   string
	opponent *protocol.Opponent

	timedOut      bool
	cancelled     bool
	gameCompleted bool
	reconnected   bool
	resumedRound  bool
	roundsPlayed  int
	roundsSolved  int
	score         int

	probe       ProbeKind
	probePassed bool
	probeSent   int
	probeAcked  int

	queueUpdates    int
	connectFailures int
	connectionDrops int
	messageDrops    int
	messageTimeouts int
	reconnections   int
	decodeErrors    int

	errMu  sync.Mutex
	errors []string
}

// New は新しいプレイヤーを作成する
func New(identity Identity, config Config) *Player {
	if identity.Username == "" {
		identity.Username = "LoadTestPlayer_" + identity.ID
	}
	if config.Dialer == nil {
		config.Dialer = transport.NewWebSocketDialer()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	if config.DropPause <= 0 {
		config.DropPause = 100 * time.Millisecond
	}
	return &Player{
		identity: identity,
		config:   config,
	}
}

// ID はプレイヤーIDを返す
func (p *Player) ID() string {
	return p.identity.ID
}

// Identity は識別情報を返す
func (p *Player) Identity() Identity {
	return p.identity
}

// State は現在の状態を返す
func (p *Player) State() State {
	return State(p.state.Load())
}

func (p *Player) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		logger.Debug(p.identity.ID, "State %s -> %s", old, s)
	}
}

// GameID はマッチしたゲームのIDを返す
func (p *Player) GameID() string {
	return p.gameID
}

// Opponent はマッチ相手を返す
func (p *Player) Opponent() (protocol.Opponent, bool) {
	if p.opponent == nil {
		return protocol.Opponent{}, false
	}
	return *p.opponent, true
}

// SetAutoReconnect は接続断時に自動再接続するかを設定する
func (p *Player) SetAutoReconnect(enabled bool) {
	p.autoReconnect = enabled
}

// recordError はエラーを記録する。制御には使わない
func (p *Player) recordError(err error) {
	if err == nil {
		return
	}
	p.errMu.Lock()
	p.errors = append(p.errors, err.Error())
	p.errMu.Unlock()
}

// Errors は記録したエラーを返す
func (p *Player) Errors() []string {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	out := make([]string, len(p.errors))
	copy(out, p.errors)
	return out
}

// fail は Failed に遷移してエラーを返す
func (p *Player) fail(err error) error {
	p.recordError(err)
	p.setState(StateFailed)
	return err
}

// Connect は接続を確立する。失敗時は指数バックオフで maxRetries 回まで試行する
func (p *Player) Connect(ctx context.Context, endpoint string, maxRetries int) error {
	if p.State().IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, p.State())
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	p.endpoint = endpoint
	p.maxRetries = maxRetries
	p.setState(StateConnecting)

	start := time.Now()
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(p.config.BackoffBase, attempt)); err != nil {
				return p.fail(err)
			}
		}

		conn, err := p.dialOnce(ctx, endpoint)
		if err == nil {
			p.conn = conn
			p.connectAt = time.Now()
			if !p.connected.Swap(true) {
				p.connectLatency = p.connectAt.Sub(start)
			}
			logger.Debug(p.identity.ID, "Connected to %s (attempt %d)", endpoint, attempt+1)
			return nil
		}
		if ctx.Err() != nil {
			return p.fail(ctx.Err())
		}

		lastErr = err
		p.connectFailures++
		if errors.Is(err, ErrSimulatedDrop) {
			p.connectionDrops++
		}
		p.recordError(fmt.Errorf("connect attempt %d: %w", attempt+1, err))
		logger.Debug(p.identity.ID, "Connection attempt %d/%d failed: %v", attempt+1, maxRetries, err)
	}

	logger.Warn(p.identity.ID, "Giving up after %d connection attempts: %v", maxRetries, lastErr)
	return p.fail(fmt.Errorf("%w after %d attempts: %v", ErrConnectExhausted, maxRetries, lastErr))
}

// dialOnce はネットワーク模擬を通して1回だけ接続を試みる
func (p *Player) dialOnce(ctx context.Context, endpoint string) (transport.Conn, error) {
	if err := p.config.Network.Wait(ctx, 0); err != nil {
		return nil, err
	}
	if p.config.Network.ShouldDrop() {
		return nil, ErrSimulatedDrop
	}
	return p.config.Dialer.Dial(ctx, endpoint)
}

// Authenticate は AUTHENTICATE を送る。応答は待たない
func (p *Player) Authenticate(ctx context.Context) error {
	err := p.send(ctx, protocol.Authenticate{
		PlayerID: p.identity.ID,
		Username: p.identity.Username,
		Rating:   p.identity.Rating,
		Region:   p.identity.Region,
	})
	if err != nil {
		return p.fail(fmt.Errorf("authenticate: %w", err))
	}
	p.setState(StateAuthenticated)
	return nil
}

// EnterQueue は START_MATCHMAKING を送りキューに入る
func (p *Player) EnterQueue(ctx context.Context, prefs Preferences) error {
	err := p.send(ctx, protocol.StartMatchmaking{
		PlayerID:            p.identity.ID,
		PreferredDifficulty: prefs.Difficulty,
	})
	if err != nil {
		return p.fail(fmt.Errorf("start matchmaking: %w", err))
	}
	p.queueEnterAt = time.Now()
	p.setState(StateQueued)
	return nil
}

// SubmitAnswer は回答を送る
func (p *Player) SubmitAnswer(ctx context.Context, gameID string, round int, answer string) error {
	err := p.send(ctx, protocol.SubmitAnswer{
		PlayerID:  p.identity.ID,
		GameID:    gameID,
		Round:     round,
		Answer:    answer,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
	if err != nil {
		p.recordError(fmt.Errorf("submit answer round %d: %w", round, err))
	}
	return err
}

// send はメッセージを符号化して送る
func (p *Player) send(ctx context.Context, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return p.sendFrame(ctx, frame)
}

// sendFrame は遅延と損失を模擬してからフレームを送る。
// 模擬的に落としたフレームはエラーにならない
func (p *Player) sendFrame(ctx context.Context, frame []byte) error {
	if p.conn == nil {
		return ErrNotConnected
	}
	if err := p.config.Network.Wait(ctx, 0); err != nil {
		return err
	}
	if p.config.Network.ShouldDrop() {
		p.messageDrops++
		logger.Debug(p.identity.ID, "Simulated drop (send)")
		return nil
	}
	return p.conn.Send(ctx, frame)
}

// Disconnect は接続を閉じる。何度呼んでもよい
func (p *Player) Disconnect() {
	if p.conn == nil {
		return
	}
	_ = p.conn.Close()
	p.conn = nil
	if !p.State().IsTerminal() {
		p.setState(StateDisconnected)
	}
}

// Reconnect は接続を張り直して再認証し、直前の状態に戻す
func (p *Player) Reconnect(ctx context.Context) error {
	prev := p.State()
	if prev.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, prev)
	}

	p.Disconnect()
	retries := p.maxRetries
	if retries < 1 {
		retries = 1
	}
	if err := p.Connect(ctx, p.endpoint, retries); err != nil {
		return err
	}
	if err := p.Authenticate(ctx); err != nil {
		return err
	}

	p.reconnections++
	if prev != StateDisconnected && prev != StateConnecting {
		p.setState(prev)
	}
	logger.Info(p.identity.ID, "Reconnected (total: %d)", p.reconnections)
	return nil
}

// Abandon はライフサイクルが戻らない場合の結果を作る。
// 他ゴルーチンから呼ばれるため atomic なフィールドだけを読む
func (p *Player) Abandon(reason string) Outcome {
	matched := p.matched.Load()
	out := Outcome{
		ID:        p.identity.ID,
		Rating:    p.identity.Rating,
		Region:    p.identity.Region,
		Role:      p.identity.Role,
		State:     StateFailed,
		Connected: p.connected.Load(),
		Matched:   matched,
		TimedOut:  !matched,
		Cancelled: true,
		Errors:    []string{reason},
	}
	if plan := p.plan.Load(); plan != nil {
		out.Kind = plan.Kind
		out.Probe = plan.Probe
	}
	return out
}

// Outcome は現在までの結果を返す
func (p *Player) Outcome() Outcome {
	out := Outcome{
		ID:              p.identity.ID,
		Rating:          p.identity.Rating,
		Region:          p.identity.Region,
		Role:            p.identity.Role,
		State:           p.State(),
		Connected:       p.connected.Load(),
		Matched:         p.matched.Load(),
		TimedOut:        p.timedOut,
		Cancelled:       p.cancelled,
		GameCompleted:   p.gameCompleted,
		ConnectLatency:  p.connectLatency,
		RoundsPlayed:    p.roundsPlayed,
		RoundsResolved:  p.roundsSolved,
		Score:           p.score,
		Reconnected:     p.reconnected,
		ResumedRound:    p.resumedRound,
		Probe:           p.probe,
		ProbePassed:     p.probePassed,
		ProbeSent:       p.probeSent,
		ProbeAcked:      p.probeAcked,
		QueueUpdates:    p.queueUpdates,
		ConnectFailures: p.connectFailures,
		ConnectionDrops: p.connectionDrops,
		MessageDrops:    p.messageDrops,
		MessageTimeouts: p.messageTimeouts,
		Reconnections:   p.reconnections,
		DecodeErrors:    p.decodeErrors,
		Errors:          p.Errors(),
	}
	if out.Matched && !p.queueEnterAt.IsZero() {
		out.MatchWait = p.matchFoundAt.Sub(p.queueEnterAt)
	}
	if p.opponent != nil {
		opp := *p.opponent
		out.Opponent = &opp
		out.RatingDiff = absInt(p.identity.Rating - opp.Rating)
	}
	return out
}

// MaxBackoff は再接続の待ち時間の上限
const MaxBackoff = 30 * time.Second

// backoff は attempt 回目の再試行前の待ち時間 base*2^(attempt-1) を MaxBackoff で打ち切って返す
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 1 {
		return 0
	}
	d := base
	for range attempt - 1 {
		if d >= MaxBackoff/2 {
			return MaxBackoff
		}
		d *= 2
	}
	return min(d, MaxBackoff)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// sleepCtx は d だけ待つ。ctx が先に終われば ctx のエラーを返す
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
