package player

import (
	"fmt"
	"time"
)

// Kind はライフサイクルの種類
type Kind int

const (
	KindQueue Kind = iota
	KindGame
	KindQuickExit
	KindProbe
)

func (k Kind) String() string {
	switch k {
	case KindQueue:
		return "queue"
	case KindGame:
		return "game"
	case KindQuickExit:
		return "quick_exit"
	case KindProbe:
		return "probe"
	default:
		return "unknown"
	}
}

// ParseKind は文字列から Kind を得る
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "queue":
		return KindQueue, nil
	case "game":
		return KindGame, nil
	case "quick_exit":
		return KindQuickExit, nil
	case "probe":
		return KindProbe, nil
	default:
		return KindQueue, fmt.Errorf("unknown lifecycle kind %q", s)
	}
}

// Plan は1セッションの進め方
type Plan struct {
	Kind       Kind
	Endpoint   string
	MaxRetries int

	// キュー
	MatchTimeout time.Duration
	HoldMin      time.Duration // マッチ後に接続を維持する時間
	HoldMax      time.Duration
	Difficulty   string

	// 早期離脱
	QuickExitMin time.Duration
	QuickExitMax time.Duration

	// ゲーム
	Rounds              int
	RoundTimeout        time.Duration
	CompletionTimeout   time.Duration
	AnswerAccuracy      float64
	AnswerDelay         time.Duration
	ReconnectAfterRound int // 0で無効
	ReconnectDelay      time.Duration

	// 接続断を検出したら再接続を試みる
	ReconnectOnLoss bool

	// 診断
	Probe        ProbeKind
	ProbeCount   int
	ProbeTimeout time.Duration
}

// DefaultPlan はキュー待ちのデフォルトプランを返す
func DefaultPlan(endpoint string) Plan {
	return Plan{
		Kind:              KindQueue,
		Endpoint:          endpoint,
		MaxRetries:        3,
		MatchTimeout:      60 * time.Second,
		HoldMin:           5 * time.Second,
		HoldMax:           15 * time.Second,
		QuickExitMin:      time.Second,
		QuickExitMax:      5 * time.Second,
		Rounds:            5,
		RoundTimeout:      10 * time.Second,
		CompletionTimeout: 15 * time.Second,
		AnswerAccuracy:    0.7,
		AnswerDelay:       100 * time.Millisecond,
		ReconnectDelay:    3 * time.Second,
		ProbeCount:        100,
		ProbeTimeout:      5 * time.Second,
	}
}

// Validate はプランを検証する
func (p Plan) Validate() error {
	if p.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if p.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}
	if p.HoldMax < p.HoldMin {
		return fmt.Errorf("hold max (%v) is below hold min (%v)", p.HoldMax, p.HoldMin)
	}
	if p.QuickExitMax < p.QuickExitMin {
		return fmt.Errorf("quick exit max (%v) is below quick exit min (%v)", p.QuickExitMax, p.QuickExitMin)
	}
	if p.AnswerAccuracy < 0 || p.AnswerAccuracy > 1 {
		return fmt.Errorf("answer accuracy must be in [0, 1]")
	}

	switch p.Kind {
	case KindQueue, KindQuickExit:
		if p.MatchTimeout <= 0 {
			return fmt.Errorf("match timeout must be positive")
		}
	case KindGame:
		if p.MatchTimeout <= 0 || p.RoundTimeout <= 0 {
			return fmt.Errorf("match and round timeouts must be positive")
		}
		if p.Rounds < 1 {
			return fmt.Errorf("rounds must be at least 1")
		}
		if p.ReconnectAfterRound >= p.Rounds {
			return fmt.Errorf("reconnect after round %d leaves no round to resume", p.ReconnectAfterRound)
		}
	case KindProbe:
		if _, err := ParseProbeKind(string(p.Probe)); err != nil {
			return err
		}
		if p.ProbeTimeout <= 0 {
			return fmt.Errorf("probe timeout must be positive")
		}
	default:
		return fmt.Errorf("unknown lifecycle kind %d", p.Kind)
	}
	return nil
}
