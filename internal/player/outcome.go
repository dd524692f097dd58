package player

import (
	"time"

	"battle-loadtest/internal/protocol"
)

// Category は集計上の終端バケット
type Category string

const (
	CategoryConnectFailed Category = "connect_failed"
	CategoryMatched       Category = "matched"
	CategoryTimedOut      Category = "timed_out"
	CategoryPending       Category = "pending"
)

// Outcome は1セッション分の結果
type Outcome struct {
	ID     string `json:"id"`
	Rating int    `json:"rating"`
	Region string `json:"region,omitempty"`
	Role   Role   `json:"role"`
	Kind   Kind   `json:"kind"`
	Burst  int    `json:"burst"`

	State         State `json:"state"`
	Connected     bool  `json:"connected"`
	Matched       bool  `json:"matched"`
	TimedOut      bool  `json:"timed_out"`
	Cancelled     bool  `json:"cancelled"`
	GameCompleted bool  `json:"game_completed"`

	ConnectLatency time.Duration      `json:"connect_latency"`
	MatchWait      time.Duration      `json:"match_wait"`
	Duration       time.Duration      `json:"duration"`
	Opponent       *protocol.Opponent `json:"opponent,omitempty"`
	RatingDiff     int                `json:"rating_diff"`

	RoundsPlayed   int  `json:"rounds_played"`
	RoundsResolved int  `json:"rounds_resolved"`
	Score          int  `json:"score"`
	Reconnected    bool `json:"reconnected"`
	ResumedRound   bool `json:"resumed_round"`

	Probe       ProbeKind `json:"probe,omitempty"`
	ProbePassed bool      `json:"probe_passed"`
	ProbeSent   int       `json:"probe_sent"`
	ProbeAcked  int       `json:"probe_acked"`

	QueueUpdates    int      `json:"queue_updates"`
	ConnectFailures int      `json:"connect_failures"`
	ConnectionDrops int      `json:"connection_drops"` // 模擬ネットワークが落とした接続試行
	MessageDrops    int      `json:"message_drops"`
	MessageTimeouts int      `json:"message_timeouts"`
	Reconnections   int      `json:"reconnections"`
	DecodeErrors    int      `json:"decode_errors"`
	Errors          []string `json:"errors,omitempty"`
}

// Completed は正常にライフサイクルを終えたかどうかを返す
func (o Outcome) Completed() bool {
	return o.State == StateCompleted
}

// Category は結果を1つの終端バケットに振り分ける。
// プローブでは合格が matched に相当する
func (o Outcome) Category() Category {
	switch {
	case !o.Connected:
		return CategoryConnectFailed
	case o.Matched || o.ProbePassed:
		return CategoryMatched
	case o.TimedOut:
		return CategoryTimedOut
	default:
		return CategoryPending
	}
}
