package player

// State は仮想プレイヤーの接続状態を表す
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateQueued
	StateMatched
	StateInGame
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateQueued:
		return "queued"
	case StateMatched:
		return "matched"
	case StateInGame:
		return "in_game"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal は終端状態かどうかを返す
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Role はプレイヤーの振る舞いの種別
type Role int

const (
	RoleNormal Role = iota
	RoleQuickExit
)

func (r Role) String() string {
	switch r {
	case RoleNormal:
		return "normal"
	case RoleQuickExit:
		return "quick_exit"
	default:
		return "unknown"
	}
}
