// Package protocol defines the wire messages exchanged with the battle server.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the discriminator carried in every envelope
type Type string

const (
	TypeAuthenticate       Type = "AUTHENTICATE"
	TypeStartMatchmaking   Type = "START_MATCHMAKING"
	TypeQueueUpdate        Type = "QUEUE_UPDATE"
	TypeMatchFound         Type = "MATCH_FOUND"
	TypeMatchmakingTimeout Type = "MATCHMAKING_TIMEOUT"
	TypeGameState          Type = "GAME_STATE"
	TypeSubmitAnswer       Type = "SUBMIT_ANSWER"
	TypeRoundResult        Type = "ROUND_RESULT"
	TypeGameCompleted      Type = "GAME_COMPLETED"
	TypeError              Type = "ERROR"

	// Diagnostic round-trip types
	TypePing             Type = "PING"
	TypeEchoRequest      Type = "TEST_ECHO"
	TypeEchoResponse     Type = "ECHO_RESPONSE"
	TypeThroughputTest   Type = "THROUGHPUT_TEST"
	TypeThroughputAck    Type = "THROUGHPUT_ACK"
	TypeLargeMessageTest Type = "LARGE_MESSAGE_TEST"
	TypeLargeMessageAck  Type = "LARGE_MESSAGE_ACK"
)

var (
	// ErrMalformed is returned when a frame is not a JSON envelope
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned when the envelope tag is not in the catalogue
	ErrUnknownType = errors.New("unknown message type")
)

// Message is implemented by every payload in the catalogue.
// The unexported method keeps the set closed to this package.
type Message interface {
	Type() Type
	sealed()
}

// Envelope is the on-wire shape {type, data}
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Authenticate identifies a player to the server
type Authenticate struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Region   string `json:"region,omitempty"`
}

// StartMatchmaking enters the matchmaking queue
type StartMatchmaking struct {
	PlayerID            string `json:"playerId"`
	PreferredDifficulty string `json:"preferredDifficulty,omitempty"`
}

// QueueUpdate reports the queue position
type QueueUpdate struct {
	Position          int     `json:"position"`
	EstimatedWaitTime float64 `json:"estimatedWaitTime"`
}

// Opponent identifies the matched opponent
type Opponent struct {
	ID     string `json:"id"`
	Rating int    `json:"rating"`
}

// MatchFound announces a match
type MatchFound struct {
	GameID   string   `json:"gameId"`
	Opponent Opponent `json:"opponent"`
}

// MatchmakingTimeout tells the player that the queue gave up
type MatchmakingTimeout struct{}

// Plant is the round question
type Plant struct {
	Options []string `json:"options"`
}

// GameState starts a round
type GameState struct {
	Round int   `json:"round"`
	Plant Plant `json:"plant"`
}

// SubmitAnswer answers a round. Timestamp is unix seconds.
type SubmitAnswer struct {
	PlayerID  string  `json:"playerId"`
	GameID    string  `json:"gameId"`
	Round     int     `json:"round"`
	Answer    string  `json:"answer"`
	Timestamp float64 `json:"timestamp"`
}

// RoundResult closes a round
type RoundResult struct {
	Round  int    `json:"round"`
	Winner string `json:"winner"`
}

// GameCompleted carries the final result payload as sent by the server
type GameCompleted struct {
	Result json.RawMessage `json:"-"`
}

// ErrorMessage is the server's error description
type ErrorMessage struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Description returns whichever description field the server filled in
func (e ErrorMessage) Description() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// Ping is a liveness probe
type Ping struct{}

// EchoRequest asks the server to echo
type EchoRequest struct {
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// ThroughputTest is one message of a throughput burst
type ThroughputTest struct {
	MessageID int     `json:"messageId"`
	Timestamp float64 `json:"timestamp"`
}

// LargeMessageTest carries an oversized payload
type LargeMessageTest struct {
	Content string `json:"content"`
}

// Ack is any diagnostic reply (ECHO_RESPONSE, THROUGHPUT_ACK, LARGE_MESSAGE_ACK).
// The payload is kept raw because servers differ in what they echo back.
type Ack struct {
	Kind Type            `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

// Unknown is produced for tags outside the catalogue
type Unknown struct {
	Tag string
	Raw json.RawMessage
}

func (Authenticate) Type() Type       { return TypeAuthenticate }
func (StartMatchmaking) Type() Type   { return TypeStartMatchmaking }
func (QueueUpdate) Type() Type        { return TypeQueueUpdate }
func (MatchFound) Type() Type         { return TypeMatchFound }
func (MatchmakingTimeout) Type() Type { return TypeMatchmakingTimeout }
func (GameState) Type() Type          { return TypeGameState }
func (SubmitAnswer) Type() Type       { return TypeSubmitAnswer }
func (RoundResult) Type() Type        { return TypeRoundResult }
func (GameCompleted) Type() Type      { return TypeGameCompleted }
func (ErrorMessage) Type() Type       { return TypeError }
func (Ping) Type() Type               { return TypePing }
func (EchoRequest) Type() Type        { return TypeEchoRequest }
func (ThroughputTest) Type() Type     { return TypeThroughputTest }
func (LargeMessageTest) Type() Type   { return TypeLargeMessageTest }
func (a Ack) Type() Type              { return a.Kind }
func (u Unknown) Type() Type          { return Type(u.Tag) }

func (Authenticate) sealed()       {}
func (StartMatchmaking) sealed()   {}
func (QueueUpdate) sealed()        {}
func (MatchFound) sealed()         {}
func (MatchmakingTimeout) sealed() {}
func (GameState) sealed()          {}
func (SubmitAnswer) sealed()       {}
func (RoundResult) sealed()        {}
func (GameCompleted) sealed()      {}
func (ErrorMessage) sealed()       {}
func (Ping) sealed()               {}
func (EchoRequest) sealed()        {}
func (ThroughputTest) sealed()     {}
func (LargeMessageTest) sealed()   {}
func (Ack) sealed()                {}
func (Unknown) sealed()            {}

// Encode wraps a message in its envelope
func Encode(m Message) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch v := m.(type) {
	case MatchmakingTimeout, Ping:
		// no payload
	case GameCompleted:
		data = v.Result
	case Ack:
		data = v.Raw
	case Unknown:
		data = v.Raw
	default:
		data, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
		}
	}

	return json.Marshal(Envelope{Type: m.Type(), Data: data})
}

// Decode parses a frame into the matching catalogue type.
// Unknown tags yield an Unknown message together with ErrUnknownType.
func Decode(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case TypeAuthenticate:
		return decodeInto[Authenticate](env)
	case TypeStartMatchmaking:
		return decodeInto[StartMatchmaking](env)
	case TypeQueueUpdate:
		return decodeInto[QueueUpdate](env)
	case TypeMatchFound:
		return decodeInto[MatchFound](env)
	case TypeMatchmakingTimeout:
		return MatchmakingTimeout{}, nil
	case TypeGameState:
		return decodeInto[GameState](env)
	case TypeSubmitAnswer:
		return decodeInto[SubmitAnswer](env)
	case TypeRoundResult:
		return decodeInto[RoundResult](env)
	case TypeGameCompleted:
		return GameCompleted{Result: cloneRaw(env.Data)}, nil
	case TypeError:
		return decodeError(env)
	case TypePing:
		return Ping{}, nil
	case TypeEchoRequest:
		return decodeInto[EchoRequest](env)
	case TypeThroughputTest:
		return decodeInto[ThroughputTest](env)
	case TypeLargeMessageTest:
		return decodeInto[LargeMessageTest](env)
	case TypeEchoResponse, TypeThroughputAck, TypeLargeMessageAck:
		return Ack{Kind: env.Type, Raw: cloneRaw(env.Data)}, nil
	default:
		return Unknown{Tag: string(env.Type), Raw: cloneRaw(env.Data)},
			fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
	}
}

func decodeInto[T Message](env Envelope) (Message, error) {
	var v T
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return v, nil
}

// decodeError accepts both {"error": "..."} and a bare string payload
func decodeError(env Envelope) (Message, error) {
	var s string
	if err := json.Unmarshal(env.Data, &s); err == nil {
		return ErrorMessage{Message: s}, nil
	}
	return decodeInto[ErrorMessage](env)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
