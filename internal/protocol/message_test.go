package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEncodeEnvelope(t *testing.T) {
	data, err := Encode(Authenticate{PlayerID: "p-1", Username: "Player1", Rating: 1200, Region: "US"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if raw["type"] != "AUTHENTICATE" {
		t.Errorf("expected type AUTHENTICATE, got %v", raw["type"])
	}
	payload, ok := raw["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", raw["data"])
	}
	if payload["playerId"] != "p-1" || payload["rating"] != float64(1200) || payload["region"] != "US" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestEncodeOmitsEmptyRegion(t *testing.T) {
	data, err := Encode(Authenticate{PlayerID: "p-1", Username: "Player1", Rating: 1200})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.Contains(string(data), "region") {
		t.Errorf("expected region to be omitted, got %s", data)
	}
}

func TestEncodeNoPayload(t *testing.T) {
	data, err := Encode(Ping{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != `{"type":"PING"}` {
		t.Errorf("unexpected encoding: %s", data)
	}
}

func TestDecodeServerMessages(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, m Message)
	}{
		{
			name:  "match found",
			frame: `{"type":"MATCH_FOUND","data":{"gameId":"g-1","opponent":{"id":"p-2","rating":1250}}}`,
			check: func(t *testing.T, m Message) {
				mf, ok := m.(MatchFound)
				if !ok {
					t.Fatalf("expected MatchFound, got %T", m)
				}
				if mf.GameID != "g-1" || mf.Opponent.ID != "p-2" || mf.Opponent.Rating != 1250 {
					t.Errorf("unexpected payload: %+v", mf)
				}
			},
		},
		{
			name:  "queue update",
			frame: `{"type":"QUEUE_UPDATE","data":{"position":3,"estimatedWaitTime":12.5}}`,
			check: func(t *testing.T, m Message) {
				qu := m.(QueueUpdate)
				if qu.Position != 3 || qu.EstimatedWaitTime != 12.5 {
					t.Errorf("unexpected payload: %+v", qu)
				}
			},
		},
		{
			name:  "matchmaking timeout without data",
			frame: `{"type":"MATCHMAKING_TIMEOUT"}`,
			check: func(t *testing.T, m Message) {
				if m.Type() != TypeMatchmakingTimeout {
					t.Errorf("unexpected type %s", m.Type())
				}
			},
		},
		{
			name:  "game state",
			frame: `{"type":"GAME_STATE","data":{"round":2,"plant":{"options":["rose","tulip"]}}}`,
			check: func(t *testing.T, m Message) {
				gs := m.(GameState)
				if gs.Round != 2 || len(gs.Plant.Options) != 2 || gs.Plant.Options[0] != "rose" {
					t.Errorf("unexpected payload: %+v", gs)
				}
			},
		},
		{
			name:  "game completed keeps raw result",
			frame: `{"type":"GAME_COMPLETED","data":{"winner":"p-1","scores":[3,2]}}`,
			check: func(t *testing.T, m Message) {
				gc := m.(GameCompleted)
				if !strings.Contains(string(gc.Result), `"winner":"p-1"`) {
					t.Errorf("unexpected result payload: %s", gc.Result)
				}
			},
		},
		{
			name:  "error as object",
			frame: `{"type":"ERROR","data":{"error":"Invalid JSON"}}`,
			check: func(t *testing.T, m Message) {
				if got := m.(ErrorMessage).Description(); got != "Invalid JSON" {
					t.Errorf("unexpected description %q", got)
				}
			},
		},
		{
			name:  "error as string",
			frame: `{"type":"ERROR","data":"bad request"}`,
			check: func(t *testing.T, m Message) {
				if got := m.(ErrorMessage).Description(); got != "bad request" {
					t.Errorf("unexpected description %q", got)
				}
			},
		},
		{
			name:  "diagnostic ack",
			frame: `{"type":"THROUGHPUT_ACK","data":{"messageId":7}}`,
			check: func(t *testing.T, m Message) {
				ack, ok := m.(Ack)
				if !ok || ack.Kind != TypeThroughputAck {
					t.Fatalf("expected THROUGHPUT_ACK, got %T %v", m, m.Type())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			tt.check(t, m)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	frames := []string{
		"invalid json {{{",
		`{"data":{}}`,
		`{"type":"MATCH_FOUND","data":{"gameId":42}}`,
	}

	for _, f := range frames {
		if _, err := Decode([]byte(f)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q) error = %v, want ErrMalformed", f, err)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	m, err := Decode([]byte(`{"type":"SPECTATE","data":{"gameId":"g-1"}}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	u, ok := m.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown message, got %T", m)
	}
	if u.Tag != "SPECTATE" {
		t.Errorf("expected tag SPECTATE, got %s", u.Tag)
	}
}

func TestSubmitAnswerRoundTrip(t *testing.T) {
	in := SubmitAnswer{PlayerID: "p-1", GameID: "g-1", Round: 3, Answer: "fern", Timestamp: 1700000000.5}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	m, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := m.(SubmitAnswer); got != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, in)
	}
}
