package player

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"battle-loadtest/internal/chaos"
	"battle-loadtest/internal/protocol"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateAuthenticated, "authenticated"},
		{StateQueued, "queued"},
		{StateMatched, "matched"},
		{StateInGame, "in_game"},
		{StateCompleted, "completed"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
	}

	if !StateCompleted.IsTerminal() || !StateFailed.IsTerminal() || StateInGame.IsTerminal() {
		t.Error("unexpected terminal classification")
	}
}

func TestOutcomeCategory(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    Category
	}{
		{"never connected", Outcome{Connected: false, TimedOut: true}, CategoryConnectFailed},
		{"matched", Outcome{Connected: true, Matched: true}, CategoryMatched},
		{"matched wins over timeout", Outcome{Connected: true, Matched: true, TimedOut: true}, CategoryMatched},
		{"probe passed", Outcome{Connected: true, ProbePassed: true}, CategoryMatched},
		{"timed out", Outcome{Connected: true, TimedOut: true}, CategoryTimedOut},
		{"pending", Outcome{Connected: true}, CategoryPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.Category(); got != tt.want {
				t.Errorf("Category() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConnectRetriesExhausted(t *testing.T) {
	d := &fakeDialer{failures: 100}
	p := New(Identity{ID: "p-1", Rating: 1200}, testConfig(d))

	err := p.Connect(context.Background(), "ws://test", 3)
	if !errors.Is(err, ErrConnectExhausted) {
		t.Fatalf("expected ErrConnectExhausted, got %v", err)
	}
	if p.State() != StateFailed {
		t.Errorf("expected Failed, got %s", p.State())
	}
	if d.calls.Load() != 3 {
		t.Errorf("expected 3 dial attempts, got %d", d.calls.Load())
	}

	out := p.Outcome()
	if out.ConnectFailures != 3 {
		t.Errorf("expected 3 connect failures, got %d", out.ConnectFailures)
	}
	if out.ConnectionDrops != 0 {
		t.Errorf("refused dials are not simulated drops, got %d", out.ConnectionDrops)
	}
	if len(out.Errors) != 4 {
		t.Errorf("expected 3 attempt errors plus the final one, got %v", out.Errors)
	}

	if err := p.Connect(context.Background(), "ws://test", 1); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal after failure, got %v", err)
	}
}

func TestConnectSucceedsAfterRetries(t *testing.T) {
	d := &fakeDialer{failures: 2, conn: newFakeConn()}
	p := New(Identity{ID: "p-1"}, testConfig(d))

	if err := p.Connect(context.Background(), "ws://test", 3); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if p.State() != StateConnecting {
		t.Errorf("expected Connecting until authentication, got %s", p.State())
	}
	if p.Outcome().ConnectFailures != 2 {
		t.Errorf("expected 2 failures, got %d", p.Outcome().ConnectFailures)
	}
}

func TestConnectSimulatedDrop(t *testing.T) {
	sim := chaos.NewSimulator()
	sim.Apply(chaos.Profile{Name: "blackhole", PacketLoss: 1})

	d := &fakeDialer{conn: newFakeConn()}
	config := testConfig(d)
	config.Network = sim
	p := New(Identity{ID: "p-1"}, config)

	err := p.Connect(context.Background(), "ws://test", 2)
	if !errors.Is(err, ErrConnectExhausted) {
		t.Fatalf("expected ErrConnectExhausted, got %v", err)
	}
	if d.calls.Load() != 0 {
		t.Errorf("expected the dialer never to be reached, got %d calls", d.calls.Load())
	}
	out := p.Outcome()
	if out.ConnectionDrops != 2 || out.ConnectFailures != 2 {
		t.Errorf("expected 2 simulated drops and 2 failures, got %d and %d", out.ConnectionDrops, out.ConnectFailures)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{time.Second, 1, time.Second},
		{time.Second, 2, 2 * time.Second},
		{time.Second, 3, 4 * time.Second},
		{time.Second, 6, MaxBackoff},
		{time.Second, 64, MaxBackoff},
		{time.Second, 1000, MaxBackoff},
		{time.Minute, 1, MaxBackoff},
		{0, 5, 0},
	}

	for _, tt := range tests {
		if got := backoff(tt.base, tt.attempt); got != tt.want {
			t.Errorf("backoff(%v, %d) = %v, want %v", tt.base, tt.attempt, got, tt.want)
		}
	}
}

func TestAuthenticateAndQueueMessages(t *testing.T) {
	conn := newFakeConn()
	p := New(Identity{ID: "p-1", Rating: 1350, Region: "EU"}, testConfig(&fakeDialer{conn: conn}))
	ctx := context.Background()

	if err := p.Connect(ctx, "ws://test", 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := p.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if p.State() != StateAuthenticated {
		t.Errorf("expected Authenticated, got %s", p.State())
	}
	if err := p.EnterQueue(ctx, Preferences{Difficulty: "hard"}); err != nil {
		t.Fatalf("EnterQueue failed: %v", err)
	}
	if p.State() != StateQueued {
		t.Errorf("expected Queued, got %s", p.State())
	}

	sent := conn.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(sent))
	}

	auth, err := protocol.Decode(sent[0])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	a := auth.(protocol.Authenticate)
	if a.PlayerID != "p-1" || a.Rating != 1350 || a.Region != "EU" || a.Username != "LoadTestPlayer_p-1" {
		t.Errorf("unexpected AUTHENTICATE payload: %+v", a)
	}

	queue, _ := protocol.Decode(sent[1])
	if q := queue.(protocol.StartMatchmaking); q.PreferredDifficulty != "hard" {
		t.Errorf("unexpected START_MATCHMAKING payload: %+v", q)
	}
}

func TestAuthenticateSendFailure(t *testing.T) {
	conn := newFakeConn()
	p := New(Identity{ID: "p-1"}, testConfig(&fakeDialer{conn: conn}))
	ctx := context.Background()

	if err := p.Connect(ctx, "ws://test", 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	_ = conn.Close()

	if err := p.Authenticate(ctx); err == nil {
		t.Fatal("expected authenticate to fail on a closed connection")
	}
	if p.State() != StateFailed {
		t.Errorf("expected Failed, got %s", p.State())
	}
}

func TestSendSimulatedDropIsSilent(t *testing.T) {
	conn := newFakeConn()
	sim := chaos.NewSimulator()
	config := testConfig(&fakeDialer{conn: conn})
	config.Network = sim
	p := New(Identity{ID: "p-1"}, config)
	ctx := context.Background()

	if err := p.Connect(ctx, "ws://test", 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sim.Apply(chaos.Profile{Name: "blackhole", PacketLoss: 1})

	if err := p.SubmitAnswer(ctx, "g-1", 1, "Rose"); err != nil {
		t.Fatalf("expected a silent drop, got %v", err)
	}
	if len(conn.Sent()) != 0 {
		t.Error("expected nothing to reach the connection")
	}
	if p.Outcome().MessageDrops != 1 {
		t.Errorf("expected 1 message drop, got %d", p.Outcome().MessageDrops)
	}
}

func TestWaitForSkipsUndecodable(t *testing.T) {
	conn := newFakeConn(
		"invalid json {{{",
		`{"type":"SPECTATE"}`,
		`{"type":"QUEUE_UPDATE","data":{"position":2,"estimatedWaitTime":4}}`,
		`{"type":"ERROR","data":{"error":"slow down"}}`,
		`{"type":"MATCH_FOUND","data":{"gameId":"g-1","opponent":{"id":"p-2","rating":1250}}}`,
	)
	p := New(Identity{ID: "p-1", Rating: 1200}, testConfig(&fakeDialer{conn: conn}))
	ctx := context.Background()
	if err := p.Connect(ctx, "ws://test", 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	msg, err := p.WaitForMessageType(ctx, protocol.TypeMatchFound, time.Second)
	if err != nil {
		t.Fatalf("WaitForMessageType failed: %v", err)
	}
	if msg.(protocol.MatchFound).GameID != "g-1" {
		t.Errorf("unexpected message: %+v", msg)
	}

	out := p.Outcome()
	if out.DecodeErrors != 2 {
		t.Errorf("expected 2 decode errors, got %d", out.DecodeErrors)
	}
	if out.QueueUpdates != 1 {
		t.Errorf("expected 1 queue update, got %d", out.QueueUpdates)
	}
	if out.MessageTimeouts != 0 {
		t.Errorf("a wait that succeeds should not count as a timeout, got %d", out.MessageTimeouts)
	}
	found := false
	for _, e := range out.Errors {
		if strings.Contains(e, "slow down") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected server error to be recorded, got %v", out.Errors)
	}
}

func TestWaitForTimeout(t *testing.T) {
	conn := newFakeConn()
	p := New(Identity{ID: "p-1"}, testConfig(&fakeDialer{conn: conn}))
	ctx := context.Background()
	if err := p.Connect(ctx, "ws://test", 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	start := time.Now()
	_, err := p.WaitForMessageType(ctx, protocol.TypeMatchFound, 100*time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond || elapsed > time.Second {
		t.Errorf("unexpected wait duration %v", elapsed)
	}
	// 20ms ごとの受信待ちが何度切れても、期限切れは1回
	if got := p.Outcome().MessageTimeouts; got != 1 {
		t.Errorf("expected 1 message timeout, got %d", got)
	}

	if _, err := p.WaitForMessageType(ctx, protocol.TypeGameState, 50*time.Millisecond); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	if got := p.Outcome().MessageTimeouts; got != 2 {
		t.Errorf("expected 2 message timeouts, got %d", got)
	}
}

func TestWaitForDropDelaysButDoesNotLose(t *testing.T) {
	conn := newFakeConn(`{"type":"GAME_STATE","data":{"round":1,"plant":{"options":["Rose"]}}}`)
	sim := chaos.NewSimulator()
	config := testConfig(&fakeDialer{conn: conn})
	config.Network = sim
	p := New(Identity{ID: "p-1"}, config)
	ctx := context.Background()
	if err := p.Connect(ctx, "ws://test", 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sim.Apply(chaos.Profile{Name: "blackhole", PacketLoss: 1})
	if _, err := p.WaitForMessageType(ctx, protocol.TypeGameState, 50*time.Millisecond); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected timeout while every receive is dropped, got %v", err)
	}
	if p.Outcome().MessageDrops == 0 {
		t.Error("expected receive drops to be counted")
	}
	if p.Outcome().DecodeErrors != 0 {
		t.Error("drops must not count as protocol errors")
	}

	sim.Clear()
	msg, err := p.WaitForMessageType(ctx, protocol.TypeGameState, time.Second)
	if err != nil {
		t.Fatalf("expected the message to still be delivered, got %v", err)
	}
	if msg.(protocol.GameState).Round != 1 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestWaitForClosedConnection(t *testing.T) {
	conn := newFakeConn()
	p := New(Identity{ID: "p-1"}, testConfig(&fakeDialer{conn: conn}))
	ctx := context.Background()
	if err := p.Connect(ctx, "ws://test", 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	close(conn.inbound)

	start := time.Now()
	_, err := p.WaitForMessageType(ctx, protocol.TypeMatchFound, 5*time.Second)
	if err == nil {
		t.Fatal("expected an error on a closed connection")
	}
	if time.Since(start) > time.Second {
		t.Error("closed connection should end the wait early")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	conn := newFakeConn()
	p := New(Identity{ID: "p-1"}, testConfig(&fakeDialer{conn: conn}))
	if err := p.Connect(context.Background(), "ws://test", 1); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	p.Disconnect()
	p.Disconnect()

	if p.State() != StateDisconnected {
		t.Errorf("expected Disconnected, got %s", p.State())
	}
	if !conn.closed.Load() {
		t.Error("expected connection to be closed")
	}

	if _, err := p.WaitForMessageType(context.Background(), protocol.TypePing, 10*time.Millisecond); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	p := New(Identity{ID: "p-1"}, testConfig(&fakeDialer{panicOn: true}))

	plan := DefaultPlan("ws://test")
	out := p.Run(context.Background(), plan)

	if out.State != StateFailed {
		t.Errorf("expected Failed, got %s", out.State)
	}
	if out.Category() != CategoryConnectFailed {
		t.Errorf("expected connect_failed, got %s", out.Category())
	}
	if len(out.Errors) == 0 || !strings.Contains(out.Errors[len(out.Errors)-1], "panic") {
		t.Errorf("expected panic to be recorded, got %v", out.Errors)
	}
}

func TestRunConnectFailed(t *testing.T) {
	p := New(Identity{ID: "p-1"}, testConfig(&fakeDialer{failures: 10}))
	plan := DefaultPlan("ws://test")
	plan.MaxRetries = 2

	out := p.Run(context.Background(), plan)
	if out.Connected || out.Category() != CategoryConnectFailed {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if out.Completed() {
		t.Error("a failed connection is not a completed session")
	}
}

func TestChooseAnswer(t *testing.T) {
	options := []string{"Rose", "Tulip", "Daisy"}
	for range 100 {
		if got := chooseAnswer(options, 1); got != "Rose" {
			t.Fatalf("accuracy 1 must pick the first option, got %s", got)
		}
	}
	if chooseAnswer(nil, 1) != "" {
		t.Error("expected empty answer for no options")
	}
}

func TestPlanValidate(t *testing.T) {
	valid := DefaultPlan("ws://localhost:3001")
	if err := valid.Validate(); err != nil {
		t.Fatalf("default plan invalid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Plan)
	}{
		{"no endpoint", func(p *Plan) { p.Endpoint = "" }},
		{"no retries", func(p *Plan) { p.MaxRetries = 0 }},
		{"hold inverted", func(p *Plan) { p.HoldMax = 0 }},
		{"accuracy out of range", func(p *Plan) { p.AnswerAccuracy = 2 }},
		{"game without rounds", func(p *Plan) { p.Kind = KindGame; p.Rounds = 0 }},
		{"reconnect after last round", func(p *Plan) { p.Kind = KindGame; p.ReconnectAfterRound = 5 }},
		{"unknown probe", func(p *Plan) { p.Kind = KindProbe; p.Probe = "teleport" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := DefaultPlan("ws://localhost:3001")
			tt.modify(&plan)
			if err := plan.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestOutcomeJSON(t *testing.T) {
	out := Outcome{ID: "p-1", Connected: true, Matched: true, Opponent: &protocol.Opponent{ID: "p-2", Rating: 1300}}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"opponent":{"id":"p-2","rating":1300}`) {
		t.Errorf("unexpected JSON: %s", data)
	}
}
