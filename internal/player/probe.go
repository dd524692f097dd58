package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"battle-loadtest/internal/logger"
	"battle-loadtest/internal/protocol"
)

// ProbeKind は接続診断の種類
type ProbeKind string

const (
	ProbeConnect      ProbeKind = "connect"
	ProbeEcho         ProbeKind = "echo"
	ProbePing         ProbeKind = "ping"
	ProbeThroughput   ProbeKind = "throughput"
	ProbeRecovery     ProbeKind = "recovery"
	ProbeMalformed    ProbeKind = "malformed"
	ProbeLargeMessage ProbeKind = "large_message"
)

// ThroughputAckRatio はスループット診断の合格に必要な ACK の割合
const ThroughputAckRatio = 0.95

// LargeMessageSize は大きなメッセージ診断のペイロード長
const LargeMessageSize = 10000

const (
	malformedFrame = "invalid json {{{"
	ackIdleTimeout = time.Second
)

// AllProbes は全ての診断を返す
func AllProbes() []ProbeKind {
	return []ProbeKind{
		ProbeConnect, ProbeEcho, ProbePing, ProbeThroughput,
		ProbeRecovery, ProbeMalformed, ProbeLargeMessage,
	}
}

// ParseProbeKind は文字列から ProbeKind を得る
func ParseProbeKind(s string) (ProbeKind, error) {
	for _, k := range AllProbes() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown probe %q", s)
}

// ProbeResult は1回の診断の結果
type ProbeResult struct {
	Kind      ProbeKind
	Passed    bool
	Sent      int
	Acked     int
	RoundTrip time.Duration
}

// runProbe は Run から呼ばれ、診断結果をプレイヤーに記録する
func (p *Player) runProbe(ctx context.Context, plan Plan) error {
	res, err := p.Probe(ctx, plan.Probe, plan.ProbeCount, plan.ProbeTimeout, plan.ReconnectDelay)
	p.probePassed = res.Passed
	p.probeSent = res.Sent
	p.probeAcked = res.Acked
	if err != nil {
		return err
	}
	if !res.Passed {
		p.timedOut = true
	}
	p.setState(StateCompleted)
	return nil
}

// Probe は接続済みの状態で診断を1つ実行する。
// 期待した応答がないことは err ではなく Passed=false で表す
func (p *Player) Probe(ctx context.Context, kind ProbeKind, count int, timeout, reconnectDelay time.Duration) (ProbeResult, error) {
	res := ProbeResult{Kind: kind}
	start := time.Now()

	var err error
	switch kind {
	case ProbeConnect:
		res.Passed = p.conn != nil
	case ProbeEcho:
		res.Passed, err = p.probeRoundTrip(ctx, protocol.EchoRequest{
			Message:   "Hello WebSocket",
			Timestamp: float64(time.Now().UnixNano()) / 1e9,
		}, OfType(protocol.TypeEchoResponse), timeout)
	case ProbePing:
		res.Passed, err = p.probeRoundTrip(ctx, protocol.Ping{}, anyMessage, timeout)
	case ProbeThroughput:
		res.Sent, res.Acked, err = p.probeThroughput(ctx, count)
		res.Passed = res.Sent > 0 && float64(res.Acked) >= float64(res.Sent)*ThroughputAckRatio
	case ProbeRecovery:
		res.Passed, err = p.probeRecovery(ctx, timeout, reconnectDelay)
	case ProbeMalformed:
		res.Passed, err = p.probeMalformed(ctx, timeout)
	case ProbeLargeMessage:
		res.Passed, err = p.probeRoundTrip(ctx, protocol.LargeMessageTest{
			Content: strings.Repeat("x", LargeMessageSize),
		}, anyMessage, 2*timeout, protocol.TypeLargeMessageAck, protocol.TypeError)
	default:
		return res, fmt.Errorf("unknown probe %q", kind)
	}

	res.RoundTrip = time.Since(start)
	if err != nil {
		p.recordError(fmt.Errorf("probe %s: %w", kind, err))
	}
	logger.Debug(p.identity.ID, "Probe %s passed=%v", kind, res.Passed)
	return res, err
}

func anyMessage(protocol.Message) bool { return true }

// probeRoundTrip は m を送り pred に一致する応答を待つ。
// accept を指定した場合は最初の応答の型がそのいずれかであることを求める
func (p *Player) probeRoundTrip(ctx context.Context, m protocol.Message, pred Predicate, timeout time.Duration, accept ...protocol.Type) (bool, error) {
	if err := p.send(ctx, m); err != nil {
		return false, err
	}

	reply, err := p.WaitFor(ctx, timeout, pred)
	if errors.Is(err, ErrWaitTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(accept) == 0 {
		return true, nil
	}
	return OfType(accept...)(reply), nil
}

// probeThroughput は count 件を連続送信し、ACK が途切れるまで数える
func (p *Player) probeThroughput(ctx context.Context, count int) (int, int, error) {
	if count <= 0 {
		count = 100
	}

	for i := range count {
		if err := p.send(ctx, protocol.ThroughputTest{
			MessageID: i,
			Timestamp: float64(time.Now().UnixNano()) / 1e9,
		}); err != nil {
			return i, 0, err
		}
	}

	acked := 0
	for acked < count {
		_, err := p.WaitForMessageType(ctx, protocol.TypeThroughputAck, ackIdleTimeout)
		if errors.Is(err, ErrWaitTimeout) {
			break
		}
		if err != nil {
			return count, acked, err
		}
		acked++
	}
	return count, acked, nil
}

// probeRecovery は一度切断してから再接続し、PING が通るかを確認する
func (p *Player) probeRecovery(ctx context.Context, timeout, delay time.Duration) (bool, error) {
	ok, err := p.probeRoundTrip(ctx, protocol.Ping{}, anyMessage, timeout)
	if err != nil || !ok {
		return false, err
	}

	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	if err := sleepCtx(ctx, delay); err != nil {
		return false, err
	}
	if err := p.Connect(ctx, p.endpoint, p.maxRetries); err != nil {
		return false, err
	}
	p.reconnections++
	p.reconnected = true

	return p.probeRoundTrip(ctx, protocol.Ping{}, anyMessage, timeout)
}

// probeMalformed は壊れたフレームを送る。ERROR が返るか無応答なら合格
func (p *Player) probeMalformed(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := p.sendFrame(ctx, []byte(malformedFrame)); err != nil {
		return false, err
	}

	reply, err := p.WaitFor(ctx, timeout, anyMessage)
	if errors.Is(err, ErrWaitTimeout) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return reply.Type() == protocol.TypeError, nil
}
