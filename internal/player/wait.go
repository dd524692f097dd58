package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"battle-loadtest/internal/logger"
	"battle-loadtest/internal/protocol"
	"battle-loadtest/internal/transport"
)

// Predicate は待ち受けるメッセージを選ぶ
type Predicate func(protocol.Message) bool

// OfType は指定した型のいずれかに一致する Predicate を返す
func OfType(types ...protocol.Type) Predicate {
	return func(m protocol.Message) bool {
		for _, t := range types {
			if m.Type() == t {
				return true
			}
		}
		return false
	}
}

// WaitFor は pred に一致する最初のメッセージを timeout まで待つ。
// 受信試行ごとにネットワーク模擬を適用し、落とした場合は
// 「まだ届いていない」として扱う。壊れたメッセージは記録して読み飛ばす。
// 期限切れは1回の待ちにつき1回だけ数える
func (p *Player) WaitFor(ctx context.Context, timeout time.Duration, pred Predicate) (protocol.Message, error) {
	msg, err := p.waitFor(ctx, timeout, pred)
	if errors.Is(err, ErrWaitTimeout) {
		p.messageTimeouts++
	}
	return msg, err
}

func (p *Player) waitFor(ctx context.Context, timeout time.Duration, pred Predicate) (protocol.Message, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrWaitTimeout
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.conn == nil {
			return nil, ErrNotConnected
		}

		if err := p.config.Network.Wait(ctx, 0); err != nil {
			return nil, err
		}
		if p.config.Network.ShouldDrop() {
			p.messageDrops++
			logger.Debug(p.identity.ID, "Simulated drop (receive)")
			if err := sleepCtx(ctx, min(p.config.DropPause, time.Until(deadline))); err != nil {
				return nil, err
			}
			continue
		}

		poll := min(p.config.PollInterval, time.Until(deadline))
		if poll <= 0 {
			return nil, ErrWaitTimeout
		}

		frame, err := p.conn.Receive(ctx, poll)
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrReceiveTimeout):
			continue
		case errors.Is(err, transport.ErrClosed):
			if p.autoReconnect {
				logger.Info(p.identity.ID, "Connection lost, attempting reconnection")
				if rerr := p.Reconnect(ctx); rerr == nil {
					continue
				}
			}
			p.recordError(fmt.Errorf("connection lost: %w", err))
			return nil, err
		default:
			return nil, err
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			p.decodeErrors++
			p.recordError(err)
			logger.Debug(p.identity.ID, "Ignoring undecodable message: %v", err)
			continue
		}

		if pred(msg) {
			return msg, nil
		}
		p.observe(msg)
	}
}

// WaitForMessageType は指定した型のメッセージを待つ
func (p *Player) WaitForMessageType(ctx context.Context, typ protocol.Type, timeout time.Duration) (protocol.Message, error) {
	return p.WaitFor(ctx, timeout, OfType(typ))
}

// observe は待ち受け対象外のメッセージを処理する
func (p *Player) observe(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.QueueUpdate:
		p.queueUpdates++
		logger.Debug(p.identity.ID, "Queue position %d (est. %.1fs)", m.Position, m.EstimatedWaitTime)
	case protocol.ErrorMessage:
		p.recordError(fmt.Errorf("server error: %s", m.Description()))
		logger.Debug(p.identity.ID, "Server error: %s", m.Description())
	}
}
