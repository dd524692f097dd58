package player

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"battle-loadtest/internal/logger"
	"battle-loadtest/internal/protocol"
)

// Run はプランに従って1セッションを実行し、必ず結果を返す。
// パニックは回収して Failed として記録する
func (p *Player) Run(ctx context.Context, plan Plan) (out Outcome) {
	start := time.Now()
	p.plan.Store(&plan)

	defer func() {
		if r := recover(); r != nil {
			p.recordError(fmt.Errorf("panic: %v", r))
			p.setState(StateFailed)
			logger.Error(p.identity.ID, "Lifecycle panicked: %v", r)
		}
		p.Disconnect()
		out = p.Outcome()
		out.Kind = plan.Kind
		out.Duration = time.Since(start)
	}()

	p.autoReconnect = plan.ReconnectOnLoss
	if plan.Kind == KindProbe {
		p.probe = plan.Probe
	}

	if err := p.Connect(ctx, plan.Endpoint, plan.MaxRetries); err != nil {
		p.markIfCancelled(ctx)
		return
	}

	var err error
	switch plan.Kind {
	case KindProbe:
		err = p.runProbe(ctx, plan)
	default:
		err = p.runMatchmaking(ctx, plan)
	}

	if err != nil {
		p.markIfCancelled(ctx)
		if !p.State().IsTerminal() {
			p.fail(err)
		}
	}
	return
}

// markIfCancelled はシナリオの期限切れを時間切れとして記録する
func (p *Player) markIfCancelled(ctx context.Context) {
	if ctx.Err() == nil {
		return
	}
	p.cancelled = true
	if !p.matched.Load() {
		p.timedOut = true
	}
	if !p.State().IsTerminal() {
		p.fail(fmt.Errorf("scenario deadline: %w", ctx.Err()))
	}
}

// runMatchmaking は認証からマッチ待ち、必要ならゲームまでを進める
func (p *Player) runMatchmaking(ctx context.Context, plan Plan) error {
	if err := p.Authenticate(ctx); err != nil {
		return err
	}
	if err := p.EnterQueue(ctx, Preferences{Difficulty: plan.Difficulty}); err != nil {
		return err
	}

	if plan.Kind == KindQuickExit || p.identity.Role == RoleQuickExit {
		return p.quickExit(ctx, plan)
	}

	matched, err := p.awaitMatch(ctx, plan.MatchTimeout)
	if err != nil {
		return err
	}
	if !matched {
		p.timedOut = true
		p.setState(StateCompleted)
		return nil
	}

	if plan.Kind == KindGame {
		return p.playGame(ctx, plan)
	}

	// マッチ後しばらく接続を維持する。期限切れで中断しても失敗ではない
	_ = sleepCtx(ctx, randBetween(plan.HoldMin, plan.HoldMax))
	p.setState(StateCompleted)
	return nil
}

// awaitMatch は MATCH_FOUND か MATCHMAKING_TIMEOUT を待つ
func (p *Player) awaitMatch(ctx context.Context, timeout time.Duration) (bool, error) {
	msg, err := p.WaitFor(ctx, timeout, OfType(protocol.TypeMatchFound, protocol.TypeMatchmakingTimeout))
	switch {
	case errors.Is(err, ErrWaitTimeout):
		logger.Debug(p.identity.ID, "No match within %v", timeout)
		return false, nil
	case err != nil:
		return false, err
	}

	mf, ok := msg.(protocol.MatchFound)
	if !ok {
		logger.Debug(p.identity.ID, "Matchmaking timed out on the server")
		return false, nil
	}

	p.onMatch(mf)
	return true, nil
}

// onMatch はマッチ成立を記録する
func (p *Player) onMatch(mf protocol.MatchFound) {
	p.matchFoundAt = time.Now()
	p.gameID = mf.GameID
	opp := mf.Opponent
	p.opponent = &opp
	p.matched.Store(true)
	p.setState(StateMatched)
	logger.Debug(p.identity.ID, "Matched with %s (rating %d) in game %s", opp.ID, opp.Rating, mf.GameID)
}

// quickExit はキューに入ってすぐ離脱する
func (p *Player) quickExit(ctx context.Context, plan Plan) error {
	stay := randBetween(plan.QuickExitMin, plan.QuickExitMax)
	matched, err := p.awaitMatch(ctx, stay)
	if err != nil {
		return err
	}
	if !matched {
		logger.Debug(p.identity.ID, "Leaving the queue after %v", stay)
	}
	p.setState(StateCompleted)
	return nil
}

// playGame はラウンドを順に進め、最後に GAME_COMPLETED を待つ
func (p *Player) playGame(ctx context.Context, plan Plan) error {
	p.setState(StateInGame)

	for round := 1; round <= plan.Rounds; round++ {
		if plan.ReconnectAfterRound > 0 && round == plan.ReconnectAfterRound+1 {
			if err := p.dropAndRejoin(ctx, plan.ReconnectDelay); err != nil {
				return err
			}
		}

		played, err := p.playRound(ctx, plan, round)
		if err != nil {
			return err
		}
		if played && p.reconnected && round > plan.ReconnectAfterRound {
			p.resumedRound = true
		}
	}

	_, err := p.WaitForMessageType(ctx, protocol.TypeGameCompleted, plan.CompletionTimeout)
	switch {
	case err == nil:
		p.gameCompleted = true
	case errors.Is(err, ErrWaitTimeout):
		p.recordError(fmt.Errorf("no GAME_COMPLETED within %v", plan.CompletionTimeout))
	default:
		return err
	}

	p.setState(StateCompleted)
	return nil
}

// playRound は1ラウンドを進める。ROUND_RESULT を受け取れたら true を返す
func (p *Player) playRound(ctx context.Context, plan Plan, round int) (bool, error) {
	msg, err := p.WaitFor(ctx, plan.RoundTimeout, func(m protocol.Message) bool {
		gs, ok := m.(protocol.GameState)
		return ok && gs.Round >= round
	})
	if errors.Is(err, ErrWaitTimeout) {
		p.recordError(fmt.Errorf("round %d: no GAME_STATE within %v", round, plan.RoundTimeout))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	state := msg.(protocol.GameState)
	answer := chooseAnswer(state.Plant.Options, plan.AnswerAccuracy)
	if err := sleepCtx(ctx, randBetween(0, plan.AnswerDelay)); err != nil {
		return false, err
	}
	if err := p.SubmitAnswer(ctx, p.gameID, state.Round, answer); err != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}
	p.roundsPlayed++

	msg, err = p.WaitFor(ctx, plan.RoundTimeout, func(m protocol.Message) bool {
		rr, ok := m.(protocol.RoundResult)
		return ok && rr.Round == state.Round
	})
	if errors.Is(err, ErrWaitTimeout) {
		p.recordError(fmt.Errorf("round %d: no ROUND_RESULT within %v", state.Round, plan.RoundTimeout))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	p.roundsSolved++
	if msg.(protocol.RoundResult).Winner == p.identity.ID {
		p.score++
	}
	return true, nil
}

// dropAndRejoin はゲーム中に切断し、delay 後に再接続する
func (p *Player) dropAndRejoin(ctx context.Context, delay time.Duration) error {
	logger.Info(p.identity.ID, "Disconnecting mid-game")
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	if err := sleepCtx(ctx, delay); err != nil {
		return err
	}
	if err := p.Reconnect(ctx); err != nil {
		return err
	}
	p.reconnected = true
	return nil
}

// chooseAnswer は accuracy の確率で最初の選択肢を、それ以外はランダムに選ぶ
func chooseAnswer(options []string, accuracy float64) string {
	if len(options) == 0 {
		return ""
	}
	if rand.Float64() < accuracy {
		return options[0]
	}
	return options[rand.Intn(len(options))]
}

// randBetween は [lo, hi] の一様乱数を返す
func randBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}
