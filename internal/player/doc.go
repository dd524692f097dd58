// Package player は仮想プレイヤー（1セッション分の模擬クライアント）を提供する。
//
// Player は接続、認証、キュー投入、マッチ待ち、ゲーム進行、切断までの
// ライフサイクルを自分のゴルーチンだけで進める。全ての待ちには上限があり、
// 失敗はパニックも含めて Outcome に畳み込まれ、呼び出し元には伝播しない。
//
// # 状態遷移
//
//	Disconnected -> Connecting -> Authenticated -> Queued -> Matched -> InGame -> Completed
//	                    任意の回復不能な失敗 -> Failed
//
// # 待ち受け
//
// WaitFor は条件に一致する最初のメッセージを期限まで待つ唯一の仕組みで、
// MATCH_FOUND や GAME_STATE などを待つ全ての処理がこれを使う。
// ネットワーク模擬で落とした受信は「まだ届いていない」として扱われる。
//
// # 使用例
//
//	p := player.New(player.Identity{ID: "p-1", Rating: 1200}, player.DefaultConfig())
//	out := p.Run(ctx, player.DefaultPlan("ws://localhost:3001"))
//	fmt.Println(out.Category())
package player
