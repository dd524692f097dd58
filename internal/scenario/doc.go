// Package scenario はシナリオ実行機能を提供する。
//
// シナリオエンジンは負荷パターン（loadgen）、ネットワーク状態の切り替え（chaos）、
// 集計（metrics）、判定（verdict）を連携させて1つの負荷試験を実行する。
//
// # 機能
//
// - シナリオ定義と実行
// - 定義済みプリセットシナリオとスイート
// - 実行結果のレポート生成
//
// # スイート
//
// - connectivity: 接続診断（接続、エコー、同時ping、スループット、復旧、不正入力、大きなメッセージ）
// - load: 同時接続、ランプアップ、繰り返しバースト、持続負荷
// - matchmaking: 精度、キュー管理、レーティング幅、公平性、チャーン
// - game: ゲーム進行、同時対戦、切断からの復帰、同レーティング対戦
// - network: 理想回線、劣悪回線、断続的な回線、回線の種類ごと
// - smoke: モックサーバー向けの短時間の動作確認
// - all: smoke 以外の全て
//
// # 使用例
//
//	config, _ := scenario.GetPreset("mm-accuracy")
//	engine := scenario.New(config, "ws://localhost:3001")
//	result, err := engine.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Report())
package scenario
