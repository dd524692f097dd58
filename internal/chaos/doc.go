// Package chaos はネットワーク状態の模擬とその切り替えを提供する。
//
// Simulator はアクティブなプロファイルを1つ持ち、送受信ごとに
// 遅延（基本遅延 + 一様分布の揺らぎ）と損失（独立したベルヌーイ試行）を決める。
// プロファイルは atomic.Pointer による丸ごとの差し替えで更新される。
//
// Monkey はシナリオ実行中に Simulator のプロファイルを切り替える。
//
// # プロファイル
//
// perfect, good_wifi, poor_wifi, mobile_4g, mobile_3g,
// poor_mobile, intermittent, high_latency
//
// # 使用例
//
//	sim := chaos.NewSimulator()
//	p, _ := chaos.Preset("poor_wifi")
//	sim.Apply(p)
//
//	config := chaos.DefaultConfig()
//	config.Schedule = []chaos.Switch{{After: 30 * time.Second, Profile: "intermittent"}}
//
//	monkey := chaos.New(sim, config)
//	monkey.Start(ctx)
//	defer monkey.Stop()
package chaos
