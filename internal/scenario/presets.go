package scenario

import (
	"fmt"
	"sort"
	"time"

	"battle-loadtest/internal/chaos"
	"battle-loadtest/internal/loadgen"
	"battle-loadtest/internal/player"
	"battle-loadtest/internal/population"
	"battle-loadtest/internal/verdict"
)

var difficulties = []string{"easy", "medium", "hard"}

// base は共通のシナリオ設定を作る
func base(name, description string, kind verdict.Kind, pattern loadgen.Pattern, players int) Config {
	c := DefaultConfig()
	c.Name = name
	c.Description = description
	c.Kind = kind
	c.Load.Name = name
	c.Load.Pattern = pattern
	c.Load.Players = players
	c.Load.Prefix = name
	return c
}

func queuePlan(matchTimeout time.Duration) player.Plan {
	plan := player.DefaultPlan("")
	plan.MatchTimeout = matchTimeout
	return plan
}

func gamePlan() player.Plan {
	plan := player.DefaultPlan("")
	plan.Kind = player.KindGame
	plan.MatchTimeout = 30 * time.Second
	plan.RoundTimeout = 30 * time.Second
	plan.CompletionTimeout = 15 * time.Second
	return plan
}

func probePlan(kind player.ProbeKind) player.Plan {
	plan := player.DefaultPlan("")
	plan.Kind = player.KindProbe
	plan.Probe = kind
	return plan
}

// --- 負荷テスト ---

// ConcurrentScenario は players 人が同時に接続してマッチングする
func ConcurrentScenario(players int) Config {
	c := base(fmt.Sprintf("load-concurrent-%d", players),
		fmt.Sprintf("%d players connect and queue at once", players),
		verdict.KindLoad, loadgen.PatternBurst, players)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistUniform, Min: 800, Max: 1600}
	c.Load.Cohort.Difficulties = difficulties
	c.Load.Timeout = 2 * time.Minute
	c.Plan = queuePlan(60 * time.Second)
	return c
}

// RampScenario は30秒かけて100人まで増やす
func RampScenario() Config {
	c := base("load-ramp", "Gradual ramp-up to 100 players over 30s",
		verdict.KindLoad, loadgen.PatternRamp, 100)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistUniform, Min: 800, Max: 1600}
	c.Load.Cohort.Difficulties = difficulties
	c.Load.RampDuration = 30 * time.Second
	c.Load.Tick = time.Second
	c.Load.Timeout = 3 * time.Minute
	c.Plan = queuePlan(60 * time.Second)
	return c
}

// BurstLoadScenario は50人のバーストを10秒間隔で3回行う
func BurstLoadScenario() Config {
	c := base("load-bursts", "3 bursts of 50 players every 10s",
		verdict.KindLoad, loadgen.PatternRepeatedBursts, 50)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistUniform, Min: 800, Max: 1600}
	c.Load.Cohort.Difficulties = difficulties
	c.Load.Bursts = 3
	c.Load.BurstGap = 10 * time.Second
	c.Load.Timeout = 6 * time.Minute
	c.Plan = queuePlan(60 * time.Second)
	return c
}

// SustainedScenario は20セッションを2分間回し続ける
func SustainedScenario() Config {
	c := base("load-sustained", "20 concurrent sessions for 2 minutes",
		verdict.KindLoad, loadgen.PatternSustained, 20)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistUniform, Min: 800, Max: 1600}
	c.Load.Cohort.Difficulties = difficulties
	c.Load.SessionDuration = 2 * time.Minute
	c.Load.ThinkMin = 10 * time.Second
	c.Load.ThinkMax = 30 * time.Second
	c.Load.Timeout = 4 * time.Minute
	c.Plan = queuePlan(60 * time.Second)
	return c
}

// --- マッチメイキング ---

// AccuracyScenario は現実的なレーティング分布でマッチングの精度を見る
func AccuracyScenario() Config {
	c := base("mm-accuracy", "Matchmaking accuracy over a realistic rating distribution",
		verdict.KindAccuracy, loadgen.PatternBurst, 50)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistRealistic}
	c.Load.Cohort.Region = "US"
	c.Load.Timeout = 3 * time.Minute
	c.Plan = queuePlan(120 * time.Second)
	c.Plan.Difficulty = "medium"
	c.Plan.HoldMin, c.Plan.HoldMax = 0, 0
	return c
}

// QueueManagementScenario は50人ずつの波でキューに入れる。
// 各波の結果が揃ってから2秒おいて次の波を起動する
func QueueManagementScenario() Config {
	c := base("mm-queue", "Queue management under waves of 50 players",
		verdict.KindQueueLoad, loadgen.PatternRepeatedBursts, 50)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistRealistic}
	c.Load.Bursts = 2
	c.Load.BurstGap = 2 * time.Second
	c.Load.Timeout = 2 * time.Minute
	c.Plan = queuePlan(60 * time.Second)
	c.Plan.HoldMin, c.Plan.HoldMax = 0, 0
	return c
}

// RatingRangeScenario は決まったレーティングの6人でマッチングの差を見る
func RatingRangeScenario(variant string) (Config, bool) {
	ratings := map[string][]int{
		"tight":    {1200, 1205, 1210, 1215, 1220, 1225},
		"wide":     {800, 1000, 1200, 1400, 1600, 1800},
		"outliers": {1200, 1200, 1200, 1200, 800, 1800},
	}
	values, ok := ratings[variant]
	if !ok {
		return Config{}, false
	}

	c := base("mm-range-"+variant, fmt.Sprintf("Rating range matching (%s)", variant),
		verdict.KindRatingRange, loadgen.PatternBurst, len(values))
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistExplicit, Values: values}
	c.Load.Timeout = time.Minute
	c.Plan = queuePlan(30 * time.Second)
	c.Plan.HoldMin, c.Plan.HoldMax = 0, 0
	return c, true
}

// FairnessScenario は3つのレーティング帯を同数ずつ入れてマッチ率の偏りを見る
func FairnessScenario() Config {
	c := base("mm-fairness", "Queue fairness across low, medium and high rating buckets",
		verdict.KindFairness, loadgen.PatternBurst, 60)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistBucketed}
	c.Load.Timeout = 2 * time.Minute
	c.Plan = queuePlan(60 * time.Second)
	c.Plan.HoldMin, c.Plan.HoldMax = 0, 0
	return c
}

// ChurnScenario は20〜50人のバーストを5回行い、半数を早期離脱させる
func ChurnScenario() Config {
	c := base("mm-churn", "Rapid queue churn with quick-exit players",
		verdict.KindChurn, loadgen.PatternRepeatedBursts, 0)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistUniform, Min: 1000, Max: 1400}
	c.Load.Cohort.QuickExitShare = 0.5
	c.Load.Bursts = 5
	c.Load.BurstMin, c.Load.BurstMax = 20, 50
	c.Load.BurstGap = time.Second
	c.Load.Timeout = 5 * time.Minute
	c.Plan = queuePlan(30 * time.Second)
	c.Plan.HoldMin, c.Plan.HoldMax = 0, 0
	return c
}

// --- ゲーム ---

// GameFlowScenario は2人で5ラウンドのゲームを最後まで行う
func GameFlowScenario() Config {
	c := base("game-flow", "Standard 5-round game between two players",
		verdict.KindGame, loadgen.PatternBurst, 2)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistExplicit, Values: []int{1200, 1250}}
	c.Load.Timeout = 5 * time.Minute
	c.Plan = gamePlan()
	return c
}

// SimultaneousGamesScenario は3試合を同時に進める
func SimultaneousGamesScenario() Config {
	c := base("game-simultaneous", "Three games played at the same time",
		verdict.KindGame, loadgen.PatternBurst, 6)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistExplicit, Values: []int{1200, 1200, 1300, 1300, 1400, 1400}}
	c.Load.Timeout = 5 * time.Minute
	c.Plan = gamePlan()
	return c
}

// TieBreakerScenario は同じレーティングの2人で対戦する
func TieBreakerScenario() Config {
	c := base("game-tie", "Game between two equally rated players",
		verdict.KindGame, loadgen.PatternBurst, 2)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistFixed, Value: 1200}
	c.Load.Timeout = 5 * time.Minute
	c.Plan = gamePlan()
	c.Plan.AnswerAccuracy = 1
	return c
}

// RecoveryScenario は2ラウンド後に切断し、再接続してゲームを続ける
func RecoveryScenario() Config {
	c := base("game-recovery", "Disconnect after round 2 and rejoin the game",
		verdict.KindRecovery, loadgen.PatternBurst, 2)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistExplicit, Values: []int{1200, 1250}}
	c.Load.Timeout = 5 * time.Minute
	c.Plan = gamePlan()
	c.Plan.ReconnectAfterRound = 2
	c.Plan.ReconnectDelay = 3 * time.Second
	return c
}

// --- ネットワーク ---

// BaselineScenario は理想的なネットワークで2人をマッチングさせる
func BaselineScenario() Config {
	c := base("net-baseline", "Matchmaking under a perfect network",
		verdict.KindNetwork, loadgen.PatternBurst, 2)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistUniform, Min: 1000, Max: 1500}
	c.Load.Timeout = time.Minute
	c.Network.Profile = "perfect"
	c.Plan = queuePlan(30 * time.Second)
	c.Plan.HoldMin, c.Plan.HoldMax = 0, 0
	return c
}

// PoorNetworkScenario は poor_mobile で5回まで接続を試みる
func PoorNetworkScenario() Config {
	c := base("net-poor", "Matchmaking under poor mobile conditions with retries",
		verdict.KindNetwork, loadgen.PatternBurst, 2)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistUniform, Min: 1000, Max: 1500}
	c.Load.Timeout = 2 * time.Minute
	c.Network.Profile = "poor_mobile"
	c.Plan = queuePlan(60 * time.Second)
	c.Plan.MaxRetries = 5
	c.Plan.HoldMin, c.Plan.HoldMax = 0, 0
	return c
}

// IntermittentScenario は good_wifi で開始し、ゲーム中に intermittent に切り替える
func IntermittentScenario() Config {
	c := base("net-intermittent", "Game continues after switching to intermittent connectivity",
		verdict.KindGame, loadgen.PatternBurst, 2)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistUniform, Min: 1000, Max: 1500}
	c.Load.Timeout = 5 * time.Minute
	c.Network.Profile = "good_wifi"
	c.Network.Schedule = []chaos.Switch{{After: 3 * time.Second, Profile: "intermittent"}}
	c.Plan = gamePlan()
	c.Plan.ReconnectOnLoss = true
	c.Plan.RoundTimeout = 60 * time.Second
	return c
}

// VaryingConditionsScenario は全プロファイルで2人ずつマッチングさせる
func VaryingConditionsScenario() Config {
	profiles := chaos.ListProfiles()
	c := base("net-varying", "Two players per network profile, one profile per burst",
		verdict.KindNetwork, loadgen.PatternRepeatedBursts, 2)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistUniform, Min: 1000, Max: 1500}
	c.Load.Bursts = len(profiles)
	c.Load.BurstGap = time.Second
	c.Load.Timeout = 10 * time.Minute
	c.Network.PerBurst = profiles
	c.Plan = queuePlan(30 * time.Second)
	c.Plan.HoldMin, c.Plan.HoldMax = 0, 0
	return c
}

// --- 接続診断 ---

// DiagnosticScenario は1種類の接続診断を行う
func DiagnosticScenario(kind player.ProbeKind) Config {
	players := 1
	if kind == player.ProbePing {
		players = 10
	}
	c := base("diag-"+string(kind), fmt.Sprintf("Connectivity diagnostic: %s", kind),
		verdict.KindDiagnostic, loadgen.PatternBurst, players)
	c.Load.Cohort.Ratings = population.RatingSpec{Distribution: population.DistFixed, Value: 1200}
	c.Load.Timeout = time.Minute
	c.Plan = probePlan(kind)
	return c
}

// --- 動作確認 ---

// QuickScenario はモックサーバー向けの短時間の動作確認
func QuickScenario() Config {
	c := base("quick", "Quick burst of 10 players for verification",
		verdict.KindLoad, loadgen.PatternBurst, 10)
	c.Load.Timeout = 30 * time.Second
	c.Plan = queuePlan(10 * time.Second)
	c.Plan.HoldMin, c.Plan.HoldMax = 0, 0
	return c
}

// QuickGameScenario は短いゲームの動作確認
func QuickGameScenario() Config {
	c := GameFlowScenario()
	c.Name = "quick-game"
	c.Load.Prefix = "quick-game"
	c.Description = "Quick two-player game for verification"
	c.Load.Timeout = time.Minute
	c.Plan.RoundTimeout = 5 * time.Second
	c.Plan.CompletionTimeout = 5 * time.Second
	return c
}

var presets = map[string]func() Config{
	"load-concurrent-50":  func() Config { return ConcurrentScenario(50) },
	"load-concurrent-100": func() Config { return ConcurrentScenario(100) },
	"load-ramp":           RampScenario,
	"load-bursts":         BurstLoadScenario,
	"load-sustained":      SustainedScenario,
	"mm-accuracy":         AccuracyScenario,
	"mm-queue":            QueueManagementScenario,
	"mm-range-tight":      func() Config { c, _ := RatingRangeScenario("tight"); return c },
	"mm-range-wide":       func() Config { c, _ := RatingRangeScenario("wide"); return c },
	"mm-range-outliers":   func() Config { c, _ := RatingRangeScenario("outliers"); return c },
	"mm-fairness":         FairnessScenario,
	"mm-churn":            ChurnScenario,
	"game-flow":           GameFlowScenario,
	"game-simultaneous":   SimultaneousGamesScenario,
	"game-tie":            TieBreakerScenario,
	"game-recovery":       RecoveryScenario,
	"net-baseline":        BaselineScenario,
	"net-poor":            PoorNetworkScenario,
	"net-intermittent":    IntermittentScenario,
	"net-varying":         VaryingConditionsScenario,
	"quick":               QuickScenario,
	"quick-game":          QuickGameScenario,
}

func init() {
	for _, kind := range player.AllProbes() {
		presets["diag-"+string(kind)] = func() Config { return DiagnosticScenario(kind) }
	}
}

// GetPreset は名前からプリセットシナリオを取得する
func GetPreset(name string) (Config, bool) {
	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Config{}, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var suites = map[string][]string{
	"connectivity": {
		"diag-connect", "diag-echo", "diag-ping", "diag-throughput",
		"diag-recovery", "diag-malformed", "diag-large_message",
	},
	"load": {
		"load-concurrent-50", "load-concurrent-100", "load-ramp", "load-bursts", "load-sustained",
	},
	"matchmaking": {
		"mm-accuracy", "mm-queue", "mm-range-tight", "mm-range-wide", "mm-range-outliers",
		"mm-fairness", "mm-churn",
	},
	"game": {
		"game-flow", "game-simultaneous", "game-recovery", "game-tie",
	},
	"network": {
		"net-baseline", "net-poor", "net-intermittent", "net-varying",
	},
	"smoke": {
		"quick", "quick-game", "diag-ping",
	},
}

// GetSuite はスイートに含まれるシナリオ設定を順に返す
func GetSuite(name string) ([]Config, bool) {
	var names []string
	if name == "all" {
		for _, suite := range []string{"connectivity", "load", "matchmaking", "game", "network"} {
			names = append(names, suites[suite]...)
		}
	} else {
		var ok bool
		names, ok = suites[name]
		if !ok {
			return nil, false
		}
	}

	configs := make([]Config, 0, len(names))
	for _, n := range names {
		c, ok := GetPreset(n)
		if !ok {
			return nil, false
		}
		configs = append(configs, c)
	}
	return configs, true
}

// ListSuites は利用可能なスイート名を返す
func ListSuites() []string {
	names := []string{"all"}
	for name := range suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
