package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"battle-loadtest/internal/chaos"
	"battle-loadtest/internal/loadgen"
	"battle-loadtest/internal/player"
	"battle-loadtest/internal/population"
	"battle-loadtest/internal/scenario"
	"battle-loadtest/internal/verdict"
)

// EnvEndpoint は接続先を上書きする環境変数
const EnvEndpoint = "WEBSOCKET_URL"

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Endpoint  string           `yaml:"endpoint" json:"endpoint"`
	Suite     string           `yaml:"suite" json:"suite"`
	Presets   []string         `yaml:"presets" json:"presets"`
	Scenarios []ScenarioConfig `yaml:"scenarios" json:"scenarios"`
}

// ScenarioConfig はシナリオ設定。Preset を指定するとその設定を上書きする
type ScenarioConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Preset      string `yaml:"preset" json:"preset"`
	Kind        string `yaml:"kind" json:"kind"`

	Pattern         string `yaml:"pattern" json:"pattern"`
	Players         int    `yaml:"players" json:"players"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	Timeout         string `yaml:"timeout" json:"timeout"`
	RampDuration    string `yaml:"ramp_duration" json:"ramp_duration"`
	Tick            string `yaml:"tick" json:"tick"`
	Bursts          int    `yaml:"bursts" json:"bursts"`
	BurstMin        int    `yaml:"burst_min" json:"burst_min"`
	BurstMax        int    `yaml:"burst_max" json:"burst_max"`
	BurstGap        string `yaml:"burst_gap" json:"burst_gap"`
	Waves           *bool  `yaml:"waves" json:"waves"`
	SessionDuration string `yaml:"session_duration" json:"session_duration"`
	ThinkMin        string `yaml:"think_min" json:"think_min"`
	ThinkMax        string `yaml:"think_max" json:"think_max"`

	Cohort     CohortConfig       `yaml:"cohort" json:"cohort"`
	Lifecycle  LifecycleConfig    `yaml:"lifecycle" json:"lifecycle"`
	Network    NetworkConfig      `yaml:"network" json:"network"`
	Thresholds verdict.Thresholds `yaml:"thresholds" json:"thresholds"`
}

// CohortConfig はプレイヤー集団の設定
type CohortConfig struct {
	Ratings        population.RatingSpec `yaml:"ratings" json:"ratings"`
	Region         string                `yaml:"region" json:"region"`
	QuickExitShare *float64              `yaml:"quick_exit_share" json:"quick_exit_share"`
	Difficulties   []string              `yaml:"difficulties" json:"difficulties"`
}

// LifecycleConfig は各プレイヤーの進め方
type LifecycleConfig struct {
	Kind                string   `yaml:"kind" json:"kind"`
	Probe               string   `yaml:"probe" json:"probe"`
	MaxRetries          int      `yaml:"max_retries" json:"max_retries"`
	MatchTimeout        string   `yaml:"match_timeout" json:"match_timeout"`
	HoldMin             string   `yaml:"hold_min" json:"hold_min"`
	HoldMax             string   `yaml:"hold_max" json:"hold_max"`
	Difficulty          string   `yaml:"difficulty" json:"difficulty"`
	Rounds              int      `yaml:"rounds" json:"rounds"`
	RoundTimeout        string   `yaml:"round_timeout" json:"round_timeout"`
	CompletionTimeout   string   `yaml:"completion_timeout" json:"completion_timeout"`
	AnswerAccuracy      *float64 `yaml:"answer_accuracy" json:"answer_accuracy"`
	ReconnectAfterRound *int     `yaml:"reconnect_after_round" json:"reconnect_after_round"`
	ReconnectDelay      string   `yaml:"reconnect_delay" json:"reconnect_delay"`
	ReconnectOnLoss     *bool    `yaml:"reconnect_on_loss" json:"reconnect_on_loss"`
	ProbeCount          int      `yaml:"probe_count" json:"probe_count"`
	ProbeTimeout        string   `yaml:"probe_timeout" json:"probe_timeout"`
}

// NetworkConfig はネットワーク状態の設定
type NetworkConfig struct {
	Profile          string         `yaml:"profile" json:"profile"`
	PerBurst         []string       `yaml:"per_burst" json:"per_burst"`
	Schedule         []SwitchConfig `yaml:"schedule" json:"schedule"`
	Rotation         []string       `yaml:"rotation" json:"rotation"`
	RotationInterval string         `yaml:"rotation_interval" json:"rotation_interval"`
}

// SwitchConfig は時刻指定のプロファイル切り替え
type SwitchConfig struct {
	After   string `yaml:"after" json:"after"`
	Profile string `yaml:"profile" json:"profile"`
}

// LoadFile は設定ファイルを読み込み、スキーマで検証する
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	return &config, nil
}

// ResolveEndpoint は接続先を決める。
// 優先順位はフラグ、環境変数 WEBSOCKET_URL、設定ファイル、既定値の順
func ResolveEndpoint(flag string, file *FileConfig) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvEndpoint); env != "" {
		return env
	}
	if file != nil && file.Endpoint != "" {
		return file.Endpoint
	}
	return scenario.DefaultEndpoint
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	if f.Suite == "" && len(f.Presets) == 0 && len(f.Scenarios) == 0 {
		return fmt.Errorf("config selects no scenarios: set suite, presets or scenarios")
	}
	if f.Suite != "" {
		if _, ok := scenario.GetSuite(f.Suite); !ok {
			return fmt.Errorf("unknown suite: %s", f.Suite)
		}
	}
	for _, name := range f.Presets {
		if _, ok := scenario.GetPreset(name); !ok {
			return fmt.Errorf("unknown preset: %s", name)
		}
	}

	seen := make(map[string]bool)
	for i, sc := range f.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("scenarios[%d]: name is required", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("scenarios[%d]: duplicate name %s", i, sc.Name)
		}
		seen[sc.Name] = true

		if sc.Players < 0 || sc.Bursts < 0 || sc.BurstMin < 0 || sc.BurstMax < 0 {
			return fmt.Errorf("scenario %s: counts must be non-negative", sc.Name)
		}
		if sc.Lifecycle.MaxRetries < 0 || sc.Lifecycle.Rounds < 0 {
			return fmt.Errorf("scenario %s: lifecycle counts must be non-negative", sc.Name)
		}
		if s := sc.Cohort.QuickExitShare; s != nil && (*s < 0 || *s > 1) {
			return fmt.Errorf("scenario %s: cohort.quick_exit_share must be between 0 and 1", sc.Name)
		}
	}
	return nil
}

// ToScenarioConfigs は選択された全シナリオを実行順に返す。
// スイート、プリセット、個別シナリオの順に並ぶ
func (f *FileConfig) ToScenarioConfigs() ([]scenario.Config, error) {
	var configs []scenario.Config

	if f.Suite != "" {
		suite, ok := scenario.GetSuite(f.Suite)
		if !ok {
			return nil, fmt.Errorf("unknown suite: %s", f.Suite)
		}
		configs = append(configs, suite...)
	}
	for _, name := range f.Presets {
		c, ok := scenario.GetPreset(name)
		if !ok {
			return nil, fmt.Errorf("unknown preset: %s", name)
		}
		configs = append(configs, c)
	}
	for _, sc := range f.Scenarios {
		c, err := sc.ToScenarioConfig()
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		configs = append(configs, c)
	}
	return configs, nil
}

// ToScenarioConfig は ScenarioConfig を scenario.Config に変換する
func (sc ScenarioConfig) ToScenarioConfig() (scenario.Config, error) {
	config := scenario.DefaultConfig()
	if sc.Preset != "" {
		preset, ok := scenario.GetPreset(sc.Preset)
		if !ok {
			return config, fmt.Errorf("unknown preset: %s", sc.Preset)
		}
		config = preset
	}

	if sc.Name != "" {
		config.Name = sc.Name
		config.Load.Name = sc.Name
		config.Load.Prefix = sc.Name
	}
	if sc.Description != "" {
		config.Description = sc.Description
	}
	if sc.Kind != "" {
		kind, err := verdict.ParseKind(sc.Kind)
		if err != nil {
			return config, err
		}
		config.Kind = kind
	}

	if err := sc.applyLoad(&config.Load); err != nil {
		return config, err
	}
	if err := sc.Lifecycle.apply(&config.Plan); err != nil {
		return config, err
	}
	if err := sc.Network.apply(&config.Network); err != nil {
		return config, err
	}
	config.Thresholds = mergeThresholds(config.Thresholds, sc.Thresholds)

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// parseDuration は空でなければ dst を上書きする
func parseDuration(dst *time.Duration, value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	*dst = d
	return nil
}

func (sc ScenarioConfig) applyLoad(load *loadgen.Config) error {
	if sc.Pattern != "" {
		pattern, err := loadgen.ParsePattern(sc.Pattern)
		if err != nil {
			return err
		}
		load.Pattern = pattern
	}
	if sc.Players > 0 {
		load.Players = sc.Players
	}
	if sc.Prefix != "" {
		load.Prefix = sc.Prefix
	}
	if sc.Bursts > 0 {
		load.Bursts = sc.Bursts
	}
	if sc.BurstMin > 0 {
		load.BurstMin = sc.BurstMin
	}
	if sc.BurstMax > 0 {
		load.BurstMax = sc.BurstMax
	}
	if sc.Waves != nil {
		load.Waves = *sc.Waves
	}

	durations := []struct {
		dst   *time.Duration
		value string
		field string
	}{
		{&load.Timeout, sc.Timeout, "timeout"},
		{&load.RampDuration, sc.RampDuration, "ramp_duration"},
		{&load.Tick, sc.Tick, "tick"},
		{&load.BurstGap, sc.BurstGap, "burst_gap"},
		{&load.SessionDuration, sc.SessionDuration, "session_duration"},
		{&load.ThinkMin, sc.ThinkMin, "think_min"},
		{&load.ThinkMax, sc.ThinkMax, "think_max"},
	}
	for _, d := range durations {
		if err := parseDuration(d.dst, d.value, d.field); err != nil {
			return err
		}
	}

	cohort := sc.Cohort
	if cohort.Ratings.Distribution != "" {
		load.Cohort.Ratings = cohort.Ratings
	}
	if cohort.Region != "" {
		load.Cohort.Region = cohort.Region
	}
	if cohort.QuickExitShare != nil {
		load.Cohort.QuickExitShare = *cohort.QuickExitShare
	}
	if len(cohort.Difficulties) > 0 {
		load.Cohort.Difficulties = cohort.Difficulties
	}
	return nil
}

func (lc LifecycleConfig) apply(plan *player.Plan) error {
	if lc.Kind != "" {
		kind, err := player.ParseKind(lc.Kind)
		if err != nil {
			return err
		}
		plan.Kind = kind
	}
	if lc.Probe != "" {
		probe, err := player.ParseProbeKind(lc.Probe)
		if err != nil {
			return err
		}
		plan.Probe = probe
	}
	if lc.MaxRetries > 0 {
		plan.MaxRetries = lc.MaxRetries
	}
	if lc.Difficulty != "" {
		plan.Difficulty = lc.Difficulty
	}
	if lc.Rounds > 0 {
		plan.Rounds = lc.Rounds
	}
	if lc.AnswerAccuracy != nil {
		plan.AnswerAccuracy = *lc.AnswerAccuracy
	}
	if lc.ReconnectAfterRound != nil {
		plan.ReconnectAfterRound = *lc.ReconnectAfterRound
	}
	if lc.ReconnectOnLoss != nil {
		plan.ReconnectOnLoss = *lc.ReconnectOnLoss
	}
	if lc.ProbeCount > 0 {
		plan.ProbeCount = lc.ProbeCount
	}

	durations := []struct {
		dst   *time.Duration
		value string
		field string
	}{
		{&plan.MatchTimeout, lc.MatchTimeout, "lifecycle.match_timeout"},
		{&plan.HoldMin, lc.HoldMin, "lifecycle.hold_min"},
		{&plan.HoldMax, lc.HoldMax, "lifecycle.hold_max"},
		{&plan.RoundTimeout, lc.RoundTimeout, "lifecycle.round_timeout"},
		{&plan.CompletionTimeout, lc.CompletionTimeout, "lifecycle.completion_timeout"},
		{&plan.ReconnectDelay, lc.ReconnectDelay, "lifecycle.reconnect_delay"},
		{&plan.ProbeTimeout, lc.ProbeTimeout, "lifecycle.probe_timeout"},
	}
	for _, d := range durations {
		if err := parseDuration(d.dst, d.value, d.field); err != nil {
			return err
		}
	}
	return nil
}

func (nc NetworkConfig) apply(plan *scenario.NetworkPlan) error {
	if nc.Profile != "" {
		plan.Profile = nc.Profile
	}
	if len(nc.PerBurst) > 0 {
		plan.PerBurst = nc.PerBurst
	}
	if len(nc.Rotation) > 0 {
		plan.Rotation = nc.Rotation
	}
	if err := parseDuration(&plan.RotationInterval, nc.RotationInterval, "network.rotation_interval"); err != nil {
		return err
	}
	if len(nc.Schedule) > 0 {
		plan.Schedule = make([]chaos.Switch, 0, len(nc.Schedule))
		for i, s := range nc.Schedule {
			var after time.Duration
			if err := parseDuration(&after, s.After, fmt.Sprintf("network.schedule[%d].after", i)); err != nil {
				return err
			}
			plan.Schedule = append(plan.Schedule, chaos.Switch{After: after, Profile: s.Profile})
		}
	}
	return nil
}

func mergeThresholds(base, override verdict.Thresholds) verdict.Thresholds {
	pick := func(o, b float64) float64 {
		if o > 0 {
			return o
		}
		return b
	}
	return verdict.Thresholds{
		SuccessRate:      pick(override.SuccessRate, base.SuccessRate),
		MatchRate:        pick(override.MatchRate, base.MatchRate),
		MeanRatingDiff:   pick(override.MeanRatingDiff, base.MeanRatingDiff),
		MaxRatingDiff:    pick(override.MaxRatingDiff, base.MaxRatingDiff),
		QueueEfficiency:  pick(override.QueueEfficiency, base.QueueEfficiency),
		FairnessVariance: pick(override.FairnessVariance, base.FairnessVariance),
	}
}
