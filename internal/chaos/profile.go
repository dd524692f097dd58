package chaos

import (
	"fmt"
	"sort"
	"time"
)

// Profile はネットワーク状態を表す。生成後は変更しない
type Profile struct {
	Name          string        `json:"name" yaml:"name"`
	Latency       time.Duration `json:"latency" yaml:"latency"`               // 片方向の基本遅延
	Jitter        time.Duration `json:"jitter" yaml:"jitter"`                 // ±Jitter の一様分布
	PacketLoss    float64       `json:"packet_loss" yaml:"packet_loss"`       // 0.0〜1.0
	BandwidthKbps int           `json:"bandwidth_kbps" yaml:"bandwidth_kbps"` // 表示用のみ
}

// Validate はプロファイルの値を検証する
func (p Profile) Validate() error {
	if p.Latency < 0 {
		return fmt.Errorf("profile %q: latency must be >= 0", p.Name)
	}
	if p.Jitter < 0 {
		return fmt.Errorf("profile %q: jitter must be >= 0", p.Name)
	}
	if p.PacketLoss < 0 || p.PacketLoss > 1 {
		return fmt.Errorf("profile %q: packet loss must be in [0, 1], got %v", p.Name, p.PacketLoss)
	}
	if p.BandwidthKbps < 0 {
		return fmt.Errorf("profile %q: bandwidth must be >= 0", p.Name)
	}
	return nil
}

// String はプロファイルの要約を返す
func (p Profile) String() string {
	return fmt.Sprintf("%s (%v ±%v, loss %.1f%%, %d kbps)",
		p.Name, p.Latency, p.Jitter, p.PacketLoss*100, p.BandwidthKbps)
}

const defaultJitter = 20 * time.Millisecond

var profiles = map[string]Profile{
	"perfect":      {Name: "perfect", Latency: 10 * time.Millisecond, Jitter: defaultJitter, PacketLoss: 0, BandwidthKbps: 10000},
	"good_wifi":    {Name: "good_wifi", Latency: 30 * time.Millisecond, Jitter: defaultJitter, PacketLoss: 0.001, BandwidthKbps: 5000},
	"poor_wifi":    {Name: "poor_wifi", Latency: 100 * time.Millisecond, Jitter: defaultJitter, PacketLoss: 0.02, BandwidthKbps: 1000},
	"mobile_4g":    {Name: "mobile_4g", Latency: 50 * time.Millisecond, Jitter: defaultJitter, PacketLoss: 0.005, BandwidthKbps: 2000},
	"mobile_3g":    {Name: "mobile_3g", Latency: 150 * time.Millisecond, Jitter: defaultJitter, PacketLoss: 0.01, BandwidthKbps: 500},
	"poor_mobile":  {Name: "poor_mobile", Latency: 300 * time.Millisecond, Jitter: defaultJitter, PacketLoss: 0.05, BandwidthKbps: 100},
	"intermittent": {Name: "intermittent", Latency: 200 * time.Millisecond, Jitter: defaultJitter, PacketLoss: 0.1, BandwidthKbps: 500},
	"high_latency": {Name: "high_latency", Latency: 500 * time.Millisecond, Jitter: defaultJitter, PacketLoss: 0.02, BandwidthKbps: 1000},
}

// Preset は名前付きプロファイルを返す
func Preset(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ListProfiles は利用可能なプロファイル名を返す
func ListProfiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
