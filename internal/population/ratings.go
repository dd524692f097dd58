package population

import (
	"fmt"
	"math/rand"
	"sync"
)

// Distribution はレーティングの分布の種類
type Distribution string

const (
	DistRealistic Distribution = "realistic" // 20% / 60% / 15% / 5%
	DistBucketed  Distribution = "bucketed"  // low / medium / high を均等に
	DistUniform   Distribution = "uniform"   // [Min, Max] の一様分布
	DistFixed     Distribution = "fixed"     // 全員 Value
	DistExplicit  Distribution = "explicit"  // Values を順に使う
)

// RatingSpec はレーティングの割り当て方
type RatingSpec struct {
	Distribution Distribution `json:"distribution" yaml:"distribution"`
	Min          int          `json:"min,omitempty" yaml:"min,omitempty"`
	Max          int          `json:"max,omitempty" yaml:"max,omitempty"`
	Value        int          `json:"value,omitempty" yaml:"value,omitempty"`
	Values       []int        `json:"values,omitempty" yaml:"values,omitempty"`
}

// Bucket はレーティング帯の名前
type Bucket string

const (
	BucketLow    Bucket = "low"
	BucketMedium Bucket = "medium"
	BucketHigh   Bucket = "high"
)

// Buckets は全てのレーティング帯を低い順に返す
func Buckets() []Bucket {
	return []Bucket{BucketLow, BucketMedium, BucketHigh}
}

// BucketOf はレーティングが属する帯を返す
func BucketOf(rating int) Bucket {
	switch {
	case rating < 1000:
		return BucketLow
	case rating < 1400:
		return BucketMedium
	default:
		return BucketHigh
	}
}

type band struct{ lo, hi int }

var realisticBands = []struct {
	share float64
	band  band
}{
	{0.20, band{800, 1000}},
	{0.60, band{1000, 1400}},
	{0.15, band{1400, 1600}},
	{0.05, band{1600, 1800}},
}

// bucketRanges は [lo, hi) を 20 刻みで使う
var bucketRanges = map[Bucket]band{
	BucketLow:    {800, 1000},
	BucketMedium: {1000, 1400},
	BucketHigh:   {1400, 1800},
}

// Ratings は n 人分のレーティングを作る
func Ratings(spec RatingSpec, n int) ([]int, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative population size %d", n)
	}

	switch spec.Distribution {
	case DistRealistic, "":
		return realistic(n), nil
	case DistBucketed:
		return bucketed(n), nil
	case DistUniform:
		if spec.Max < spec.Min {
			return nil, fmt.Errorf("uniform ratings: max %d below min %d", spec.Max, spec.Min)
		}
		out := make([]int, n)
		for i := range out {
			out[i] = spec.Min + rand.Intn(spec.Max-spec.Min+1)
		}
		return out, nil
	case DistFixed:
		out := make([]int, n)
		for i := range out {
			out[i] = spec.Value
		}
		return out, nil
	case DistExplicit:
		if len(spec.Values) == 0 {
			return nil, fmt.Errorf("explicit ratings: no values")
		}
		out := make([]int, n)
		for i := range out {
			out[i] = spec.Values[i%len(spec.Values)]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown rating distribution %q", spec.Distribution)
	}
}

// realistic は初心者20%、中級60%、上級15%、エキスパート5%で割り当てる。
// 割り切れない端数の席は比率に従って1人ずつ抽選する
func realistic(n int) []int {
	out := make([]int, 0, n)
	for _, b := range realisticBands {
		count := int(float64(n) * b.share)
		for range count {
			out = append(out, inclusive(b.band))
		}
	}
	for len(out) < n {
		out = append(out, realisticOne())
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// realisticOne は累積比率で帯を選んで1人分のレーティングを返す
func realisticOne() int {
	r := rand.Float64()
	for _, b := range realisticBands {
		if r < b.share {
			return inclusive(b.band)
		}
		r -= b.share
	}
	return inclusive(realisticBands[len(realisticBands)-1].band)
}

// bucketed は3つの帯に均等に割り当て、余りは重複しない帯をランダムに選ぶ
func bucketed(n int) []int {
	buckets := Buckets()
	per := n / len(buckets)
	out := make([]int, 0, n)
	for _, b := range buckets {
		for range per {
			out = append(out, stepped(bucketRanges[b]))
		}
	}
	for _, i := range rand.Perm(len(buckets))[:n-len(out)] {
		out = append(out, stepped(bucketRanges[buckets[i]]))
	}
	return out
}

// Sampler は1人ずつレーティングを引く。
// ランプや持続セッションのように少人数ずつ起動する場合に使う
type Sampler struct {
	spec RatingSpec

	mu   sync.Mutex
	next int
}

// NewSampler は分布を検証して Sampler を作成する
func NewSampler(spec RatingSpec) (*Sampler, error) {
	if _, err := Ratings(spec, 0); err != nil {
		return nil, err
	}
	return &Sampler{spec: spec}, nil
}

// Next は次の1人分のレーティングを返す。
// bucketed と explicit は呼び出しをまたいで順番を引き継ぐ
func (s *Sampler) Next() int {
	s.mu.Lock()
	i := s.next
	s.next++
	s.mu.Unlock()

	switch s.spec.Distribution {
	case DistBucketed:
		buckets := Buckets()
		return stepped(bucketRanges[buckets[i%len(buckets)]])
	case DistUniform:
		return s.spec.Min + rand.Intn(s.spec.Max-s.spec.Min+1)
	case DistFixed:
		return s.spec.Value
	case DistExplicit:
		return s.spec.Values[i%len(s.spec.Values)]
	default:
		return realisticOne()
	}
}

func inclusive(b band) int {
	return b.lo + rand.Intn(b.hi-b.lo+1)
}

func stepped(b band) int {
	steps := (b.hi - b.lo) / 20
	return b.lo + 20*rand.Intn(steps)
}
