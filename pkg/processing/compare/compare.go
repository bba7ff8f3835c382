// Package compare aligns two laps on a common distance axis.
package compare

import (
	"errors"
	"math"
	"slices"

	"github.com/aarondl/opt/omitnull"

	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
)

const DefaultBucketSizeM = 10.0

var ErrInsufficientData = errors.New("insufficient data for comparison")

type Comparator struct {
	bucketSizeM float64
}

type Option func(c *Comparator)

func WithBucketSize(m float64) Option {
	return func(c *Comparator) {
		if m > 0 {
			c.bucketSizeM = m
		}
	}
}

func NewComparator(opts ...Option) *Comparator {
	c := &Comparator{bucketSizeM: DefaultBucketSizeM}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compare resamples both laps every bucket size meters up to the shorter lap's
// distance. All deltas are B minus A. The lateral offset is the distance between
// both interpolated positions and does not depend on the order of the laps.
func (c *Comparator) Compare(a, b *model.LapRecord) (model.LapComparison, error) {
	pa, err := newProfile(a)
	if err != nil {
		return model.LapComparison{}, err
	}
	pb, err := newProfile(b)
	if err != nil {
		return model.LapComparison{}, err
	}
	ret := model.LapComparison{
		LapA:             a.LapNumber,
		LapB:             b.LapNumber,
		BucketSizeM:      c.bucketSizeM,
		TimeDifferenceMs: b.LapTimeMs - a.LapTimeMs,
	}
	limit := math.Min(pa.total(), pb.total())
	n := int(math.Floor(limit/c.bucketSizeM)) + 1
	ret.Buckets = make([]model.ComparisonBucket, 0, n)
	for k := range n {
		d := float64(k) * c.bucketSizeM
		va := pa.at(d)
		vb := pb.at(d)
		bucket := model.ComparisonBucket{
			DistanceM:      d,
			SpeedA:         va.speed,
			SpeedB:         vb.speed,
			SpeedDeltaKmh:  vb.speed - va.speed,
			LateralOffsetM: geo.HaversineDistanceM(va.pos, vb.pos),
			TimeDeltaMs:    int64(math.Round(vb.elapsed - va.elapsed)),
		}
		if ta, ok := va.throttle.Get(); ok {
			if tb, ok := vb.throttle.Get(); ok {
				bucket.ThrottleDelta = omitnull.From(tb - ta)
			}
		}
		ret.Buckets = append(ret.Buckets, bucket)
	}
	return ret, nil
}

type profile struct {
	samples []model.TelemetrySample
	cum     []float64
}

type point struct {
	pos      model.GeoPoint
	speed    float64
	throttle omitnull.Val[float64]
	elapsed  float64
}

func newProfile(lap *model.LapRecord) (*profile, error) {
	if len(lap.Samples) < 2 {
		return nil, ErrInsufficientData
	}
	p := &profile{samples: lap.Samples, cum: make([]float64, len(lap.Samples))}
	for i := 1; i < len(p.samples); i++ {
		p.cum[i] = p.cum[i-1] +
			geo.HaversineDistanceM(p.samples[i-1].Position, p.samples[i].Position)
	}
	if !(p.total() > 0) || math.IsInf(p.total(), 0) {
		return nil, ErrInsufficientData
	}
	return p, nil
}

func (p *profile) total() float64 { return p.cum[len(p.cum)-1] }

// locate returns the segment index containing distance d and the fraction within it.
func (p *profile) locate(d float64) (idx int, frac float64) {
	j, _ := slices.BinarySearch(p.cum, d)
	switch {
	case j == 0:
		return 0, 0
	case j >= len(p.cum):
		return len(p.cum) - 2, 1
	}
	i := j - 1
	seg := p.cum[j] - p.cum[i]
	if seg <= 0 {
		return i, 1
	}
	return i, (d - p.cum[i]) / seg
}

func (p *profile) at(d float64) point {
	i, f := p.locate(d)
	s0 := &p.samples[i]
	s1 := &p.samples[i+1]
	ts := lerp(float64(s0.TimestampMs), float64(s1.TimestampMs), f)
	ret := point{
		pos:     geo.Interpolate(s0.Position, s1.Position, f),
		speed:   lerp(s0.SpeedKmh, s1.SpeedKmh, f),
		elapsed: ts - float64(p.samples[0].TimestampMs),
	}
	if t0, ok := s0.ThrottlePct.Get(); ok {
		if t1, ok := s1.ThrottlePct.Get(); ok {
			ret.throttle = omitnull.From(lerp(t0, t1, f))
		}
	}
	return ret
}

func lerp(a, b, f float64) float64 {
	return a + f*(b-a)
}
