package compare

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/testsupport/basedata"
)

func lapFrom(c basedata.Circuit, num int, lapTime int64, opts ...basedata.GeneratorOption) *model.LapRecord {
	opts = append(opts, basedata.WithLapTime(lapTime), basedata.WithDuration(lapTime+1))
	samples := basedata.NewGenerator(c, opts...).Samples()
	samples = lo.Filter(samples, func(s model.TelemetrySample, _ int) bool {
		return s.TimestampMs <= lapTime
	})
	return &model.LapRecord{
		LapNumber: num,
		StartTs:   samples[0].TimestampMs,
		EndTs:     samples[len(samples)-1].TimestampMs,
		LapTimeMs: lapTime,
		Samples:   samples,
	}
}

func TestCompare(t *testing.T) {
	c := basedata.SampleCircuit()
	a := lapFrom(c, 1, 83456, basedata.WithPedals())
	b := lapFrom(c, 2, 90000, basedata.WithPedals())

	got, err := NewComparator().Compare(a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LapA)
	assert.Equal(t, 2, got.LapB)
	assert.Equal(t, int64(6544), got.TimeDifferenceMs)
	assert.Equal(t, DefaultBucketSizeM, got.BucketSizeM)

	require.Len(t, got.Buckets, 334)
	assert.Equal(t, 0.0, got.Buckets[0].DistanceM)
	last := got.Buckets[len(got.Buckets)-1]
	assert.Equal(t, 3330.0, last.DistanceM)

	speedB := c.LengthM() / 90 * 3.6
	for _, bucket := range got.Buckets {
		assert.InDelta(t, speedB-144, bucket.SpeedDeltaKmh, 0.01)
		assert.Less(t, bucket.LateralOffsetM, 0.1)
	}
	// B loses time continuously
	want := (last.DistanceM/(speedB/3.6) - last.DistanceM/40) * 1000
	assert.InDelta(t, want, float64(last.TimeDeltaMs), 20)
	for i := 1; i < len(got.Buckets); i++ {
		assert.GreaterOrEqual(t, got.Buckets[i].TimeDeltaMs, got.Buckets[i-1].TimeDeltaMs)
	}

	d, ok := got.Buckets[0].ThrottleDelta.Get()
	require.True(t, ok)
	assert.Equal(t, 0.0, d)
}

func TestCompareSymmetry(t *testing.T) {
	c := basedata.SampleCircuit()
	a := lapFrom(c, 1, 83456)
	b := lapFrom(c, 2, 84000)
	cmp := NewComparator()

	ab, err := cmp.Compare(a, b)
	require.NoError(t, err)
	ba, err := cmp.Compare(b, a)
	require.NoError(t, err)
	assert.Equal(t, ab.TimeDifferenceMs, -ba.TimeDifferenceMs)
	require.Len(t, ba.Buckets, len(ab.Buckets))
	for i := range ab.Buckets {
		assert.InDelta(t, ab.Buckets[i].SpeedDeltaKmh, -ba.Buckets[i].SpeedDeltaKmh, 1e-9)
	}
}

func TestCompareLateralOffset(t *testing.T) {
	c := basedata.SampleCircuit()
	wide := c
	wide.Anchor = geo.Destination(c.Anchor, 90, 5)
	wide.RadiusM = c.RadiusM + 5

	got, err := NewComparator().Compare(lapFrom(c, 1, 83456), lapFrom(wide, 2, 83456))
	require.NoError(t, err)
	for _, bucket := range got.Buckets {
		if bucket.DistanceM > 100 {
			break
		}
		assert.InDelta(t, 5.0, bucket.LateralOffsetM, 0.2)
	}
	// buckets stop at the shorter lap
	assert.LessOrEqual(t, got.Buckets[len(got.Buckets)-1].DistanceM, c.LengthM())
}

func TestCompareLateralOffsetOrder(t *testing.T) {
	c := basedata.SampleCircuit()
	wide := c
	wide.Anchor = geo.Destination(c.Anchor, 90, 5)
	wide.RadiusM = c.RadiusM + 5
	tests := []struct {
		name string
		a    *model.LapRecord
		b    *model.LapRecord
	}{
		{"same line", lapFrom(c, 1, 83456), lapFrom(c, 2, 84000, basedata.WithRate(5))},
		{"wide line", lapFrom(c, 1, 83456), lapFrom(wide, 2, 84000, basedata.WithRate(5))},
		{"jitter", lapFrom(c, 1, 83456, basedata.WithJitter(2, 3)), lapFrom(wide, 2, 83456)},
	}
	cmp := NewComparator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab, err := cmp.Compare(tt.a, tt.b)
			require.NoError(t, err)
			ba, err := cmp.Compare(tt.b, tt.a)
			require.NoError(t, err)
			require.Len(t, ba.Buckets, len(ab.Buckets))
			for i := range ab.Buckets {
				assert.InDelta(t, ab.Buckets[i].LateralOffsetM, ba.Buckets[i].LateralOffsetM, 1e-9)
			}
		})
	}
}

func TestCompareMissingThrottle(t *testing.T) {
	c := basedata.SampleCircuit()
	got, err := NewComparator().Compare(
		lapFrom(c, 1, 83456, basedata.WithPedals()),
		lapFrom(c, 2, 83456))
	require.NoError(t, err)
	for _, bucket := range got.Buckets {
		assert.False(t, bucket.ThrottleDelta.IsSet())
	}
}

func TestCompareBucketSize(t *testing.T) {
	c := basedata.SampleCircuit()
	got, err := NewComparator(WithBucketSize(100)).Compare(lapFrom(c, 1, 83456), lapFrom(c, 2, 83456))
	require.NoError(t, err)
	assert.Len(t, got.Buckets, 34)
	assert.Equal(t, 100.0, got.BucketSizeM)
}

func TestCompareInsufficientData(t *testing.T) {
	c := basedata.SampleCircuit()
	good := lapFrom(c, 1, 83456)
	single := &model.LapRecord{Samples: good.Samples[:1]}
	stationary := &model.LapRecord{Samples: []model.TelemetrySample{good.Samples[0], good.Samples[0]}}

	tests := []struct {
		name string
		a, b *model.LapRecord
	}{
		{"empty", &model.LapRecord{}, good},
		{"single sample", good, single},
		{"no distance", stationary, good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewComparator().Compare(tt.a, tt.b)
			assert.ErrorIs(t, err, ErrInsufficientData)
		})
	}
}
