package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/trackside/pkg/model"
)

func pt(lat, lng float64) model.GeoPoint {
	return model.GeoPoint{Lat: lat, Lng: lng}
}

func TestHaversineDistanceM(t *testing.T) {
	tests := []struct {
		name  string
		a, b  model.GeoPoint
		want  float64
		delta float64
	}{
		{"same point", pt(52.07, -1.01), pt(52.07, -1.01), 0, 1e-9},
		{"one degree latitude", pt(0, 0), pt(1, 0), 111194.93, 0.5},
		{"london paris", pt(51.5074, -0.1278), pt(48.8566, 2.3522), 343556, 500},
		{"antimeridian", pt(0, 179.9995), pt(0, -179.9995), 111.19, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, HaversineDistanceM(tt.a, tt.b), tt.delta)
			assert.InDelta(t, tt.want, HaversineDistanceM(tt.b, tt.a), tt.delta, "symmetry")
		})
	}
}

func TestHaversineNonFinite(t *testing.T) {
	assert.True(t, math.IsInf(HaversineDistanceM(pt(math.NaN(), 0), pt(0, 0)), 1))
	assert.True(t, math.IsInf(HaversineDistanceM(pt(0, 0), pt(0, math.Inf(1))), 1))
}

func TestBearingDeg(t *testing.T) {
	tests := []struct {
		name string
		b    model.GeoPoint
		want float64
	}{
		{"north", pt(1, 0), 0},
		{"east", pt(0, 1), 90},
		{"south", pt(-1, 0), 180},
		{"west", pt(0, -1), 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, BearingDeg(pt(0, 0), tt.b), 1e-6)
		})
	}
	assert.True(t, math.IsNaN(BearingDeg(pt(math.NaN(), 0), pt(0, 0))))
}

func TestAngleDiff(t *testing.T) {
	assert.InDelta(t, 20.0, AngleDiff(350, 10), 1e-9)
	assert.InDelta(t, 180.0, AngleDiff(0, 180), 1e-9)
	assert.InDelta(t, 0.0, AngleDiff(-90, 270), 1e-9)
	assert.InDelta(t, 45.0, AngleDiff(720, 45), 1e-9)
}

func TestDistanceToSegmentM(t *testing.T) {
	start := pt(0, 0)
	end := pt(0, 0.01)
	tests := []struct {
		name  string
		p     model.GeoPoint
		want  float64
		delta float64
	}{
		{"perpendicular to middle", pt(0.001, 0.005), 111.19, 0.5},
		{"on segment", pt(0, 0.004), 0, 1e-6},
		{"beyond end", pt(0, 0.011), 111.19, 0.5},
		{"before start", pt(0, -0.001), 111.19, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistanceToSegmentM(tt.p, start, end), tt.delta)
		})
	}
}

func TestDistanceToDegenerateSegment(t *testing.T) {
	p := pt(52.001, -1)
	a := pt(52, -1)
	assert.InDelta(t, HaversineDistanceM(p, a), DistanceToSegmentM(p, a, a), 0.5)
	assert.True(t, math.IsInf(DistanceToSegmentM(pt(math.NaN(), 0), a, a), 1))
}

func TestDestination(t *testing.T) {
	origin := pt(52.0786, -1.0169)
	for _, brg := range []float64{0, 45, 90, 180, 270, 333} {
		dest := Destination(origin, brg, 250)
		assert.InDelta(t, 250.0, HaversineDistanceM(origin, dest), 0.01)
		assert.InDelta(t, 0.0, AngleDiff(brg, BearingDeg(origin, dest)), 0.01)
	}
}

func TestInterpolate(t *testing.T) {
	got := Interpolate(pt(10, 20), pt(12, 24), 0.25)
	assert.InDelta(t, 10.5, got.Lat, 1e-12)
	assert.InDelta(t, 21.0, got.Lng, 1e-12)
}

func TestFrameAlongBearing(t *testing.T) {
	origin := pt(52.0786, -1.0169)
	f := NewFrame(origin)
	ahead := Destination(origin, 180, 20)
	behind := Destination(origin, 0, 20)
	assert.InDelta(t, 20.0, f.AlongBearing(ahead, 180), 0.05)
	assert.InDelta(t, -20.0, f.AlongBearing(behind, 180), 0.05)
	side := Destination(origin, 90, 20)
	assert.InDelta(t, 0.0, f.AlongBearing(side, 180), 0.05)
}
