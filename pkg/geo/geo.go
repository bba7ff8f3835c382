// Package geo contains the geodesic helpers used by track detection and lap
// segmentation. All functions are pure. Distance queries return +Inf for
// NaN or infinite input instead of failing.
package geo

import (
	"math"

	"github.com/mpapenbr/trackside/pkg/model"
)

const EarthRadiusM = 6371000.0

const degToRad = math.Pi / 180

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// HaversineDistanceM returns the great-circle distance between a and b in meters.
func HaversineDistanceM(a, b model.GeoPoint) float64 {
	if !finite(a.Lat, a.Lng, b.Lat, b.Lng) {
		return math.Inf(1)
	}
	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	// rounding may push h slightly above 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BearingDeg returns the initial bearing from a to b in [0,360).
// The result is NaN for non-finite input and 0 for identical points.
func BearingDeg(a, b model.GeoPoint) float64 {
	if !finite(a.Lat, a.Lng, b.Lat, b.Lng) {
		return math.NaN()
	}
	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLng := (b.Lng - a.Lng) * degToRad

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	return NormalizeBearing(math.Atan2(y, x) / degToRad)
}

// NormalizeBearing maps any angle in degrees into [0,360).
func NormalizeBearing(deg float64) float64 {
	b := math.Mod(deg, 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 {
		b = 0
	}
	return b
}

// AngleDiff returns the absolute difference between two bearings in [0,180].
func AngleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeBearing(a) - NormalizeBearing(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// DistanceToSegmentM returns the distance from p to the segment [start,end] in meters.
// It uses an equirectangular projection around start which is accurate enough
// for track sized distances (< 10km).
func DistanceToSegmentM(p, start, end model.GeoPoint) float64 {
	if !finite(p.Lat, p.Lng, start.Lat, start.Lng, end.Lat, end.Lng) {
		return math.Inf(1)
	}
	f := NewFrame(start)
	px, py := f.XY(p)
	ex, ey := f.XY(end)

	segLen2 := ex*ex + ey*ey
	if segLen2 == 0 {
		return math.Hypot(px, py)
	}
	t := (px*ex + py*ey) / segLen2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-t*ex, py-t*ey)
}

// Interpolate returns the point at fraction t (0..1) between a and b.
func Interpolate(a, b model.GeoPoint, t float64) model.GeoPoint {
	return model.GeoPoint{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}
}

// Destination returns the point reached from p after distanceM on the given bearing.
func Destination(p model.GeoPoint, bearingDeg, distanceM float64) model.GeoPoint {
	lat1 := p.Lat * degToRad
	lng1 := p.Lng * degToRad
	brg := bearingDeg * degToRad
	d := distanceM / EarthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(
		math.Sin(brg)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return model.GeoPoint{
		Lat: lat2 / degToRad,
		Lng: math.Mod(lng2/degToRad+540, 360) - 180,
	}
}
