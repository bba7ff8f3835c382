package geo

import (
	"math"

	"github.com/mpapenbr/trackside/pkg/model"
)

// Frame is a local planar frame (x east, y north, meters) around an origin.
type Frame struct {
	origin model.GeoPoint
	cosLat float64
}

func NewFrame(origin model.GeoPoint) Frame {
	return Frame{origin: origin, cosLat: math.Cos(origin.Lat * degToRad)}
}

func (f Frame) XY(p model.GeoPoint) (x, y float64) {
	x = (p.Lng - f.origin.Lng) * degToRad * EarthRadiusM * f.cosLat
	y = (p.Lat - f.origin.Lat) * degToRad * EarthRadiusM
	return x, y
}

// AlongBearing returns the signed offset of p from the origin in direction of bearingDeg.
// Positive values are ahead of the origin.
func (f Frame) AlongBearing(p model.GeoPoint, bearingDeg float64) float64 {
	x, y := f.XY(p)
	b := bearingDeg * degToRad
	return x*math.Sin(b) + y*math.Cos(b)
}
