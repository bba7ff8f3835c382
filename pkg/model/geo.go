package model

import (
	"math"

	"github.com/aarondl/opt/omitnull"
)

// GeoPoint is a WGS84 position in degrees.
type GeoPoint struct {
	Lat       float64               `json:"lat"`
	Lng       float64               `json:"lng"`
	Elevation omitnull.Val[float64] `json:"elevation"`
}

func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Lat: lat, Lng: lng}
}

// IsValid reports whether the point has finite coordinates within WGS84 ranges.
func (p GeoPoint) IsValid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) ||
		math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// SameLocation compares coordinates only, elevation is ignored.
func (p GeoPoint) SameLocation(o GeoPoint) bool {
	return p.Lat == o.Lat && p.Lng == o.Lng
}
