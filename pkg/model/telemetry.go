package model

import "github.com/aarondl/opt/omitnull"

// TelemetrySample is a single reading of the external telemetry source.
// TimestampMs must be strictly increasing within one stream.
type TelemetrySample struct {
	TimestampMs int64                 `json:"timestampMs"`
	Position    GeoPoint              `json:"position"`
	SpeedKmh    float64               `json:"speedKmh"`
	ThrottlePct omitnull.Val[float64] `json:"throttlePct"` // 0..100
	BrakePct    omitnull.Val[float64] `json:"brakePct"`    // 0..100
	RPM         omitnull.Val[float64] `json:"rpm"`
	LateralG    omitnull.Val[float64] `json:"lateralG"`
	// AccuracyM is the horizontal GPS accuracy if the device reports it
	AccuracyM omitnull.Val[float64] `json:"accuracyM"`
	// HeadingDeg is the device heading (course over ground) if available
	HeadingDeg omitnull.Val[float64] `json:"headingDeg"`
}
