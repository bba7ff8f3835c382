package model

// reasons for invalid laps
const (
	InvalidTooFewSamples = "too few samples"
	InvalidTooShort      = "too short"
	InvalidTooSlow       = "too slow"
	InvalidPartial       = "partial"
)

// LapRecord is created when a crossing closes a lap. It is never mutated afterwards.
type LapRecord struct {
	LapNumber   int               `json:"lapNumber"`
	TrackID     TrackID           `json:"trackId"`
	StartTs     int64             `json:"startTs"`
	EndTs       int64             `json:"endTs"`
	LapTimeMs   int64             `json:"lapTimeMs"`
	Samples     []TelemetrySample `json:"samples"`
	DistanceM   float64           `json:"distanceM"`
	MaxSpeedKmh float64           `json:"maxSpeedKmh"`
	AvgSpeedKmh float64           `json:"avgSpeedKmh"`
	IsValid     bool              `json:"isValid"`
	Invalidity  string            `json:"invalidity,omitempty"`
	Partial     bool              `json:"partial,omitempty"`
	Sectors     []SectorResult    `json:"sectors"`
}

type SectorResult struct {
	Ordinal     int     `json:"ordinal"`
	TimeMs      int64   `json:"timeMs"`
	MaxSpeedKmh float64 `json:"maxSpeedKmh"`
	DistanceM   float64 `json:"distanceM"`
	// Estimated is set when the boundaries could not be matched and the time was
	// interpolated from the nominal sector length
	Estimated bool `json:"estimated,omitempty"`
}

// LapEvent is published for every lap emitted by a session.
type LapEvent struct {
	SessionID string     `json:"sessionId"`
	Vehicle   string     `json:"vehicle"`
	Lap       *LapRecord `json:"lap"`
}
