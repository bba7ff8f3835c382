package model

import "github.com/aarondl/opt/omitnull"

// TrackAnalysis aggregates a set of laps of one track.
type TrackAnalysis struct {
	TrackID           TrackID `json:"trackId"`
	TotalLaps         int     `json:"totalLaps"`
	ValidLaps         int     `json:"validLaps"`
	BestLapTimeMs     int64   `json:"bestLapTimeMs"`
	BestLapNumber     int     `json:"bestLapNumber"`
	AvgLapTimeMs      int64   `json:"avgLapTimeMs"`
	StdDevMs          float64 `json:"stdDevMs"`
	ConsistencyRating float64 `json:"consistencyRating"` // 0..100
	// TheoreticalBestMs is the sum of the best sector times (0 if sectors are missing)
	TheoreticalBestMs int64 `json:"theoreticalBestMs"`
	// Degraded is set if no lap was valid and all laps were used instead
	Degraded bool `json:"degraded,omitempty"`
}

type SectorStats struct {
	Ordinal   int   `json:"ordinal"`
	BestMs    int64 `json:"bestMs"`
	BestLap   int   `json:"bestLap"`
	AvgMs     int64 `json:"avgMs"`
	Estimated int   `json:"estimated"` // number of estimated sector times
}

// SessionMetrics holds aggregates over a raw sample stream.
// The mode counters are measured in sample intervals, not wall time.
type SessionMetrics struct {
	Samples            int     `json:"samples"`
	DurationS          float64 `json:"durationS"`
	DistanceM          float64 `json:"distanceM"`
	AvgSpeedKmh        float64 `json:"avgSpeedKmh"`
	MaxSpeedKmh        float64 `json:"maxSpeedKmh"`
	Intervals          int     `json:"intervals"`
	ThrottleIntervals  int     `json:"throttleIntervals"`
	BrakeIntervals     int     `json:"brakeIntervals"`
	CorneringIntervals int     `json:"corneringIntervals"`
}

type Candidate struct {
	TrackID    TrackID `json:"trackId"`
	Confidence float64 `json:"confidence"`
	DistanceM  float64 `json:"distanceM"`
}

type ComparisonBucket struct {
	DistanceM      float64               `json:"distanceM"`
	SpeedA         float64               `json:"speedA"`
	SpeedB         float64               `json:"speedB"`
	SpeedDeltaKmh  float64               `json:"speedDeltaKmh"` // B - A
	ThrottleDelta  omitnull.Val[float64] `json:"throttleDelta"` // B - A
	LateralOffsetM float64               `json:"lateralOffsetM"`
	TimeDeltaMs    int64                 `json:"timeDeltaMs"` // B - A, elapsed since lap start
}

type LapComparison struct {
	LapA             int                `json:"lapA"`
	LapB             int                `json:"lapB"`
	BucketSizeM      float64            `json:"bucketSizeM"`
	TimeDifferenceMs int64              `json:"timeDifferenceMs"` // B - A, positive: B is slower
	Buckets          []ComparisonBucket `json:"buckets"`
}
