package model

type TrackID string

// StartFinishLine describes the timing line of a track.
// If B is unset (zero) or equal to A, the line is centered on A, runs perpendicular
// to BearingDeg and spans WidthM.
type StartFinishLine struct {
	A          GeoPoint `json:"a"`
	B          GeoPoint `json:"b"`
	BearingDeg float64  `json:"bearingDeg"` // racing direction across the line
	WidthM     float64  `json:"widthM"`
}

// IsAnchored reports whether the line is given by a single anchor point.
func (s StartFinishLine) IsAnchored() bool {
	return s.B.SameLocation(GeoPoint{}) || s.B.SameLocation(s.A)
}

type SectorBoundary struct {
	Ordinal        int      `json:"ordinal"`
	Start          GeoPoint `json:"start"`
	End            GeoPoint `json:"end"`
	NominalLengthM float64  `json:"nominalLengthM"`
}

// TrackGeometry is created once from static configuration and never mutated.
type TrackGeometry struct {
	ID          TrackID          `json:"id"`
	Name        string           `json:"name"`
	StartFinish StartFinishLine  `json:"startFinish"`
	Sectors     []SectorBoundary `json:"sectors"`
	Outline     []GeoPoint       `json:"outline"`
}

// NominalLengthM is the sum of all nominal sector lengths.
func (t *TrackGeometry) NominalLengthM() float64 {
	sum := 0.0
	for i := range t.Sectors {
		sum += t.Sectors[i].NominalLengthM
	}
	return sum
}
