package basedata

import (
	"math"
	"time"

	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
)

const (
	SampleTrackID   = model.TrackID("testtrack")
	FarTrackID      = model.TrackID("fartrack")
	SampleLapTimeMs = int64(83456)
	sampleSpeedMs   = 40.0
)

func TestTime() time.Time {
	t, _ := time.Parse(time.RFC3339, "2024-04-28T11:10:12Z")
	return t
}

// SampleCircuit touches the start/finish line at (52.0786, -1.0169), crossing southbound.
// At 40m/s a lap takes SampleLapTimeMs.
func SampleCircuit() Circuit {
	return Circuit{
		Anchor:     model.GeoPoint{Lat: 52.0786, Lng: -1.0169},
		BearingDeg: 180,
		RadiusM:    sampleSpeedMs * float64(SampleLapTimeMs) / 1000 / (2 * math.Pi),
	}
}

// FarCircuit is located 5km north of SampleCircuit.
func FarCircuit() Circuit {
	c := SampleCircuit()
	c.Anchor = geo.Destination(c.Anchor, 0, 5000)
	return c
}

func SampleTrack() model.TrackGeometry {
	return SampleCircuit().Geometry(SampleTrackID, "testtrack", 3)
}

func FarTrack() model.TrackGeometry {
	return FarCircuit().Geometry(FarTrackID, "fartrack", 2)
}

// ScenarioSamples is 90s at 20Hz on SampleCircuit with a sample exactly at the
// end of the first lap.
func ScenarioSamples() []model.TelemetrySample {
	return NewGenerator(SampleCircuit()).Samples()
}
