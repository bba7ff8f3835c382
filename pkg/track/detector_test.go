package track

import (
	"testing"

	"github.com/aarondl/opt/omitnull"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/testsupport/basedata"
)

func TestDetect(t *testing.T) {
	d := NewDetector(sampleCatalog(t))
	anchor := basedata.SampleCircuit().Anchor

	tests := []struct {
		name      string
		pos       model.GeoPoint
		accuracy  float64
		wantTop   model.TrackID
		wantConf  float64
		wantCount int
	}{
		{"on the line", anchor, 0, basedata.SampleTrackID, 1.0, 2},
		{"500m away", geo.Destination(anchor, 0, 500), 0, basedata.SampleTrackID, 0.5, 2},
		{"poor accuracy", anchor, 200, basedata.SampleTrackID, 0.5, 2},
		{"good accuracy", anchor, 5, basedata.SampleTrackID, 1.0, 2},
		{"terrible accuracy", anchor, 5000, basedata.SampleTrackID, 0.1, 2},
		{"near far track", geo.Destination(anchor, 0, 4900), 0, basedata.FarTrackID, 0.9, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.pos, tt.accuracy)
			require.Len(t, got, tt.wantCount)
			assert.Equal(t, tt.wantTop, got[0].TrackID)
			assert.InDelta(t, tt.wantConf, got[0].Confidence, 0.01)
			for _, c := range got {
				assert.GreaterOrEqual(t, c.Confidence, 0.0)
				assert.LessOrEqual(t, c.Confidence, 1.0)
			}
		})
	}
}

func TestDetectExcludesDistantTracks(t *testing.T) {
	d := NewDetector(sampleCatalog(t))
	anchor := basedata.SampleCircuit().Anchor

	got := d.Detect(geo.Destination(anchor, 180, 8000), 0)
	require.Len(t, got, 1, "far track is 13km away")
	assert.Equal(t, basedata.SampleTrackID, got[0].TrackID)
	assert.Equal(t, 0.0, got[0].Confidence)

	assert.Empty(t, d.Detect(geo.Destination(anchor, 180, 20000), 0))
}

func TestDetectTieBreak(t *testing.T) {
	a := basedata.SampleTrack()
	b := basedata.SampleTrack()
	b.ID = "a-twin"
	c, err := Load([]model.TrackGeometry{a, b})
	require.NoError(t, err)
	got := NewDetector(c).Detect(geo.Destination(a.StartFinish.A, 0, 2000), 0)
	require.Len(t, got, 2)
	assert.Equal(t, model.TrackID("a-twin"), got[0].TrackID)
	assert.Equal(t, basedata.SampleTrackID, got[1].TrackID)
}

func TestDetectSampleDeadReckoning(t *testing.T) {
	anchor := basedata.SampleCircuit().Anchor
	s := &model.TelemetrySample{
		Position:   geo.Destination(anchor, 0, 300),
		SpeedKmh:   36,
		HeadingDeg: omitnull.From(180.0),
	}

	plain := NewDetector(sampleCatalog(t))
	got := plain.DetectSample(s)
	require.NotEmpty(t, got)
	assert.InDelta(t, 0.7, got[0].Confidence, 0.01)

	dr := NewDetector(sampleCatalog(t), WithDeadReckoning(30000))
	got = dr.DetectSample(s)
	require.NotEmpty(t, got)
	assert.InDelta(t, 1.0, got[0].Confidence, 0.01)
	assert.InDelta(t, 0.0, got[0].DistanceM, 1)

	// heading away from the track never makes things worse
	s.HeadingDeg = omitnull.From(0.0)
	got = dr.DetectSample(s)
	assert.InDelta(t, 0.7, got[0].Confidence, 0.01)
}

func TestDetectSampleUsesAccuracy(t *testing.T) {
	d := NewDetector(sampleCatalog(t))
	s := &model.TelemetrySample{
		Position:  basedata.SampleCircuit().Anchor,
		AccuracyM: omitnull.From(400.0),
	}
	got := d.DetectSample(s)
	require.NotEmpty(t, got)
	assert.InDelta(t, 0.25, got[0].Confidence, 0.01)
}

func TestAccept(t *testing.T) {
	d := NewDetector(sampleCatalog(t))
	cands := []model.Candidate{
		{TrackID: "a", Confidence: 0.85},
		{TrackID: "b", Confidence: 0.2},
	}
	id, err := d.Accept(cands, 0.8)
	require.NoError(t, err)
	assert.Equal(t, model.TrackID("a"), id)

	_, err = d.Accept(cands, 0.9)
	assert.ErrorIs(t, err, ErrTrackNotBound)
	_, err = d.Accept(nil, 0.1)
	assert.ErrorIs(t, err, ErrTrackNotBound)
}

func TestAccuracyFactor(t *testing.T) {
	assert.Equal(t, 1.0, AccuracyFactor(0))
	assert.Equal(t, 1.0, AccuracyFactor(-3))
	assert.Equal(t, 1.0, AccuracyFactor(100))
	assert.Equal(t, 0.5, AccuracyFactor(200))
	assert.Equal(t, 0.1, AccuracyFactor(10000))
}
