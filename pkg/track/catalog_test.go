package track

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/testsupport/basedata"
)

func sampleCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load([]model.TrackGeometry{basedata.SampleTrack(), basedata.FarTrack()})
	require.NoError(t, err)
	return c
}

func TestLoad(t *testing.T) {
	c := sampleCatalog(t)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []model.TrackID{basedata.SampleTrackID, basedata.FarTrackID}, c.All())

	g, ok := c.Get(basedata.SampleTrackID)
	require.True(t, ok)
	assert.Equal(t, "testtrack", g.Name)
	assert.Len(t, g.Sectors, 3)

	_, ok = c.Get("unknown")
	assert.False(t, ok)
}

func TestLoadCopiesInput(t *testing.T) {
	tracks := []model.TrackGeometry{basedata.SampleTrack()}
	c, err := Load(tracks)
	require.NoError(t, err)
	tracks[0].Sectors[0].NominalLengthM = -1
	g, _ := c.Get(basedata.SampleTrackID)
	assert.Greater(t, g.Sectors[0].NominalLengthM, 0.0)
}

//nolint:funlen // table
func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(g *model.TrackGeometry)
	}{
		{"empty id", func(g *model.TrackGeometry) { g.ID = "" }},
		{"one sector", func(g *model.TrackGeometry) { g.Sectors = g.Sectors[:1] }},
		{"no sectors", func(g *model.TrackGeometry) { g.Sectors = nil }},
		{"outline too short", func(g *model.TrackGeometry) { g.Outline = g.Outline[:2] }},
		{"nan start finish", func(g *model.TrackGeometry) { g.StartFinish.A.Lat = math.NaN() }},
		{"latitude out of range", func(g *model.TrackGeometry) { g.StartFinish.A.Lat = 91 }},
		{"zero width", func(g *model.TrackGeometry) { g.StartFinish.WidthM = 0 }},
		{"bearing out of range", func(g *model.TrackGeometry) { g.StartFinish.BearingDeg = 360 }},
		{"negative bearing", func(g *model.TrackGeometry) { g.StartFinish.BearingDeg = -1 }},
		{"ordinals not increasing", func(g *model.TrackGeometry) { g.Sectors[1].Ordinal = 1 }},
		{"invalid sector point", func(g *model.TrackGeometry) { g.Sectors[2].End.Lng = math.Inf(1) }},
		{"negative nominal length", func(g *model.TrackGeometry) { g.Sectors[0].NominalLengthM = -5 }},
		{"invalid outline point", func(g *model.TrackGeometry) { g.Outline[3].Lat = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := basedata.SampleTrack()
			tt.modify(&g)
			c, err := Load([]model.TrackGeometry{g})
			assert.Nil(t, c)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidGeometry)
			var gerr *GeometryError
			require.True(t, errors.As(err, &gerr))
			assert.Equal(t, g.ID, gerr.TrackID)
		})
	}
}

func TestLoadDuplicate(t *testing.T) {
	_, err := Load([]model.TrackGeometry{basedata.SampleTrack(), basedata.SampleTrack()})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestLoadTwoPointLine(t *testing.T) {
	g := basedata.SampleTrack()
	line := ResolveLine(g.StartFinish)
	g.StartFinish.A = line.A
	g.StartFinish.B = line.B
	g.StartFinish.WidthM = 0
	c, err := Load([]model.TrackGeometry{g})
	require.NoError(t, err)
	l, ok := c.Line(g.ID)
	require.True(t, ok)
	assert.InDelta(t, 0, geo.HaversineDistanceM(l.Center, basedata.SampleCircuit().Anchor), 0.01)
}

func TestResolveLineAnchored(t *testing.T) {
	anchor := basedata.SampleCircuit().Anchor
	l := ResolveLine(model.StartFinishLine{A: anchor, BearingDeg: 180, WidthM: 15})
	assert.Equal(t, anchor.Lat, l.Center.Lat)
	assert.Equal(t, anchor.Lng, l.Center.Lng)
	assert.InDelta(t, 15.0, geo.HaversineDistanceM(l.A, l.B), 0.01)
	assert.InDelta(t, 90.0, geo.AngleDiff(180, geo.BearingDeg(l.A, l.B)), 0.01)
	assert.InDelta(t, 0.0, l.DistanceM(anchor), 1e-6)
}

func TestNearestTracks(t *testing.T) {
	c := sampleCatalog(t)
	anchor := basedata.SampleCircuit().Anchor

	got := c.NearestTracks(anchor, 5)
	require.Len(t, got, 2)
	assert.Equal(t, basedata.SampleTrackID, got[0].TrackID)
	assert.InDelta(t, 0.0, got[0].DistanceM, 0.01)
	assert.Equal(t, basedata.FarTrackID, got[1].TrackID)
	assert.InDelta(t, 5000.0, got[1].DistanceM, 1)

	got = c.NearestTracks(geo.Destination(anchor, 0, 4000), 1)
	require.Len(t, got, 1)
	assert.Equal(t, basedata.FarTrackID, got[0].TrackID)

	assert.Empty(t, c.NearestTracks(anchor, 0))
	assert.Empty(t, c.NearestTracks(model.GeoPoint{Lat: math.NaN()}, 3))
}
