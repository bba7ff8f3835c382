package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/testsupport/basedata"
)

const sampleCatalog = `
version: v1.0.0
tracks:
  - id: kart
    name: Kart Arena
    startFinish:
      a: {lat: 52.0786, lng: -1.0169}
      bearing: 180
      width: 12
    sectors:
      - ordinal: 1
        start: {lat: 52.0786, lng: -1.0169}
        end: {lat: 52.0776, lng: -1.0179}
        nominalLength: 400
      - ordinal: 2
        start: {lat: 52.0776, lng: -1.0179}
        end: {lat: 52.0786, lng: -1.0169, elevation: 112.5}
        nominalLength: 420
    outline:
      - {lat: 52.0786, lng: -1.0169}
      - {lat: 52.0776, lng: -1.0179}
      - {lat: 52.0786, lng: -1.0189}
`

func TestParseCatalog(t *testing.T) {
	tracks, err := ParseCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	tr := tracks[0]
	assert.Equal(t, model.TrackID("kart"), tr.ID)
	assert.Equal(t, "Kart Arena", tr.Name)
	assert.True(t, tr.StartFinish.IsAnchored())
	assert.Equal(t, 12.0, tr.StartFinish.WidthM)
	assert.Equal(t, 180.0, tr.StartFinish.BearingDeg)
	require.Len(t, tr.Sectors, 2)
	assert.Equal(t, 820.0, tr.NominalLengthM())
	assert.False(t, tr.Sectors[0].End.Elevation.IsSet())
	elev, ok := tr.Sectors[1].End.Elevation.Get()
	require.True(t, ok)
	assert.Equal(t, 112.5, elev)
	assert.Len(t, tr.Outline, 3)
}

func TestParseCatalogUnknownField(t *testing.T) {
	_, err := ParseCatalog(strings.NewReader("tracks:\n  - id: x\n    length: 3\n"))
	assert.Error(t, err)
}

func TestParseCatalogFormat(t *testing.T) {
	_, err := ParseCatalog(strings.NewReader("version: v2.0.0\ntracks: []\n"))
	assert.ErrorIs(t, err, ErrCatalogFormat)
}

func TestParseCatalogEmpty(t *testing.T) {
	tracks, err := ParseCatalog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestMarshalCatalog(t *testing.T) {
	tracks := []model.TrackGeometry{basedata.SampleTrack(), basedata.FarTrack()}
	data, err := MarshalCatalog(tracks)
	require.NoError(t, err)
	got, err := ParseCatalog(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, tracks, got)
}

func TestLoadCatalogFileMissing(t *testing.T) {
	_, err := LoadCatalogFile(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatchCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracks.yml")
	require.NoError(t, os.WriteFile(path, []byte("tracks: []\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan []model.TrackGeometry, 10)
	require.NoError(t, WatchCatalogFile(ctx, path, func(tracks []model.TrackGeometry) {
		changes <- tracks
	}))

	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))
	// a write may be reported more than once, wait for the complete content
	deadline := time.After(5 * time.Second)
	for {
		select {
		case tracks := <-changes:
			if len(tracks) == 1 {
				assert.Equal(t, model.TrackID("kart"), tracks[0].ID)
				return
			}
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
}

func TestDefaultEngine(t *testing.T) {
	e := DefaultEngine()
	assert.Equal(t, 30.0, e.LineToleranceM)
	assert.Equal(t, int64(15000), e.MinLapTimeMs)
	assert.Equal(t, 100.0, e.MinValidDistanceM)
	assert.Equal(t, 50.0, e.BoundaryToleranceM)
	assert.Equal(t, 0.8, e.AcceptanceThreshold)
}
