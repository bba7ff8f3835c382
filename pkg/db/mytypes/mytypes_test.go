package mytypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/trackside/testsupport/basedata"
)

func TestGeometryColumn(t *testing.T) {
	geom := Geometry(basedata.SampleTrack())
	v, err := geom.Value()
	require.NoError(t, err)

	var got Geometry
	require.NoError(t, got.Scan(v))
	assert.Equal(t, geom.ID, got.ID)
	assert.Equal(t, geom.Sectors[2].NominalLengthM, got.Sectors[2].NominalLengthM)
	assert.True(t, got.StartFinish.A.SameLocation(geom.StartFinish.A))
	assert.Len(t, got.Outline, len(geom.Outline))
	// unset values come back as null
	assert.False(t, got.StartFinish.A.Elevation.IsSet())
}

func TestSampleSliceKeepsUnsetValues(t *testing.T) {
	samples := SampleSlice(basedata.NewGenerator(basedata.SampleCircuit(),
		basedata.WithDuration(200)).Samples())
	v, err := samples.Value()
	require.NoError(t, err)

	var got SampleSlice
	require.NoError(t, got.Scan(string(v.([]byte))))
	require.Len(t, got, len(samples))
	assert.False(t, got[0].ThrottlePct.IsSet())
	assert.True(t, got[0].HeadingDeg.IsSet())
}

func TestNilSlices(t *testing.T) {
	v, err := SectorResultSlice(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)

	var got SectorResultSlice
	require.NoError(t, got.Scan([]byte("[]")))
	assert.Equal(t, SectorResultSlice{}, got)
}

func TestScanRejectsOtherTypes(t *testing.T) {
	var got SectorResultSlice
	assert.Error(t, got.Scan(42))
}
