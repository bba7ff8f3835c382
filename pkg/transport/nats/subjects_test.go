package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/trackside/pkg/model"
)

func TestSubjects(t *testing.T) {
	tests := []struct {
		vehicle   string
		telemetry string
		laps      string
	}{
		{"car1", "telemetry.car1", "laps.car1"},
		{"car 1.x", "telemetry.car_1_x", "laps.car_1_x"},
		{"", "telemetry._", "laps._"},
	}
	for _, tt := range tests {
		t.Run(tt.vehicle, func(t *testing.T) {
			assert.Equal(t, tt.telemetry, TelemetrySubject(tt.vehicle))
			assert.Equal(t, tt.laps, LapSubject(tt.vehicle))
			assert.Equal(t, Token(tt.vehicle), VehicleFromSubject(TelemetrySubject(tt.vehicle)))
		})
	}
}

func TestAnalysisKey(t *testing.T) {
	assert.Equal(t, "testtrack.car1", AnalysisKey("testtrack", "car1"))
	assert.Equal(t, "test_track.car1", AnalysisKey("test track", "car1"))
}

func TestDecodeSample(t *testing.T) {
	s, err := DecodeSample([]byte(
		`{"timestampMs":1000,"position":{"lat":52.0786,"lng":-1.0169},"speedKmh":144,"throttlePct":80}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), s.TimestampMs)
	assert.InDelta(t, 80.0, s.ThrottlePct.GetOr(0), 1e-9)
	assert.False(t, s.BrakePct.IsSet())
	assert.True(t, s.Position.SameLocation(model.GeoPoint{Lat: 52.0786, Lng: -1.0169}))

	_, err = DecodeSample([]byte("{"))
	assert.Error(t, err)
}
