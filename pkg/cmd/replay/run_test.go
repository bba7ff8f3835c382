package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/config"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/service"
	"github.com/mpapenbr/trackside/pkg/track"
	"github.com/mpapenbr/trackside/testsupport/basedata"
)

func jsonLines(t *testing.T, samples []model.TelemetrySample) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range samples {
		require.NoError(t, enc.Encode(&samples[i]))
		if i == 10 {
			buf.WriteString("\n")
		}
	}
	return &buf
}

func newReplayer(t *testing.T, events *[]*model.LapEvent) *replayer {
	t.Helper()
	c, err := track.Load([]model.TrackGeometry{basedata.SampleTrack(), basedata.FarTrack()})
	require.NoError(t, err)
	return &replayer{
		catalog: c,
		engine:  config.DefaultEngine(),
		vehicle: "car1",
		recorder: service.NewRecorder(service.WithEventHandler(func(ev *model.LapEvent) {
			*events = append(*events, ev)
		})),
		log: log.Default().Named("replay"),
	}
}

func TestRun(t *testing.T) {
	var events []*model.LapEvent
	r := newReplayer(t, &events)
	samples := basedata.NewGenerator(basedata.SampleCircuit(),
		basedata.WithDuration(2*basedata.SampleLapTimeMs+20000)).Samples()

	result, err := r.run(context.Background(), jsonLines(t, samples))
	require.NoError(t, err)
	assert.Equal(t, basedata.SampleTrackID, result.TrackID)
	assert.Len(t, result.Laps, 2)
	assert.Len(t, events, 2)
	assert.Equal(t, 0, result.Rejected)
	require.NotNil(t, result.Analysis)
	assert.Equal(t, basedata.SampleLapTimeMs, result.Analysis.BestLapTimeMs)
	assert.Equal(t, len(samples), result.Metrics.Samples)
}

func TestRunCountsRejectedSamples(t *testing.T) {
	var events []*model.LapEvent
	r := newReplayer(t, &events)
	samples := basedata.ScenarioSamples()
	// duplicate timestamp
	samples = append(samples[:50:50], append([]model.TelemetrySample{samples[49]}, samples[50:]...)...)

	result, err := r.run(context.Background(), jsonLines(t, samples))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rejected)
	assert.Len(t, result.Laps, 1)
}

func TestRunWithTrack(t *testing.T) {
	var events []*model.LapEvent
	r := newReplayer(t, &events)
	r.trackID = "unknown"
	_, err := r.run(context.Background(), strings.NewReader(""))
	assert.Error(t, err)

	r.trackID = basedata.FarTrackID
	result, err := r.run(context.Background(), jsonLines(t, basedata.ScenarioSamples()))
	require.NoError(t, err)
	assert.Equal(t, basedata.FarTrackID, result.TrackID)
	assert.Empty(t, result.Laps)
}

func TestReadSamplesReportsLine(t *testing.T) {
	in := strings.NewReader("{\"timestampMs\":1,\"position\":{\"lat\":1,\"lng\":2}}\n\nnot json\n")
	n := 0
	err := readSamples(in, func(*model.TelemetrySample) error {
		n++
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
	assert.Equal(t, 1, n)
}
