package public

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing"
	"github.com/mpapenbr/trackside/pkg/repository/lap"
	"github.com/mpapenbr/trackside/pkg/service"
	natstransport "github.com/mpapenbr/trackside/pkg/transport/nats"
	"github.com/mpapenbr/trackside/pkg/track"
	"github.com/mpapenbr/trackside/pkg/utils/broadcast"
	"github.com/mpapenbr/trackside/testsupport/basedata"
)

type fakeStore struct {
	tracks []model.TrackGeometry
	laps   []lap.StoredLap
}

func (f *fakeStore) Tracks(ctx context.Context) ([]model.TrackGeometry, error) {
	return f.tracks, nil
}

func (f *fakeStore) Track(ctx context.Context, id model.TrackID) (*model.TrackGeometry, error) {
	for i := range f.tracks {
		if f.tracks[i].ID == id {
			return &f.tracks[i], nil
		}
	}
	return nil, service.ErrNotFound
}

func (f *fakeStore) TrackLaps(ctx context.Context, id model.TrackID) ([]lap.StoredLap, error) {
	var ret []lap.StoredLap
	for _, l := range f.laps {
		if l.Lap.TrackID == id {
			ret = append(ret, l)
		}
	}
	return ret, nil
}

func (f *fakeStore) Lap(ctx context.Context, id int64) (*lap.StoredLap, error) {
	for i := range f.laps {
		if f.laps[i].ID == id {
			return &f.laps[i], nil
		}
	}
	return nil, service.ErrNotFound
}

type fakeAnalysis map[string]*model.TrackAnalysis

func (f fakeAnalysis) LoadAnalysis(ctx context.Context, trackID model.TrackID, vehicle string) (
	*model.TrackAnalysis, error,
) {
	if ret, ok := f[string(trackID)+"/"+vehicle]; ok {
		return ret, nil
	}
	return nil, natstransport.ErrAnalysisNotFound
}

func newStore(t *testing.T) *fakeStore {
	t.Helper()
	catalog, err := track.Load([]model.TrackGeometry{basedata.SampleTrack()})
	require.NoError(t, err)
	s := processing.NewSession(catalog)
	samples := basedata.NewGenerator(basedata.SampleCircuit(),
		basedata.WithDuration(2*basedata.SampleLapTimeMs+20000)).Samples()
	for i := range samples {
		_, err := s.Ingest(&samples[i])
		require.NoError(t, err)
	}
	ret := &fakeStore{tracks: []model.TrackGeometry{basedata.SampleTrack()}}
	for i, l := range s.Laps() {
		ret.laps = append(ret.laps, lap.StoredLap{ID: int64(i + 10), SessionID: s.ID(), Lap: l})
	}
	require.Len(t, ret.laps, 2)
	return ret
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rec
}

func TestEndpoints(t *testing.T) {
	store := newStore(t)
	ta := &model.TrackAnalysis{TrackID: basedata.SampleTrackID, TotalLaps: 3}
	h := NewPublicManager(store,
		WithAnalysisLoader(fakeAnalysis{string(basedata.SampleTrackID) + "/car7": ta}),
	).Handler()
	trackURL := "/api/v1/tracks/" + string(basedata.SampleTrackID)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"health", "/healthz", http.StatusOK},
		{"version", "/api/v1/version", http.StatusOK},
		{"tracks", "/api/v1/tracks", http.StatusOK},
		{"track", trackURL, http.StatusOK},
		{"unknown track", "/api/v1/tracks/nowhere", http.StatusNotFound},
		{"laps", trackURL + "/laps", http.StatusOK},
		{"analysis", trackURL + "/analysis", http.StatusOK},
		{"analysis without laps", "/api/v1/tracks/nowhere/analysis", http.StatusNotFound},
		{"live analysis", trackURL + "/vehicles/car7/analysis", http.StatusOK},
		{"live analysis unknown", trackURL + "/vehicles/car8/analysis", http.StatusNotFound},
		{"lap", "/api/v1/laps/10", http.StatusOK},
		{"lap unknown", "/api/v1/laps/99", http.StatusNotFound},
		{"lap invalid", "/api/v1/laps/abc", http.StatusBadRequest},
		{"compare", "/api/v1/compare?a=10&b=11", http.StatusOK},
		{"compare bucket", "/api/v1/compare?a=10&b=11&bucket=25", http.StatusOK},
		{"compare missing", "/api/v1/compare?a=10", http.StatusBadRequest},
		{"compare bad bucket", "/api/v1/compare?a=10&b=11&bucket=-1", http.StatusBadRequest},
		{"events disabled", "/api/v1/events", http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestTrackLapsWithoutSamples(t *testing.T) {
	h := NewPublicManager(newStore(t)).Handler()
	rec := get(t, h, "/api/v1/tracks/"+string(basedata.SampleTrackID)+"/laps")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []LapSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	for _, l := range got {
		assert.Empty(t, l.Lap.Samples)
		assert.Equal(t, basedata.SampleLapTimeMs, l.Lap.LapTimeMs)
	}
}

func TestTrackAnalysis(t *testing.T) {
	store := newStore(t)
	h := NewPublicManager(store, WithReportTTL(time.Hour)).Handler()
	target := "/api/v1/tracks/" + string(basedata.SampleTrackID) + "/analysis"
	rec := get(t, h, target)
	require.Equal(t, http.StatusOK, rec.Code)
	var got service.TrackReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Analysis.TotalLaps)
	assert.Equal(t, int64(10), got.BestLapID)

	// served from cache
	store.laps = store.laps[:1]
	rec = get(t, h, target)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Analysis.TotalLaps)
}

func TestCompare(t *testing.T) {
	h := NewPublicManager(newStore(t), WithBucketSize(20)).Handler()
	rec := get(t, h, "/api/v1/compare?a=10&b=11")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.LapComparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(0), got.TimeDifferenceMs)
	assert.InDelta(t, 20.0, got.BucketSizeM, 1e-9)
}

func TestEventStream(t *testing.T) {
	source := make(chan *model.LapEvent)
	events := broadcast.NewBroadcastServer("lap", "test", source)
	defer events.Close()
	srv := httptest.NewServer(NewPublicManager(&fakeStore{}, WithLapEvents(events)).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/v1/events?vehicle=car7", http.NoBody)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// the subscription is registered asynchronously, so keep sending
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, v := range []string{"car8", "car7"} {
					ev := &model.LapEvent{
						SessionID: uuid.Must(uuid.NewV4()).String(),
						Vehicle:   v,
						Lap: &model.LapRecord{
							LapNumber: 1,
							Samples:   []model.TelemetrySample{{TimestampMs: 1}},
						},
					}
					select {
					case source <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		if after, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			data = after
			break
		}
	}
	require.NotEmpty(t, data)
	var got model.LapEvent
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, "car7", got.Vehicle)
	assert.Empty(t, got.Lap.Samples)
	cancel()
}
