//nolint:funlen // ok for tests
package service

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"gotest.tools/v3/assert"

	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing"
	lapRepos "github.com/mpapenbr/trackside/pkg/repository/lap"
	"github.com/mpapenbr/trackside/testsupport/basedata"
	"github.com/mpapenbr/trackside/testsupport/testdb"
)

func TestLapServiceRecordsSessions(t *testing.T) {
	pool := testdb.InitTestDb()
	ctx := context.Background()
	svc := InitLapService(pool)

	var events []*model.LapEvent
	rec := NewRecorder(
		WithLapService(svc),
		WithEventHandler(func(ev *model.LapEvent) { events = append(events, ev) }))
	m := processing.NewManager(sampleCatalog(t), rec.ManagerOptions(ctx)...)
	samples := twoLaps()
	for i := range samples {
		assert.NilError(t, m.Dispatch(ctx, "car1", &samples[i]))
	}
	m.Close()
	assert.Equal(t, len(events), 2)

	sessionID := uuid.FromStringOrNil(events[0].SessionID)
	session, err := lapRepos.LoadSession(ctx, pool, sessionID)
	assert.NilError(t, err)
	assert.Equal(t, session.TrackID, basedata.SampleTrackID)
	assert.Equal(t, session.Vehicle, "car1")
	assert.Assert(t, session.EndedAt != nil)

	tracks, err := svc.Tracks(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(tracks), 1)
	assert.Equal(t, tracks[0].ID, basedata.SampleTrackID)

	stored, err := svc.TrackLaps(ctx, basedata.SampleTrackID)
	assert.NilError(t, err)
	assert.Equal(t, len(stored), 2)
	assert.Equal(t, stored[1].Lap.LapTimeMs, basedata.SampleLapTimeMs)

	report, err := AnalyzeTrack(ctx, svc, basedata.SampleTrackID)
	assert.NilError(t, err)
	assert.Equal(t, report.Analysis.TotalLaps, 2)
	assert.Equal(t, report.Analysis.BestLapTimeMs, basedata.SampleLapTimeMs)
	assert.Equal(t, len(report.Sectors), 3)
	assert.Equal(t, report.BestLapID, stored[0].ID)

	cmp, err := CompareLaps(ctx, svc, stored[0].ID, stored[1].ID, 10)
	assert.NilError(t, err)
	assert.Equal(t, cmp.TimeDifferenceMs, int64(0))
	assert.Assert(t, len(cmp.Buckets) > 0)

	_, err = svc.Lap(ctx, -1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Track(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = AnalyzeTrack(ctx, svc, basedata.FarTrackID)
	assert.ErrorIs(t, err, ErrNotFound)
}
