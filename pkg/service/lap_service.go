//nolint:whitespace //can't make both the linter and editor happy :(
package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/repository/lap"
	"github.com/mpapenbr/trackside/pkg/repository/track"
)

var ErrNotFound = errors.New("not found")

var meter = otel.Meter("trackside.service")

// LapService stores sessions and laps and reads them back.
type LapService struct {
	pool          *pgxpool.Pool
	storeRecorder metric.Float64Histogram
}

func InitLapService(pool *pgxpool.Pool) *LapService {
	storeRecorder, err := meter.Float64Histogram("trackside.lap.store",
		metric.WithDescription("store a lap"),
		metric.WithUnit("s"))
	if err != nil {
		log.Error("failed to register metric", log.ErrorField(err))
	}
	return &LapService{pool: pool, storeRecorder: storeRecorder}
}

// RegisterSession stores the session together with its track. The stored
// track geometry is replaced by geom.
func (s *LapService) RegisterSession(
	ctx context.Context,
	session *lap.Session,
	geom *model.TrackGeometry,
) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := track.Upsert(ctx, tx, geom); err != nil {
			return err
		}
		session.TrackID = geom.ID
		return lap.CreateSession(ctx, tx, session)
	})
}

// StoreLap returns the database id of the new lap.
func (s *LapService) StoreLap(
	ctx context.Context,
	sessionID uuid.UUID,
	record *model.LapRecord,
) (int64, error) {
	start := time.Now()
	var id int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		id, err = lap.Create(ctx, tx, sessionID, record)
		return err
	})
	if s.storeRecorder != nil {
		s.storeRecorder.Record(ctx, time.Since(start).Seconds())
	}
	return id, err
}

func (s *LapService) EndSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	return lap.EndSession(ctx, s.pool, id, at)
}

func (s *LapService) Tracks(ctx context.Context) ([]model.TrackGeometry, error) {
	return track.LoadAll(ctx, s.pool)
}

func (s *LapService) Track(ctx context.Context, id model.TrackID) (
	*model.TrackGeometry, error,
) {
	ret, err := track.LoadByID(ctx, s.pool, id)
	return ret, notFound(err)
}

// TrackLaps returns all stored laps of a track, oldest session first.
func (s *LapService) TrackLaps(ctx context.Context, id model.TrackID) (
	[]lap.StoredLap, error,
) {
	return lap.LoadByTrack(ctx, s.pool, id)
}

func (s *LapService) Lap(ctx context.Context, id int64) (*lap.StoredLap, error) {
	ret, err := lap.LoadByID(ctx, s.pool, id)
	return ret, notFound(err)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
