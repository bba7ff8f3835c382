//nolint:whitespace // can't make both editor and linter happy
package lap

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mpapenbr/trackside/pkg/db/mytypes"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/repository"
)

type Session struct {
	ID        uuid.UUID
	Vehicle   string
	TrackID   model.TrackID
	StartedAt time.Time
	EndedAt   *time.Time
}

// StoredLap is a lap together with its database keys.
type StoredLap struct {
	ID        int64
	SessionID uuid.UUID
	Lap       *model.LapRecord
}

func CreateSession(ctx context.Context, conn repository.Querier, s *Session) error {
	_, err := conn.Exec(ctx, `
	insert into session (id, vehicle, track_id, started_at) values ($1,$2,$3,$4)
	`, s.ID, s.Vehicle, nullableTrack(s.TrackID), s.StartedAt)
	return err
}

// UpdateSessionTrack sets the track once detection committed to one.
func UpdateSessionTrack(
	ctx context.Context,
	conn repository.Querier,
	id uuid.UUID,
	trackID model.TrackID,
) error {
	_, err := conn.Exec(ctx, "update session set track_id=$1 where id=$2",
		string(trackID), id)
	return err
}

func EndSession(ctx context.Context, conn repository.Querier, id uuid.UUID, at time.Time) error {
	_, err := conn.Exec(ctx, "update session set ended_at=$1 where id=$2", at, id)
	return err
}

func LoadSession(ctx context.Context, conn repository.Querier, id uuid.UUID) (*Session, error) {
	var ret Session
	var trackID *string
	err := conn.QueryRow(ctx, `
	select id, vehicle, track_id, started_at, ended_at from session where id=$1
	`, id).Scan(&ret.ID, &ret.Vehicle, &trackID, &ret.StartedAt, &ret.EndedAt)
	if err != nil {
		return nil, err
	}
	if trackID != nil {
		ret.TrackID = model.TrackID(*trackID)
	}
	return &ret, nil
}

// Create stores a lap and returns its id.
func Create(
	ctx context.Context,
	conn repository.Querier,
	sessionID uuid.UUID,
	lap *model.LapRecord,
) (int64, error) {
	var id int64
	err := conn.QueryRow(ctx, `
	insert into lap (
		session_id, lap_num, track_id, start_ts, end_ts, lap_time_ms,
		distance_m, max_speed_kmh, avg_speed_kmh,
		is_valid, invalidity, partial, sectors, samples
	) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	returning id
	`,
		sessionID, lap.LapNumber, string(lap.TrackID), lap.StartTs, lap.EndTs, lap.LapTimeMs,
		toDecimal(lap.DistanceM), toDecimal(lap.MaxSpeedKmh), toDecimal(lap.AvgSpeedKmh),
		lap.IsValid, lap.Invalidity, lap.Partial,
		mytypes.SectorResultSlice(lap.Sectors), mytypes.SampleSlice(lap.Samples),
	).Scan(&id)
	return id, err
}

func LoadByID(ctx context.Context, conn repository.Querier, id int64) (*StoredLap, error) {
	row := conn.QueryRow(ctx, selector+" where id=$1", id)
	return scan(row)
}

// LoadByTrack returns the laps of a track ordered by session start and lap number.
func LoadByTrack(
	ctx context.Context,
	conn repository.Querier,
	trackID model.TrackID,
) ([]StoredLap, error) {
	rows, err := conn.Query(ctx, `
	select l.id, l.session_id, l.lap_num, l.track_id, l.start_ts, l.end_ts, l.lap_time_ms,
		l.distance_m, l.max_speed_kmh, l.avg_speed_kmh,
		l.is_valid, l.invalidity, l.partial, l.sectors, l.samples
	from lap l join session s on s.id=l.session_id
	where l.track_id=$1
	order by s.started_at, l.lap_num
	`, string(trackID))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func LoadBySession(
	ctx context.Context,
	conn repository.Querier,
	sessionID uuid.UUID,
) ([]StoredLap, error) {
	rows, err := conn.Query(ctx, selector+" where session_id=$1 order by lap_num", sessionID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// DeleteBySession deletes the laps of a session, returns number of rows deleted.
func DeleteBySession(ctx context.Context, conn repository.Querier, sessionID uuid.UUID) (
	int, error,
) {
	cmdTag, err := conn.Exec(ctx, "delete from lap where session_id=$1", sessionID)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// Records extracts the lap records.
func Records(laps []StoredLap) []*model.LapRecord {
	ret := make([]*model.LapRecord, len(laps))
	for i := range laps {
		ret[i] = laps[i].Lap
	}
	return ret
}

// little helper
const selector = `select id, session_id, lap_num, track_id, start_ts, end_ts, lap_time_ms,
	distance_m, max_speed_kmh, avg_speed_kmh,
	is_valid, invalidity, partial, sectors, samples
	from lap`

func collect(rows pgx.Rows) ([]StoredLap, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StoredLap, error) {
		ret, err := scan(row)
		if err != nil {
			return StoredLap{}, err
		}
		return *ret, nil
	})
}

func scan(row pgx.Row) (*StoredLap, error) {
	var (
		ret     StoredLap
		lap     model.LapRecord
		trackID string
		dist    decimal.Decimal
		maxSpd  decimal.Decimal
		avgSpd  decimal.Decimal
		sectors mytypes.SectorResultSlice
		samples mytypes.SampleSlice
	)
	if err := row.Scan(
		&ret.ID, &ret.SessionID, &lap.LapNumber, &trackID,
		&lap.StartTs, &lap.EndTs, &lap.LapTimeMs,
		&dist, &maxSpd, &avgSpd,
		&lap.IsValid, &lap.Invalidity, &lap.Partial, &sectors, &samples,
	); err != nil {
		return nil, err
	}
	lap.TrackID = model.TrackID(trackID)
	lap.DistanceM = dist.InexactFloat64()
	lap.MaxSpeedKmh = maxSpd.InexactFloat64()
	lap.AvgSpeedKmh = avgSpd.InexactFloat64()
	lap.Sectors = sectors
	lap.Samples = samples
	ret.Lap = &lap
	return &ret, nil
}

func toDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func nullableTrack(id model.TrackID) *string {
	if id == "" {
		return nil
	}
	s := string(id)
	return &s
}
