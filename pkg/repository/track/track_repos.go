//nolint:whitespace // can't make both editor and linter happy
package track

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mpapenbr/trackside/pkg/db/mytypes"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/repository"
)

func Create(ctx context.Context, conn repository.Querier, geom *model.TrackGeometry) error {
	_, err := conn.Exec(ctx, `
	insert into track (id, name, geometry, nominal_length)
	values ($1,$2,$3,$4)
	`,
		string(geom.ID), geom.Name, mytypes.Geometry(*geom), nominalLength(geom))
	return err
}

// Upsert creates the track or replaces the stored geometry.
func Upsert(ctx context.Context, conn repository.Querier, geom *model.TrackGeometry) error {
	_, err := conn.Exec(ctx, `
	insert into track (id, name, geometry, nominal_length)
	values ($1,$2,$3,$4)
	on conflict (id) do update set
		name=excluded.name,
		geometry=excluded.geometry,
		nominal_length=excluded.nominal_length,
		updated_at=now()
	`,
		string(geom.ID), geom.Name, mytypes.Geometry(*geom), nominalLength(geom))
	return err
}

func LoadByID(ctx context.Context, conn repository.Querier, id model.TrackID) (
	*model.TrackGeometry, error,
) {
	row := conn.QueryRow(ctx, "select geometry from track where id=$1", string(id))
	var geom mytypes.Geometry
	if err := row.Scan(&geom); err != nil {
		return nil, err
	}
	ret := model.TrackGeometry(geom)
	return &ret, nil
}

// LoadAll returns all tracks ordered by id.
func LoadAll(ctx context.Context, conn repository.Querier) ([]model.TrackGeometry, error) {
	rows, err := conn.Query(ctx, "select geometry from track order by id")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TrackGeometry, error) {
		var geom mytypes.Geometry
		err := row.Scan(&geom)
		return model.TrackGeometry(geom), err
	})
}

// NominalLength returns the stored nominal length of the track.
func NominalLength(ctx context.Context, conn repository.Querier, id model.TrackID) (
	decimal.Decimal, error,
) {
	var ret decimal.Decimal
	err := conn.QueryRow(ctx,
		"select nominal_length from track where id=$1", string(id)).Scan(&ret)
	return ret, err
}

// DeleteByID deletes an entry from the database, returns number of rows deleted.
func DeleteByID(ctx context.Context, conn repository.Querier, id model.TrackID) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from track where id=$1", string(id))
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

func nominalLength(geom *model.TrackGeometry) decimal.Decimal {
	return decimal.NewFromFloat(geom.NominalLengthM()).Round(2)
}
