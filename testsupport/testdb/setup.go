package testdb

import (
	"context"
	"os"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/model"
	lapRepos "github.com/mpapenbr/trackside/pkg/repository/lap"
	trackRepos "github.com/mpapenbr/trackside/pkg/repository/track"
	"github.com/mpapenbr/trackside/testsupport/basedata"
	tcpg "github.com/mpapenbr/trackside/testsupport/tcpostgres"
)

// InitTestDb returns a pool to an empty, migrated test database.
// If TESTDB_URL is set, that database is used instead of a container.
func InitTestDb() *pgxpool.Pool {
	var pool *pgxpool.Pool

	if os.Getenv("TESTDB_URL") != "" {
		pool = tcpg.SetupExternalTestDb()
	} else {
		pool = tcpg.SetupTestDb()
	}
	if err := pgx.BeginFunc(context.Background(), pool, func(tx pgx.Tx) error {
		tcpg.ClearAllTables(pool)
		return nil
	}); err != nil {
		log.Fatal("initTestDb", log.ErrorField(err))
	}
	return pool
}

// CreateSampleTrack stores basedata.SampleTrack.
func CreateSampleTrack(pool *pgxpool.Pool) *model.TrackGeometry {
	geom := basedata.SampleTrack()
	if err := trackRepos.Create(context.Background(), pool, &geom); err != nil {
		log.Fatal("createSampleTrack", log.ErrorField(err))
	}
	return &geom
}

// CreateSampleSession stores a session for vehicle on the sample track.
func CreateSampleSession(pool *pgxpool.Pool, vehicle string, startedAt time.Time) uuid.UUID {
	s := &lapRepos.Session{
		ID:        uuid.Must(uuid.NewV4()),
		Vehicle:   vehicle,
		TrackID:   basedata.SampleTrackID,
		StartedAt: startedAt,
	}
	if err := lapRepos.CreateSession(context.Background(), pool, s); err != nil {
		log.Fatal("createSampleSession", log.ErrorField(err))
	}
	return s.ID
}
