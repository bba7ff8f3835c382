//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/db/migrate"
	database "github.com/mpapenbr/trackside/pkg/db/postgres"
)

// SetupTestDb starts (or reuses) a postgres container and applies the migrations.
func SetupTestDb() *pgxpool.Pool {
	ctx := context.Background()
	container, err := StartPostgres(ctx)
	if err != nil {
		log.Fatal("could not start postgres container", log.ErrorField(err))
	}
	dbURL, err := container.URL(ctx)
	if err != nil {
		log.Fatal("could not resolve container address", log.ErrorField(err))
	}
	return migrateAndConnect(dbURL)
}

// SetupExternalTestDb uses the database given by TESTDB_URL.
func SetupExternalTestDb() *pgxpool.Pool {
	return migrateAndConnect(os.Getenv("TESTDB_URL"))
}

func migrateAndConnect(dbURL string) *pgxpool.Pool {
	if err := migrate.MigrateDb(dbURL); err != nil {
		log.Fatal("could not migrate test database", log.ErrorField(err))
	}
	return database.InitWithUrl(dbURL)
}

// ClearAllTables deletes in foreign key order.
func ClearAllTables(pool *pgxpool.Pool) {
	for _, table := range []string{"lap", "session", "track"} {
		pool.Exec(context.Background(), "delete from "+table)
	}
}
