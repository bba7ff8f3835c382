package migrate

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/cmd/util"
	"github.com/mpapenbr/trackside/pkg/config"
	"github.com/mpapenbr/trackside/pkg/db/migrate"
)

var down bool

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration()
		},
	}

	cmd.Flags().BoolVar(&down,
		"down",
		false,
		"reverts all migrations (drops all data)")

	return cmd
}

func startMigration() error {
	if _, err := util.SetupLogger(); err != nil {
		return err
	}
	util.WaitForRequiredServices(util.RequiredServices{DB: true})

	dbURL := prepareURLForDB(config.DB)
	if down {
		log.Warn("Reverting all migrations")
		return migrate.DowngradeDb(dbURL)
	}
	return migrate.MigrateDb(dbURL)
}

func prepareURLForDB(url string) string {
	options := "sslmode=disable"
	if strings.Contains(url, "sslmode=") {
		return url
	}
	if strings.Contains(url, "?") {
		return fmt.Sprintf("%s&%s", url, options)
	} else {
		return fmt.Sprintf("%s?%s", url, options)
	}
}
