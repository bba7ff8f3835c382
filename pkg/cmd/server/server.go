package server

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/cmd/util"
	"github.com/mpapenbr/trackside/pkg/config"
	"github.com/mpapenbr/trackside/pkg/endpoints/public"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/service"
	natstransport "github.com/mpapenbr/trackside/pkg/transport/nats"
	"github.com/mpapenbr/trackside/pkg/utils/broadcast"
)

var (
	withNats  bool
	reportTTL time.Duration
)

func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "serves stored tracks, laps and analyses via HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	AddHTTPFlags(cmd)
	cmd.Flags().BoolVar(&withNats, "with-nats", false,
		"stream lap events and live analyses from NATS")
	cmd.Flags().DurationVar(&reportTTL, "report-ttl", 30*time.Second,
		"how long track reports are cached")
	return cmd
}

// AddHTTPFlags adds the listen address flag to cmd.
func AddHTTPFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&config.HTTPAddr, "http-addr", "localhost:8080",
		"listen address of the HTTP API")
}

//nolint:funlen // by design
func startServer(ctx context.Context) error {
	sqlLogger, err := util.SetupLogger()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if telemetry := util.StartTelemetry(ctx); telemetry != nil {
		defer telemetry.Shutdown()
	}
	util.WaitForRequiredServices(util.RequiredServices{DB: true, Nats: withNats})

	log.Info("Starting server")
	pool := util.ConnectDB(sqlLogger)
	defer pool.Close()

	opts := []public.Option{
		public.WithBucketSize(config.EngineConfig.BucketSizeM),
		public.WithReportTTL(reportTTL),
	}
	if withNats {
		conn, err := util.ConnectNats()
		if err != nil {
			return err
		}
		defer conn.Close()
		pub, err := natstransport.NewPublisher(ctx, conn)
		if err != nil {
			return err
		}
		laps := make(chan *model.LapEvent)
		events := broadcast.NewBroadcastServer("lap", "server", laps)
		defer events.Close()
		go func() {
			if err := natstransport.NewLapSubscriber(conn).Run(ctx, laps); err != nil {
				log.Error("lap subscription failed", log.ErrorField(err))
			}
		}()
		opts = append(opts, public.WithAnalysisLoader(pub), public.WithLapEvents(events))
	}

	api := public.NewPublicManager(service.InitLapService(pool), opts...)
	setupGoRoutinesDump()
	if err := Serve(ctx, NewHTTPServer(config.HTTPAddr, api.Handler())); err != nil {
		log.Error("server could not be started", log.ErrorField(err))
		return err
	}
	log.Info("Server terminated")
	return nil
}
