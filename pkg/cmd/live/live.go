package live

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/cmd/server"
	"github.com/mpapenbr/trackside/pkg/cmd/util"
	"github.com/mpapenbr/trackside/pkg/config"
	"github.com/mpapenbr/trackside/pkg/endpoints/public"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing"
	"github.com/mpapenbr/trackside/pkg/service"
	natstransport "github.com/mpapenbr/trackside/pkg/transport/nats"
	"github.com/mpapenbr/trackside/pkg/utils/broadcast"
)

var (
	store       bool
	serveHTTP   bool
	watch       bool
	subject     string
	queueSize   int
	eventBuffer int
)

var errHTTPNeedsStore = errors.New("--serve requires --store")

func NewLiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "processes live telemetry from NATS",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if serveHTTP && !store {
				return errHTTPNeedsStore
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startLive(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&store, "store", true,
		"store sessions and laps in the database")
	cmd.Flags().BoolVar(&serveHTTP, "serve", false,
		"serve the HTTP API including the lap event stream")
	cmd.Flags().BoolVar(&watch, "watch-catalog", true,
		"reload the track catalog when the file changes")
	cmd.Flags().StringVar(&subject, "subject", natstransport.TelemetrySubjectPrefix+".*",
		"NATS subject for telemetry samples")
	cmd.Flags().IntVar(&queueSize, "queue-size", processing.DefaultQueueSize,
		"number of queued samples per vehicle")
	cmd.Flags().IntVar(&eventBuffer, "event-buffer", 64,
		"number of lap events buffered for the event stream")
	server.AddHTTPFlags(cmd)
	return cmd
}

//nolint:funlen // by design
func startLive(ctx context.Context) error {
	sqlLogger, err := util.SetupLogger()
	if err != nil {
		return err
	}
	engine, err := util.EngineOptions()
	if err != nil {
		return err
	}
	catalog, err := util.LoadCatalog()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if telemetry := util.StartTelemetry(ctx); telemetry != nil {
		defer telemetry.Shutdown()
	}
	util.WaitForRequiredServices(util.RequiredServices{DB: store, Nats: true})

	conn, err := util.ConnectNats()
	if err != nil {
		return err
	}
	defer conn.Close()
	pub, err := natstransport.NewPublisher(ctx, conn)
	if err != nil {
		return err
	}

	recOpts := []service.RecorderOption{service.WithPublisher(pub)}
	var laps *service.LapService
	if store {
		pool := util.ConnectDB(sqlLogger)
		defer pool.Close()
		laps = service.InitLapService(pool)
		recOpts = append(recOpts, service.WithLapService(laps))
	}
	var events broadcast.BroadcastServer[*model.LapEvent]
	if serveHTTP {
		ch := make(chan *model.LapEvent, eventBuffer)
		events = broadcast.NewBroadcastServer("lap", "live", ch)
		defer events.Close()
		recOpts = append(recOpts, service.WithEventHandler(forwardEvents(ch)))
	}

	// sinks must still work while the manager drains after a shutdown signal
	p := newProcessor(context.WithoutCancel(ctx), catalog, engine, service.NewRecorder(recOpts...))
	defer p.manager.Close()

	if watch {
		if err := config.WatchCatalogFile(ctx, config.CatalogFile, p.reloadCatalog); err != nil {
			return err
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return natstransport.NewSource(conn, natstransport.WithSubject(subject)).
			Run(gCtx, p.handleSample)
	})
	if serveHTTP {
		api := public.NewPublicManager(laps,
			public.WithAnalysisLoader(pub),
			public.WithLapEvents(events),
			public.WithBucketSize(engine.BucketSizeM))
		g.Go(func() error {
			return server.Serve(gCtx, server.NewHTTPServer(config.HTTPAddr, api.Handler()))
		})
	}
	log.Info("live processing started", log.Int("tracks", catalog.Len()))
	err = g.Wait()
	log.Info("live processing stopped", log.Strings("vehicles", p.manager.Vehicles()))
	return err
}
