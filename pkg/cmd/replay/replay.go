package replay

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/cmd/report"
	"github.com/mpapenbr/trackside/pkg/cmd/util"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/service"
	natstransport "github.com/mpapenbr/trackside/pkg/transport/nats"
)

var (
	samplesFile  string
	vehicle      string
	trackID      string
	store        bool
	publish      bool
	outputFormat string
	withSamples  bool
)

func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "replays a JSON lines sample file and prints laps and analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startReplay(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&samplesFile, "samples", "s", "-",
		"JSON lines file with telemetry samples (- reads stdin)")
	cmd.Flags().StringVar(&vehicle, "vehicle", "replay",
		"vehicle name of the session")
	cmd.Flags().StringVar(&trackID, "track", "",
		"bind the session to this track, skips track detection")
	cmd.Flags().BoolVar(&store, "store", false,
		"store session and laps in the database")
	cmd.Flags().BoolVar(&publish, "publish", false,
		"publish laps and analysis to NATS")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text",
		"output format (text, json)")
	cmd.Flags().BoolVar(&withSamples, "with-samples", false,
		"include the lap samples in json output")
	return cmd
}

//nolint:funlen // by design
func startReplay(ctx context.Context, out io.Writer) error {
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
	util.WaitForRequiredServices(util.RequiredServices{DB: store, Nats: publish})

	var recOpts []service.RecorderOption
	if store {
		pool := util.ConnectDB(sqlLogger)
		defer pool.Close()
		recOpts = append(recOpts, service.WithLapService(service.InitLapService(pool)))
	}
	if publish {
		conn, err := util.ConnectNats()
		if err != nil {
			return err
		}
		defer conn.Close()
		pub, err := natstransport.NewPublisher(ctx, conn)
		if err != nil {
			return err
		}
		recOpts = append(recOpts, service.WithPublisher(pub))
	}

	in := io.Reader(os.Stdin)
	if samplesFile != "-" {
		f, err := os.Open(samplesFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	r := &replayer{
		catalog:  catalog,
		engine:   engine,
		vehicle:  vehicle,
		trackID:  model.TrackID(trackID),
		recorder: service.NewRecorder(recOpts...),
		log:      log.Default().Named("replay"),
	}
	result, err := r.run(ctx, in)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		if !withSamples {
			result = result.WithoutSamples()
		}
		return report.WriteJSON(out, result)
	}
	return report.WriteSession(out, result)
}
