package live

import (
	"context"
	"errors"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/cmd/util"
	"github.com/mpapenbr/trackside/pkg/config"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing"
	"github.com/mpapenbr/trackside/pkg/processing/lap"
	"github.com/mpapenbr/trackside/pkg/service"
	"github.com/mpapenbr/trackside/pkg/track"
)

type processor struct {
	manager *processing.Manager
	log     *log.Logger
}

//nolint:whitespace // can't make the linters happy
func newProcessor(
	ctx context.Context,
	catalog *track.Catalog,
	engine config.Engine,
	recorder *service.Recorder,
) *processor {
	p := &processor{log: log.Default().Named("live")}
	opts := append(recorder.ManagerOptions(ctx),
		processing.WithSessionOptions(processing.WithEngine(engine)),
		processing.WithQueueSize(queueSize),
		processing.WithErrorCallback(p.sampleRejected))
	p.manager = processing.NewManager(catalog, opts...)
	return p
}

func (p *processor) handleSample(ctx context.Context, vehicle string, s *model.TelemetrySample) {
	if err := p.manager.Dispatch(ctx, vehicle, s); err != nil &&
		!errors.Is(err, context.Canceled) {
		p.log.Warn("could not dispatch sample",
			log.String("vehicle", vehicle), log.ErrorField(err))
	}
}

func (p *processor) sampleRejected(vehicle string, err error) {
	var se *lap.SampleError
	if errors.As(err, &se) {
		p.log.Debug("sample rejected",
			log.String("vehicle", vehicle),
			log.Int64("ts", se.TimestampMs),
			log.String("reason", se.Reason))
		return
	}
	p.log.Warn("sample failed", log.String("vehicle", vehicle), log.ErrorField(err))
}

// reloadCatalog keeps the current catalog if tracks are invalid.
func (p *processor) reloadCatalog(tracks []model.TrackGeometry) {
	c, err := util.BuildCatalog(tracks)
	if err != nil {
		p.log.Error("catalog rejected", log.ErrorField(err))
		return
	}
	p.manager.SetCatalog(c)
}

// forwardEvents drops events while ch is full so slow stream clients never
// block a session.
func forwardEvents(ch chan<- *model.LapEvent) func(ev *model.LapEvent) {
	return func(ev *model.LapEvent) {
		select {
		case ch <- ev:
		default:
			log.Warn("lap event dropped", log.String("vehicle", ev.Vehicle))
		}
	}
}
