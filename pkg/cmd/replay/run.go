package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/cmd/report"
	"github.com/mpapenbr/trackside/pkg/config"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing"
	"github.com/mpapenbr/trackside/pkg/processing/lap"
	"github.com/mpapenbr/trackside/pkg/service"
	"github.com/mpapenbr/trackside/pkg/track"
	natstransport "github.com/mpapenbr/trackside/pkg/transport/nats"
)

const maxLineSize = 1 << 20

type replayer struct {
	catalog  *track.Catalog
	engine   config.Engine
	vehicle  string
	trackID  model.TrackID
	recorder *service.Recorder
	log      *log.Logger
}

// readSamples calls fn for every sample of a JSON lines stream.
// Empty lines are skipped.
func readSamples(r io.Reader, fn func(s *model.TelemetrySample) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		s, err := natstransport.DecodeSample([]byte(text))
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (r *replayer) run(ctx context.Context, in io.Reader) (*report.Session, error) {
	// an interrupted replay still ends its stored session
	sinkCtx := context.WithoutCancel(ctx)
	var s *processing.Session
	s = processing.NewSession(r.catalog,
		processing.WithEngine(r.engine),
		processing.WithVehicle(r.vehicle),
		processing.WithLogger(r.log.Named("session")),
		processing.WithBindHandler(func(geom *model.TrackGeometry) {
			r.recorder.SessionBound(sinkCtx, s, geom)
		}),
		processing.WithLapHandler(func(l *model.LapRecord) {
			r.recorder.LapCompleted(sinkCtx, s, l)
		}))
	if r.trackID != "" {
		if err := s.BindTrack(r.trackID); err != nil {
			return nil, err
		}
	}

	rejected := 0
	err := readSamples(in, func(sample *model.TelemetrySample) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := s.Ingest(sample)
		var sampleErr *lap.SampleError
		switch {
		case err == nil:
		case errors.As(err, &sampleErr):
			rejected++
			r.log.Debug("sample rejected",
				log.Int64("ts", sampleErr.TimestampMs),
				log.String("reason", sampleErr.Reason))
		default:
			return err
		}
		return nil
	})
	s.Stop()
	r.recorder.SessionStopped(sinkCtx, s)
	if err != nil {
		return nil, err
	}
	return report.FromSession(s, rejected), nil
}
