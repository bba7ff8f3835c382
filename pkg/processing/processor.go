package processing

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/config"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing/analytics"
	"github.com/mpapenbr/trackside/pkg/processing/compare"
	"github.com/mpapenbr/trackside/pkg/processing/lap"
	"github.com/mpapenbr/trackside/pkg/processing/sector"
	"github.com/mpapenbr/trackside/pkg/track"
)

var (
	ErrUnknownTrack = errors.New("unknown track")
	ErrLapNotFound  = errors.New("lap not found")
)

// Session processes the sample stream of a single vehicle.
// Until a track is bound every sample is used for track detection. Once the
// detector accepts a candidate the samples are passed to the lap segmenter.
// A Session is not safe for concurrent use.
type Session struct {
	id        uuid.UUID
	vehicle   string
	catalog   *track.Catalog
	engine    config.Engine
	detector  *track.Detector
	segmenter *lap.Segmenter
	analyzer  *analytics.Analyzer
	handler   lap.LapHandler
	onBind    BindHandler
	log       *log.Logger

	trackID model.TrackID
	laps    []*model.LapRecord
	samples []model.TelemetrySample
	metrics sessionMetrics
	// timestamp of the last accepted sample, detection phase included
	lastTs  int64
	hasLast bool
}

type (
	SessionOption func(s *Session)
	// BindHandler is called once the session is bound to a track.
	BindHandler func(geom *model.TrackGeometry)
)

func WithEngine(e config.Engine) SessionOption {
	return func(s *Session) {
		s.engine = e
	}
}

// WithVehicle sets the vehicle name used in logs and metrics.
func WithVehicle(name string) SessionOption {
	return func(s *Session) {
		s.vehicle = name
	}
}

// WithLapHandler registers a callback for every lap emitted by the session,
// including a flushed partial lap on Stop.
func WithLapHandler(h lap.LapHandler) SessionOption {
	return func(s *Session) {
		s.handler = h
	}
}

func WithBindHandler(h BindHandler) SessionOption {
	return func(s *Session) {
		s.onBind = h
	}
}

func WithLogger(l *log.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

func NewSession(catalog *track.Catalog, opts ...SessionOption) *Session {
	s := &Session{
		id:      uuid.Must(uuid.NewV4()),
		catalog: catalog,
		engine:  config.DefaultEngine(),
		log:     log.Default().Named("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.vehicle != "" {
		s.log = s.log.With(log.String("vehicle", s.vehicle))
	}
	s.detector = track.NewDetector(catalog,
		track.WithMaxDistance(s.engine.DetectMaxDistanceM),
		track.WithDetectRadius(s.engine.DetectRadiusM),
		track.WithDeadReckoning(s.engine.DeadReckoningMs),
		track.WithDetectorLogger(s.log.Named("detect")))
	s.segmenter = lap.NewSegmenter(
		lap.WithLineTolerance(s.engine.LineToleranceM),
		lap.WithMinLapTime(s.engine.MinLapTimeMs),
		lap.WithMinValidDistance(s.engine.MinValidDistanceM),
		lap.WithSplitter(sector.NewSplitter(
			sector.WithBoundaryTolerance(s.engine.BoundaryToleranceM),
			sector.WithLogger(s.log.Named("sector")))),
		lap.WithLapHandler(s.onLap),
		lap.WithLogger(s.log.Named("lap")))
	s.analyzer = analytics.NewAnalyzer(analytics.WithLogger(s.log.Named("analytics")))
	s.metrics = newSessionMetrics(s.vehicle)
	return s
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Vehicle() string {
	return s.vehicle
}

// Track returns the bound track.
func (s *Session) Track() (model.TrackID, bool) {
	return s.trackID, s.trackID != ""
}

// BindTrack skips detection and binds the session to a known track.
func (s *Session) BindTrack(id model.TrackID) error {
	geom, ok := s.catalog.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrack, id)
	}
	s.trackID = id
	s.segmenter.Bind(geom)
	s.log.Info("track bound", log.String("track", string(id)))
	if s.onBind != nil {
		s.onBind(geom)
	}
	return nil
}

// Ingest consumes the next sample. It returns the lap closed by this sample.
// While the track is still being detected (nil, nil) is returned.
// Rejected samples are reported as *lap.SampleError, the session stays usable.
func (s *Session) Ingest(sample *model.TelemetrySample) (*model.LapRecord, error) {
	s.metrics.samples.Add(context.Background(), 1, s.metrics.attrs)
	if s.hasLast && sample.TimestampMs <= s.lastTs {
		s.metrics.rejected.Add(context.Background(), 1, s.metrics.attrs)
		return nil, &lap.SampleError{
			Err:         lap.ErrNonMonotonicSample,
			TimestampMs: sample.TimestampMs,
			Reason:      fmt.Sprintf("previous timestamp %d", s.lastTs),
		}
	}
	if s.trackID == "" {
		if !sample.Position.IsValid() {
			s.metrics.rejected.Add(context.Background(), 1, s.metrics.attrs)
			return nil, &lap.SampleError{
				Err:         lap.ErrDegenerateSample,
				TimestampMs: sample.TimestampMs,
				Reason:      "invalid position",
			}
		}
		s.lastTs, s.hasLast = sample.TimestampMs, true
		cands := s.detector.DetectSample(sample)
		id, err := s.detector.Accept(cands, s.engine.AcceptanceThreshold)
		if err != nil {
			if len(cands) > 0 {
				s.log.Debug("detecting track",
					log.String("candidate", string(cands[0].TrackID)),
					log.Float64("confidence", cands[0].Confidence))
			}
			return nil, nil
		}
		if err := s.BindTrack(id); err != nil {
			return nil, err
		}
	}
	ret, err := s.segmenter.Process(sample)
	if err != nil {
		s.metrics.rejected.Add(context.Background(), 1, s.metrics.attrs)
		return nil, err
	}
	s.lastTs, s.hasLast = sample.TimestampMs, true
	s.samples = append(s.samples, *sample)
	return ret, nil
}

// Stop ends the session. Depending on the engine config an unfinished lap is
// flushed as partial lap and returned.
func (s *Session) Stop() *model.LapRecord {
	policy := lap.DiscardPartial
	if s.engine.FlushPartial {
		policy = lap.FlushPartial
	}
	ret := s.segmenter.Stop(policy)
	s.log.Info("session stopped",
		log.String("track", string(s.trackID)),
		log.Int("laps", len(s.laps)),
		log.Int("samples", len(s.samples)))
	return ret
}

// Laps returns the laps emitted so far in emission order.
func (s *Session) Laps() []*model.LapRecord {
	return slices.Clone(s.laps)
}

func (s *Session) Progress() lap.Progress {
	return s.segmenter.Progress()
}

// Analysis aggregates the laps of the session.
func (s *Session) Analysis() (model.TrackAnalysis, error) {
	if s.trackID == "" {
		return model.TrackAnalysis{}, track.ErrTrackNotBound
	}
	return s.analyzer.TrackAnalysis(s.laps)
}

func (s *Session) SectorAnalysis() []model.SectorStats {
	return s.analyzer.SectorAnalysis(s.laps)
}

// Metrics aggregates all accepted samples of the session.
func (s *Session) Metrics() model.SessionMetrics {
	return s.analyzer.SessionMetrics(s.samples, 0)
}

// Compare compares two laps of this session by lap number.
func (s *Session) Compare(lapA, lapB int) (model.LapComparison, error) {
	a, err := s.lap(lapA)
	if err != nil {
		return model.LapComparison{}, err
	}
	b, err := s.lap(lapB)
	if err != nil {
		return model.LapComparison{}, err
	}
	return compare.NewComparator(compare.WithBucketSize(s.engine.BucketSizeM)).Compare(a, b)
}

func (s *Session) lap(num int) (*model.LapRecord, error) {
	idx := slices.IndexFunc(s.laps, func(l *model.LapRecord) bool { return l.LapNumber == num })
	if idx < 0 {
		return nil, fmt.Errorf("%w: %d", ErrLapNotFound, num)
	}
	return s.laps[idx], nil
}

func (s *Session) onLap(l *model.LapRecord) {
	s.laps = append(s.laps, l)
	valid := attribute.Bool("valid", l.IsValid)
	s.metrics.laps.Add(context.Background(), 1,
		metric.WithAttributes(s.metrics.vehicle, valid))
	if s.handler != nil {
		s.handler(l)
	}
}

type sessionMetrics struct {
	vehicle  attribute.KeyValue
	attrs    metric.AddOption
	samples  metric.Int64Counter
	rejected metric.Int64Counter
	laps     metric.Int64Counter
}

func newSessionMetrics(vehicle string) sessionMetrics {
	meter := otel.GetMeterProvider().Meter("trackside.session")
	ret := sessionMetrics{vehicle: attribute.String("vehicle", vehicle)}
	ret.attrs = metric.WithAttributes(ret.vehicle)
	var err error
	if ret.samples, err = meter.Int64Counter("trackside.session.samples",
		metric.WithDescription("Number of ingested samples"),
		metric.WithUnit("{count}")); err != nil {
		log.Error("failed to register metric", log.ErrorField(err))
	}
	if ret.rejected, err = meter.Int64Counter("trackside.session.rejected",
		metric.WithDescription("Number of rejected samples"),
		metric.WithUnit("{count}")); err != nil {
		log.Error("failed to register metric", log.ErrorField(err))
	}
	if ret.laps, err = meter.Int64Counter("trackside.session.laps",
		metric.WithDescription("Number of emitted laps"),
		metric.WithUnit("{count}")); err != nil {
		log.Error("failed to register metric", log.ErrorField(err))
	}
	return ret
}
