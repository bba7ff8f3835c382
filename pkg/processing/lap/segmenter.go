// Package lap contains the lap segmentation state machine.
package lap

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing/sector"
	"github.com/mpapenbr/trackside/pkg/track"
)

const (
	DefaultLineToleranceM    = 30.0
	DefaultMinLapTimeMs      = int64(15000)
	DefaultMinValidDistanceM = 100.0
	MinValidDistanceFloorM   = 10.0
	MinValidSamples          = 5
	MinValidAvgSpeedKmh      = 5.0
)

// a sample this far behind the line still counts as being on it
const onLineSlackM = 0.01

type State int

const (
	StateIdle State = iota
	StateArmed
	StateInLap
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArmed:
		return "ARMED"
	case StateInLap:
		return "IN_LAP"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StopPolicy decides what happens to an unfinished lap on Stop.
type StopPolicy int

const (
	DiscardPartial StopPolicy = iota
	FlushPartial
)

var (
	ErrNonMonotonicSample = errors.New("non-monotonic sample")
	ErrDegenerateSample   = errors.New("degenerate sample")
)

// SampleError is returned for a skipped sample. The stream stays usable.
type SampleError struct {
	Err         error
	TimestampMs int64
	Reason      string
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample at %d: %v: %s", e.TimestampMs, e.Err, e.Reason)
}

func (e *SampleError) Unwrap() error { return e.Err }

type SectorSplitter interface {
	Split(lap *model.LapRecord, sectors []model.SectorBoundary) []model.SectorResult
}

type LapHandler func(lap *model.LapRecord)

// Progress describes the lap currently being recorded.
type Progress struct {
	State       State
	LapNumber   int
	Samples     int
	DistanceM   float64
	ElapsedMs   int64
	MaxSpeedKmh float64
}

// Segmenter splits a sample stream of a single vehicle into laps.
// It is not safe for concurrent use, samples have to be processed in arrival order.
type Segmenter struct {
	lineToleranceM    float64
	minLapTimeMs      int64
	minValidDistanceM float64
	splitter          SectorSplitter
	handler           LapHandler
	log               *log.Logger

	state     State
	geom      *model.TrackGeometry
	line      track.Line
	frame     geo.Frame
	lapNumber int

	prev           *model.TelemetrySample
	lastCrossingTs int64

	buf       []model.TelemetrySample
	distanceM float64
	maxSpeed  float64
}

type Option func(s *Segmenter)

func WithLineTolerance(m float64) Option {
	return func(s *Segmenter) {
		if m > 0 {
			s.lineToleranceM = m
		}
	}
}

func WithMinLapTime(ms int64) Option {
	return func(s *Segmenter) {
		if ms >= 0 {
			s.minLapTimeMs = ms
		}
	}
}

// WithMinValidDistance sets the minimum distance for a valid lap.
// Values below MinValidDistanceFloorM are raised to that floor.
func WithMinValidDistance(m float64) Option {
	return func(s *Segmenter) {
		s.minValidDistanceM = math.Max(MinValidDistanceFloorM, m)
	}
}

func WithSplitter(sp SectorSplitter) Option {
	return func(s *Segmenter) {
		s.splitter = sp
	}
}

// WithLapHandler registers a callback which is called for every emitted lap.
func WithLapHandler(h LapHandler) Option {
	return func(s *Segmenter) {
		s.handler = h
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Segmenter) {
		s.log = l
	}
}

func NewSegmenter(opts ...Option) *Segmenter {
	s := &Segmenter{
		lineToleranceM:    DefaultLineToleranceM,
		minLapTimeMs:      DefaultMinLapTimeMs,
		minValidDistanceM: DefaultMinValidDistanceM,
		state:             StateIdle,
		log:               log.Default().Named("lap"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.splitter == nil {
		s.splitter = sector.NewSplitter(sector.WithLogger(s.log.Named("sector")))
	}
	return s
}

func (s *Segmenter) State() State { return s.state }

// Bind assigns the track and arms the segmenter. Any lap in progress is discarded.
func (s *Segmenter) Bind(geom *model.TrackGeometry) {
	if geom == nil {
		return
	}
	s.geom = geom
	s.line = track.ResolveLine(geom.StartFinish)
	s.frame = geo.NewFrame(s.line.Center)
	s.state = StateArmed
	s.lapNumber = 0
	s.prev = nil
	s.resetBuffer()
	s.log.Debug("track bound", log.String("track", string(geom.ID)))
}

// Process consumes the next sample. It returns the lap closed by this sample, if any.
// Rejected samples are reported with a *SampleError and leave the state untouched.
func (s *Segmenter) Process(sample *model.TelemetrySample) (*model.LapRecord, error) {
	if s.state == StateIdle {
		return nil, track.ErrTrackNotBound
	}
	if err := s.check(sample); err != nil {
		s.log.Debug("sample rejected", log.ErrorField(err))
		return nil, err
	}
	crossing := s.isCrossing(sample)
	cur := *sample
	s.prev = &cur

	switch s.state {
	case StateArmed:
		s.handleArmed(&cur, crossing)
		return nil, nil
	case StateInLap:
		return s.handleInLap(&cur, crossing), nil
	default:
		return nil, nil
	}
}

// Stop ends the stream. With FlushPartial the unfinished lap is emitted as an
// invalid partial lap. The segmenter returns to Idle.
func (s *Segmenter) Stop(policy StopPolicy) *model.LapRecord {
	var ret *model.LapRecord
	if s.state == StateInLap && policy == FlushPartial && len(s.buf) > 0 {
		s.lapNumber++
		ret = s.buildLap(s.buf)
		ret.Partial = true
		ret.IsValid = false
		ret.Invalidity = model.InvalidPartial
		s.emit(ret)
	}
	s.state = StateIdle
	s.geom = nil
	s.prev = nil
	s.resetBuffer()
	return ret
}

func (s *Segmenter) Progress() Progress {
	p := Progress{
		State:       s.state,
		LapNumber:   s.lapNumber + 1,
		Samples:     len(s.buf),
		DistanceM:   s.distanceM,
		MaxSpeedKmh: s.maxSpeed,
	}
	if len(s.buf) > 0 {
		p.ElapsedMs = s.buf[len(s.buf)-1].TimestampMs - s.buf[0].TimestampMs
	}
	return p
}

//nolint:whitespace // can't make the linters happy
func (s *Segmenter) handleArmed(
	sample *model.TelemetrySample,
	crossing bool,
) {

	if !crossing {
		return
	}
	s.lastCrossingTs = sample.TimestampMs
	s.startBuffer(sample)
	s.state = StateInLap
	s.log.Debug("first crossing", log.Int64("ts", sample.TimestampMs))
}

func (s *Segmenter) handleInLap(sample *model.TelemetrySample, crossing bool) *model.LapRecord {
	s.append(sample)
	if !crossing {
		return nil
	}
	if sample.TimestampMs-s.lastCrossingTs < s.minLapTimeMs {
		s.log.Debug("crossing debounced",
			log.Int64("ts", sample.TimestampMs),
			log.Int64("sinceLast", sample.TimestampMs-s.lastCrossingTs))
		return nil
	}
	s.lastCrossingTs = sample.TimestampMs
	s.lapNumber++
	lap := s.buildLap(s.buf)
	if len(s.geom.Sectors) > 0 {
		lap.Sectors = s.splitter.Split(lap, s.geom.Sectors)
	}
	s.emit(lap)
	s.startBuffer(sample)
	return lap
}

func (s *Segmenter) emit(lap *model.LapRecord) {
	s.log.Info("lap completed",
		log.String("track", string(lap.TrackID)),
		log.Int("lap", lap.LapNumber),
		log.Int64("lapTime", lap.LapTimeMs),
		log.Float64("distance", lap.DistanceM),
		log.Bool("valid", lap.IsValid),
		log.String("invalidity", lap.Invalidity))
	if s.handler != nil {
		s.handler(lap)
	}
}

func (s *Segmenter) check(sample *model.TelemetrySample) error {
	if !sample.Position.IsValid() {
		return &SampleError{
			Err:         ErrDegenerateSample,
			TimestampMs: sample.TimestampMs,
			Reason:      "invalid position",
		}
	}
	if math.IsNaN(sample.SpeedKmh) || math.IsInf(sample.SpeedKmh, 0) || sample.SpeedKmh < 0 {
		return &SampleError{
			Err:         ErrDegenerateSample,
			TimestampMs: sample.TimestampMs,
			Reason:      "invalid speed",
		}
	}
	if s.prev != nil && sample.TimestampMs <= s.prev.TimestampMs {
		return &SampleError{
			Err:         ErrNonMonotonicSample,
			TimestampMs: sample.TimestampMs,
			Reason:      fmt.Sprintf("previous timestamp %d", s.prev.TimestampMs),
		}
	}
	return nil
}

// isCrossing checks whether the move from the previous sample to sample passes
// the start/finish line in racing direction.
func (s *Segmenter) isCrossing(sample *model.TelemetrySample) bool {
	if s.prev == nil {
		if s.line.DistanceM(sample.Position) > s.lineToleranceM {
			return false
		}
		// a stream opening just before the line crosses it with one of the next samples
		if s.frame.AlongBearing(sample.Position, s.line.BearingDeg) < -onLineSlackM {
			return false
		}
		if h, ok := sample.HeadingDeg.Get(); ok {
			return geo.AngleDiff(h, s.line.BearingDeg) <= 90
		}
		return true
	}
	if s.prev.Position.SameLocation(sample.Position) {
		return false
	}
	before := s.frame.AlongBearing(s.prev.Position, s.line.BearingDeg)
	after := s.frame.AlongBearing(sample.Position, s.line.BearingDeg)
	if !(before < 0 && after >= 0) {
		return false
	}
	at := geo.Interpolate(s.prev.Position, sample.Position, -before/(after-before))
	if s.line.DistanceM(at) > s.lineToleranceM {
		return false
	}
	move := geo.BearingDeg(s.prev.Position, sample.Position)
	return geo.AngleDiff(move, s.line.BearingDeg) <= 90
}

func (s *Segmenter) resetBuffer() {
	s.buf = nil
	s.distanceM = 0
	s.maxSpeed = 0
}

func (s *Segmenter) startBuffer(sample *model.TelemetrySample) {
	s.buf = []model.TelemetrySample{*sample}
	s.distanceM = 0
	s.maxSpeed = sample.SpeedKmh
}

func (s *Segmenter) append(sample *model.TelemetrySample) {
	if n := len(s.buf); n > 0 {
		s.distanceM += geo.HaversineDistanceM(s.buf[n-1].Position, sample.Position)
	}
	s.buf = append(s.buf, *sample)
	s.maxSpeed = math.Max(s.maxSpeed, sample.SpeedKmh)
}

func (s *Segmenter) buildLap(samples []model.TelemetrySample) *model.LapRecord {
	speeds := make([]float64, len(samples))
	for i := range samples {
		speeds[i] = samples[i].SpeedKmh
	}
	lap := &model.LapRecord{
		LapNumber:   s.lapNumber,
		TrackID:     s.geom.ID,
		StartTs:     samples[0].TimestampMs,
		EndTs:       samples[len(samples)-1].TimestampMs,
		Samples:     samples,
		DistanceM:   s.distanceM,
		MaxSpeedKmh: s.maxSpeed,
		AvgSpeedKmh: stat.Mean(speeds, nil),
	}
	lap.LapTimeMs = lap.EndTs - lap.StartTs
	lap.IsValid, lap.Invalidity = Classify(lap, s.minValidDistanceM)
	return lap
}

// Classify applies the validity rule. All thresholds are inclusive.
func Classify(lap *model.LapRecord, minValidDistanceM float64) (valid bool, reason string) {
	switch {
	case len(lap.Samples) < MinValidSamples:
		return false, model.InvalidTooFewSamples
	case lap.DistanceM < minValidDistanceM:
		return false, model.InvalidTooShort
	case lap.AvgSpeedKmh < MinValidAvgSpeedKmh:
		return false, model.InvalidTooSlow
	default:
		return true, ""
	}
}
