package track

import (
	"cmp"
	"math"
	"slices"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
)

const (
	DefaultMaxDistanceM    = 1000.0
	DefaultDetectRadiusM   = 10000.0
	DefaultAcceptThreshold = 0.8
)

// Detector ranks catalog tracks for a position. It holds no history, every call
// is an independent query.
type Detector struct {
	catalog        *Catalog
	maxDistanceM   float64
	radiusM        float64
	deadReckoningS float64
	log            *log.Logger
}

type DetectorOption func(d *Detector)

// WithMaxDistance sets the distance at which confidence drops to zero.
func WithMaxDistance(m float64) DetectorOption {
	return func(d *Detector) {
		if m > 0 {
			d.maxDistanceM = m
		}
	}
}

// WithDetectRadius sets the distance beyond which tracks are excluded.
func WithDetectRadius(m float64) DetectorOption {
	return func(d *Detector) {
		if m > 0 {
			d.radiusM = m
		}
	}
}

// WithDeadReckoning enables scoring of the position projected horizonMs ahead
// when a sample carries a heading. A value <= 0 disables it.
func WithDeadReckoning(horizonMs int64) DetectorOption {
	return func(d *Detector) {
		d.deadReckoningS = max(0, float64(horizonMs)/1000)
	}
}

func WithDetectorLogger(l *log.Logger) DetectorOption {
	return func(d *Detector) {
		d.log = l
	}
}

func NewDetector(catalog *Catalog, opts ...DetectorOption) *Detector {
	d := &Detector{
		catalog:      catalog,
		maxDistanceM: DefaultMaxDistanceM,
		radiusM:      DefaultDetectRadiusM,
		log:          log.Default().Named("detect"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the candidate tracks for pos sorted by descending confidence,
// ties by ascending distance. accuracyM <= 0 means unknown accuracy.
func (d *Detector) Detect(pos model.GeoPoint, accuracyM float64) []model.Candidate {
	return d.rank(d.distances(pos), accuracyM)
}

// DetectSample is like Detect but takes accuracy and heading from the sample.
func (d *Detector) DetectSample(s *model.TelemetrySample) []model.Candidate {
	dist := d.distances(s.Position)
	if heading, ok := s.HeadingDeg.Get(); ok && d.deadReckoningS > 0 && s.SpeedKmh > 0 {
		projected := geo.Destination(s.Position, heading, s.SpeedKmh/3.6*d.deadReckoningS)
		for id, pd := range d.distances(projected) {
			if cur, found := dist[id]; !found || pd < cur {
				dist[id] = pd
			}
		}
	}
	return d.rank(dist, s.AccuracyM.GetOr(0))
}

// Accept returns the top candidate if its confidence reaches threshold.
func (d *Detector) Accept(cands []model.Candidate, threshold float64) (model.TrackID, error) {
	if len(cands) == 0 || cands[0].Confidence < threshold {
		return "", ErrTrackNotBound
	}
	return cands[0].TrackID, nil
}

func (d *Detector) distances(pos model.GeoPoint) map[model.TrackID]float64 {
	ret := make(map[model.TrackID]float64)
	for _, td := range d.catalog.NearestTracks(pos, d.catalog.Len()) {
		if td.DistanceM > d.radiusM {
			break
		}
		ret[td.TrackID] = td.DistanceM
	}
	return ret
}

func (d *Detector) rank(dist map[model.TrackID]float64, accuracyM float64) []model.Candidate {
	factor := AccuracyFactor(accuracyM)
	ret := make([]model.Candidate, 0, len(dist))
	for id, m := range dist {
		ret = append(ret, model.Candidate{
			TrackID:    id,
			Confidence: math.Max(0, (d.maxDistanceM-m)/d.maxDistanceM) * factor,
			DistanceM:  m,
		})
	}
	slices.SortFunc(ret, func(a, b model.Candidate) int {
		if r := cmp.Compare(b.Confidence, a.Confidence); r != 0 {
			return r
		}
		if r := cmp.Compare(a.DistanceM, b.DistanceM); r != 0 {
			return r
		}
		return cmp.Compare(a.TrackID, b.TrackID)
	})
	if len(ret) > 0 {
		d.log.Debug("candidates",
			log.String("top", string(ret[0].TrackID)),
			log.Float64("confidence", ret[0].Confidence),
			log.Int("count", len(ret)))
	}
	return ret
}

// AccuracyFactor scales confidence by GPS accuracy. Unknown accuracy yields 1.
func AccuracyFactor(accuracyM float64) float64 {
	if !(accuracyM > 0) {
		return 1
	}
	return math.Max(0.1, math.Min(1, 100/accuracyM))
}
