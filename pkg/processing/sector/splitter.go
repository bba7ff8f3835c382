// Package sector partitions a closed lap into per sector slices.
package sector

import (
	"math"

	"github.com/samber/lo"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
)

const DefaultBoundaryToleranceM = 50.0

type Splitter struct {
	toleranceM float64
	log        *log.Logger
}

type SplitterOption func(s *Splitter)

func WithBoundaryTolerance(m float64) SplitterOption {
	return func(s *Splitter) {
		if m > 0 {
			s.toleranceM = m
		}
	}
}

func WithLogger(l *log.Logger) SplitterOption {
	return func(s *Splitter) {
		s.log = l
	}
}

func NewSplitter(opts ...SplitterOption) *Splitter {
	s := &Splitter{
		toleranceM: DefaultBoundaryToleranceM,
		log:        log.Default().Named("sector"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split computes one SectorResult per boundary. Boundaries are searched in racing
// order: a sector starts at or after the end of its predecessor. Sectors whose
// boundaries are not within the tolerance get a time proportional to their
// nominal length and are marked Estimated.
func (s *Splitter) Split(lap *model.LapRecord, sectors []model.SectorBoundary) []model.SectorResult {
	ret := make([]model.SectorResult, 0, len(sectors))
	if len(sectors) == 0 {
		return ret
	}
	samples := lap.Samples
	cum := cumulativeDistance(samples)
	totalNominal := lo.SumBy(sectors, func(b model.SectorBoundary) float64 {
		return b.NominalLengthM
	})

	searchFrom := 0
	nominalBefore := 0.0
	for i := range sectors {
		b := &sectors[i]
		var res model.SectorResult
		startIdx, startD := earliestIndex(samples, b.Start, searchFrom, s.toleranceM)
		endIdx, endD := nearestIndex(samples, b.End, startIdx)
		if startD <= s.toleranceM && endD <= s.toleranceM && endIdx >= startIdx {
			res = measure(samples[startIdx:endIdx+1], cum[startIdx:endIdx+1])
			searchFrom = endIdx
		} else {
			s.log.Debug("sector boundary not matched",
				log.Int("lap", lap.LapNumber),
				log.Int("sector", b.Ordinal),
				log.Float64("startDist", startD),
				log.Float64("endDist", endD))
			fromFrac := float64(i) / float64(len(sectors))
			share := 1 / float64(len(sectors))
			if totalNominal > 0 {
				fromFrac = nominalBefore / totalNominal
				share = b.NominalLengthM / totalNominal
			}
			var last int
			res, last = estimate(lap, cum, fromFrac, share)
			searchFrom = max(searchFrom, last)
		}
		res.Ordinal = b.Ordinal
		nominalBefore += b.NominalLengthM
		ret = append(ret, res)
	}
	return ret
}

func cumulativeDistance(samples []model.TelemetrySample) []float64 {
	cum := make([]float64, len(samples))
	for i := 1; i < len(samples); i++ {
		cum[i] = cum[i-1] + geo.HaversineDistanceM(samples[i-1].Position, samples[i].Position)
	}
	return cum
}

// nearestIndex finds the path segment nearest to p starting at index from and
// returns the closer endpoint of that segment together with the distance.
func nearestIndex(samples []model.TelemetrySample, p model.GeoPoint, from int) (int, float64) {
	n := len(samples)
	if n == 0 || from >= n {
		return -1, math.Inf(1)
	}
	if from == n-1 {
		return from, geo.HaversineDistanceM(p, samples[from].Position)
	}
	idx, best := -1, math.Inf(1)
	for i := from; i < n-1; i++ {
		d := geo.DistanceToSegmentM(p, samples[i].Position, samples[i+1].Position)
		if d < best {
			best = d
			if geo.HaversineDistanceM(p, samples[i].Position) <=
				geo.HaversineDistanceM(p, samples[i+1].Position) {
				idx = i
			} else {
				idx = i + 1
			}
		}
	}
	return idx, best
}

// earliestIndex returns the first local minimum of the path distance to p that
// lies within tol, starting at index from. A lap that closes near its own start
// passes a start boundary twice; the earlier pass is the one that opens the sector.
// Falls back to nearestIndex when no segment is within tol.
func earliestIndex(
	samples []model.TelemetrySample,
	p model.GeoPoint,
	from int,
	tol float64,
) (int, float64) {
	n := len(samples)
	if n < 2 || from >= n-1 {
		return nearestIndex(samples, p, from)
	}
	segDist := func(i int) float64 {
		return geo.DistanceToSegmentM(p, samples[i].Position, samples[i+1].Position)
	}
	for i := from; i < n-1; i++ {
		d := segDist(i)
		if d > tol {
			continue
		}
		for i+1 < n-1 {
			next := segDist(i + 1)
			if next >= d {
				break
			}
			i, d = i+1, next
		}
		if geo.HaversineDistanceM(p, samples[i].Position) <=
			geo.HaversineDistanceM(p, samples[i+1].Position) {
			return i, d
		}
		return i + 1, d
	}
	return nearestIndex(samples, p, from)
}

func measure(slice []model.TelemetrySample, cum []float64) model.SectorResult {
	return model.SectorResult{
		TimeMs:      slice[len(slice)-1].TimestampMs - slice[0].TimestampMs,
		MaxSpeedKmh: maxSpeed(slice),
		DistanceM:   cum[len(cum)-1] - cum[0],
	}
}

// estimate spreads the lap time proportional to the nominal sector length.
// The slice for speed and distance is taken from the same fraction of the
// measured lap distance. It also returns the last index of that slice.
func estimate(
	lap *model.LapRecord,
	cum []float64,
	fromFrac, share float64,
) (model.SectorResult, int) {
	res := model.SectorResult{
		TimeMs:    int64(math.Round(float64(lap.LapTimeMs) * share)),
		Estimated: true,
	}
	if len(cum) == 0 {
		return res, 0
	}
	total := cum[len(cum)-1]
	from := fromFrac * total
	to := (fromFrac + share) * total
	res.DistanceM = to - from
	last := 0
	for i := range cum {
		if cum[i] >= from && cum[i] <= to {
			res.MaxSpeedKmh = math.Max(res.MaxSpeedKmh, lap.Samples[i].SpeedKmh)
			last = i
		}
	}
	return res, last
}

func maxSpeed(samples []model.TelemetrySample) float64 {
	return lo.MaxBy(samples, func(a, b model.TelemetrySample) bool {
		return a.SpeedKmh > b.SpeedKmh
	}).SpeedKmh
}
