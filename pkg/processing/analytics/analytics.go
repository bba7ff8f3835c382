// Package analytics computes aggregates over closed laps and raw sample streams.
// All functions are deterministic for a given input.
package analytics

import (
	"cmp"
	"errors"
	"math"
	"slices"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
)

var ErrNoLaps = errors.New("no laps")

const (
	throttleThresholdPct = 10.0
	brakeThresholdPct    = 10.0
	corneringThresholdG  = 0.5
)

type Analyzer struct {
	log *log.Logger
}

type Option func(a *Analyzer)

func WithLogger(l *log.Logger) Option {
	return func(a *Analyzer) {
		a.log = l
	}
}

func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{log: log.Default().Named("analytics")}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TrackAnalysis aggregates the valid laps. If no lap is valid all laps are used
// and the result is marked as Degraded.
func (a *Analyzer) TrackAnalysis(laps []*model.LapRecord) (model.TrackAnalysis, error) {
	if len(laps) == 0 {
		return model.TrackAnalysis{}, ErrNoLaps
	}
	sorted := sortLaps(laps)
	used := lo.Filter(sorted, func(l *model.LapRecord, _ int) bool { return l.IsValid })
	ret := model.TrackAnalysis{
		TrackID:   sorted[0].TrackID,
		TotalLaps: len(sorted),
		ValidLaps: len(used),
	}
	if len(used) == 0 {
		a.log.Warn("no valid laps, using all laps",
			log.String("track", string(ret.TrackID)),
			log.Int("laps", len(sorted)))
		used = sorted
		ret.Degraded = true
	}

	times := lo.Map(used, func(l *model.LapRecord, _ int) float64 { return float64(l.LapTimeMs) })
	mean, std := stat.PopMeanStdDev(times, nil)
	best := lo.MinBy(used, func(x, y *model.LapRecord) bool { return x.LapTimeMs < y.LapTimeMs })

	ret.BestLapTimeMs = best.LapTimeMs
	ret.BestLapNumber = best.LapNumber
	ret.AvgLapTimeMs = int64(math.Round(mean))
	ret.StdDevMs = std
	ret.ConsistencyRating = consistency(mean, std)
	if sectors := a.SectorAnalysis(used); len(sectors) > 0 {
		ret.TheoreticalBestMs = lo.SumBy(sectors, func(s model.SectorStats) int64 { return s.BestMs })
	}
	return ret, nil
}

// SectorAnalysis returns best and average times per sector ordinal.
func (a *Analyzer) SectorAnalysis(laps []*model.LapRecord) []model.SectorStats {
	type acc struct {
		stats model.SectorStats
		times []float64
	}
	byOrdinal := map[int]*acc{}
	for _, l := range sortLaps(laps) {
		for _, s := range l.Sectors {
			e, ok := byOrdinal[s.Ordinal]
			if !ok {
				e = &acc{stats: model.SectorStats{
					Ordinal: s.Ordinal,
					BestMs:  s.TimeMs,
					BestLap: l.LapNumber,
				}}
				byOrdinal[s.Ordinal] = e
			}
			if s.TimeMs < e.stats.BestMs {
				e.stats.BestMs = s.TimeMs
				e.stats.BestLap = l.LapNumber
			}
			if s.Estimated {
				e.stats.Estimated++
			}
			e.times = append(e.times, float64(s.TimeMs))
		}
	}
	ret := make([]model.SectorStats, 0, len(byOrdinal))
	for _, e := range byOrdinal {
		e.stats.AvgMs = int64(math.Round(stat.Mean(e.times, nil)))
		ret = append(ret, e.stats)
	}
	slices.SortFunc(ret, func(x, y model.SectorStats) int { return cmp.Compare(x.Ordinal, y.Ordinal) })
	return ret
}

// SessionMetrics aggregates a raw sample stream. Mode counters count sample
// intervals, classified by the values at the start of each interval.
// If durationS is not positive it is derived from the timestamps.
func (a *Analyzer) SessionMetrics(samples []model.TelemetrySample, durationS float64) model.SessionMetrics {
	ret := model.SessionMetrics{Samples: len(samples), DurationS: durationS}
	if len(samples) == 0 {
		return ret
	}
	if !(durationS > 0) {
		ret.DurationS = float64(samples[len(samples)-1].TimestampMs-samples[0].TimestampMs) / 1000
	}
	speeds := make([]float64, len(samples))
	for i := range samples {
		speeds[i] = samples[i].SpeedKmh
		ret.MaxSpeedKmh = math.Max(ret.MaxSpeedKmh, samples[i].SpeedKmh)
		if i == 0 {
			continue
		}
		prev := &samples[i-1]
		if prev.Position.IsValid() && samples[i].Position.IsValid() {
			ret.DistanceM += geo.HaversineDistanceM(prev.Position, samples[i].Position)
		}
		ret.Intervals++
		if prev.ThrottlePct.GetOr(0) > throttleThresholdPct {
			ret.ThrottleIntervals++
		}
		if prev.BrakePct.GetOr(0) > brakeThresholdPct {
			ret.BrakeIntervals++
		}
		if math.Abs(prev.LateralG.GetOr(0)) > corneringThresholdG {
			ret.CorneringIntervals++
		}
	}
	if ret.DurationS > 0 {
		ret.AvgSpeedKmh = ret.DistanceM / ret.DurationS * 3.6
	} else {
		ret.AvgSpeedKmh = stat.Mean(speeds, nil)
	}
	return ret
}

// ConsistencyRating maps the coefficient of variation of the lap times to [0,100].
func ConsistencyRating(lapTimesMs []int64) float64 {
	if len(lapTimesMs) == 0 {
		return 0
	}
	times := lo.Map(lapTimesMs, func(t int64, _ int) float64 { return float64(t) })
	return consistency(stat.PopMeanStdDev(times, nil))
}

func consistency(mean, std float64) float64 {
	// identical lap times, zero included
	if std == 0 {
		return 100
	}
	if !(mean > 0) {
		return 0
	}
	return math.Max(0, math.Min(100, 100-1000*(std/mean)))
}

func sortLaps(laps []*model.LapRecord) []*model.LapRecord {
	ret := slices.Clone(laps)
	slices.SortStableFunc(ret, func(a, b *model.LapRecord) int {
		if r := cmp.Compare(a.LapNumber, b.LapNumber); r != 0 {
			return r
		}
		return cmp.Compare(a.StartTs, b.StartTs)
	})
	return ret
}
