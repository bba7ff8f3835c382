package basedata

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/aarondl/opt/omitnull"

	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
)

// Circuit is a circular test track which touches the start/finish line at Anchor.
// Cars run clockwise, crossing the line in direction BearingDeg.
type Circuit struct {
	Anchor     model.GeoPoint
	BearingDeg float64
	RadiusM    float64
}

func (c Circuit) Center() model.GeoPoint {
	return geo.Destination(c.Anchor, c.BearingDeg+90, c.RadiusM)
}

func (c Circuit) LengthM() float64 {
	return 2 * math.Pi * c.RadiusM
}

// PositionAt returns the position after fraction (0..1) of a lap.
// Fraction 0 returns the anchor itself.
func (c Circuit) PositionAt(fraction float64) model.GeoPoint {
	if fraction == 0 {
		return model.GeoPoint{Lat: c.Anchor.Lat, Lng: c.Anchor.Lng}
	}
	return geo.Destination(c.Center(), c.BearingDeg-90+360*fraction, c.RadiusM)
}

// HeadingAt is the driving direction after fraction of a lap.
func (c Circuit) HeadingAt(fraction float64) float64 {
	return geo.NormalizeBearing(c.BearingDeg + 360*fraction)
}

// Geometry builds a track with the given number of equally sized sectors.
func (c Circuit) Geometry(id model.TrackID, name string, numSectors int) model.TrackGeometry {
	sectors := make([]model.SectorBoundary, numSectors)
	for i := range sectors {
		sectors[i] = model.SectorBoundary{
			Ordinal:        i + 1,
			Start:          c.PositionAt(float64(i) / float64(numSectors)),
			End:            c.PositionAt(float64(i+1) / float64(numSectors)),
			NominalLengthM: c.LengthM() / float64(numSectors),
		}
	}
	// the end of the last sector is the line itself
	sectors[numSectors-1].End = c.PositionAt(0)

	outline := make([]model.GeoPoint, 12)
	for i := range outline {
		outline[i] = c.PositionAt(float64(i) / 12)
	}
	return model.TrackGeometry{
		ID:   id,
		Name: name,
		StartFinish: model.StartFinishLine{
			A:          c.Anchor,
			BearingDeg: c.BearingDeg,
			WidthM:     15,
		},
		Sectors: sectors,
		Outline: outline,
	}
}

// Generator produces samples of a car driving laps on a Circuit at constant speed.
type Generator struct {
	circuit    Circuit
	lapTimeMs  int64
	intervalMs int64
	durationMs int64
	startTs    int64
	extraTs    []int64
	jitterM    float64
	seed       uint64
	withPedals bool
}

type GeneratorOption func(g *Generator)

func WithLapTime(ms int64) GeneratorOption {
	return func(g *Generator) { g.lapTimeMs = ms }
}

func WithRate(hz int) GeneratorOption {
	return func(g *Generator) { g.intervalMs = int64(1000 / hz) }
}

func WithDuration(ms int64) GeneratorOption {
	return func(g *Generator) { g.durationMs = ms }
}

func WithStartTs(ts int64) GeneratorOption {
	return func(g *Generator) { g.startTs = ts }
}

// WithExtraTimestamps inserts samples at the given offsets (relative to start).
func WithExtraTimestamps(ts ...int64) GeneratorOption {
	return func(g *Generator) { g.extraTs = append(g.extraTs, ts...) }
}

// WithJitter moves each sample (except those exactly on the line) by up to m meters.
func WithJitter(m float64, seed uint64) GeneratorOption {
	return func(g *Generator) {
		g.jitterM = m
		g.seed = seed
	}
}

// WithPedals adds throttle and brake values: full throttle on the first half of
// a lap, braking on the second.
func WithPedals() GeneratorOption {
	return func(g *Generator) { g.withPedals = true }
}

func NewGenerator(c Circuit, opts ...GeneratorOption) *Generator {
	g := &Generator{
		circuit:    c,
		lapTimeMs:  SampleLapTimeMs,
		intervalMs: 50,
		durationMs: 90000,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SpeedKmh is the constant speed needed to drive a lap in the configured lap time.
func (g *Generator) SpeedKmh() float64 {
	return g.circuit.LengthM() / (float64(g.lapTimeMs) / 1000) * 3.6
}

// Samples returns the samples in timestamp order. Every multiple of the lap time
// gets a sample exactly on the start/finish line.
func (g *Generator) Samples() []model.TelemetrySample {
	offsets := []int64{}
	for t := int64(0); t < g.durationMs; t += g.intervalMs {
		offsets = append(offsets, t)
	}
	for t := g.lapTimeMs; t < g.durationMs; t += g.lapTimeMs {
		offsets = append(offsets, t)
	}
	offsets = append(offsets, g.extraTs...)
	slices.Sort(offsets)
	offsets = slices.Compact(offsets)

	var rnd *rand.Rand
	if g.jitterM > 0 {
		rnd = rand.New(rand.NewPCG(g.seed, g.seed^0x5eed))
	}
	speed := g.SpeedKmh()
	ret := make([]model.TelemetrySample, 0, len(offsets))
	for _, t := range offsets {
		frac := float64(t%g.lapTimeMs) / float64(g.lapTimeMs)
		pos := g.circuit.PositionAt(frac)
		if rnd != nil && frac != 0 {
			pos = geo.Destination(pos, rnd.Float64()*360, rnd.Float64()*g.jitterM)
		}
		s := model.TelemetrySample{
			TimestampMs: g.startTs + t,
			Position:    pos,
			SpeedKmh:    speed,
			HeadingDeg:  omitnull.From(g.circuit.HeadingAt(frac)),
		}
		if g.withPedals {
			if frac < 0.5 {
				s.ThrottlePct = omitnull.From(100.0)
				s.BrakePct = omitnull.From(0.0)
			} else {
				s.ThrottlePct = omitnull.From(0.0)
				s.BrakePct = omitnull.From(50.0)
			}
		}
		ret = append(ret, s)
	}
	return ret
}
