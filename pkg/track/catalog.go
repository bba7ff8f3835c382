package track

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/geo"
	"github.com/mpapenbr/trackside/pkg/model"
)

var (
	ErrInvalidGeometry = errors.New("invalid track geometry")
	ErrTrackNotBound   = errors.New("track not bound")
)

// GeometryError reports why a track was rejected by Load.
type GeometryError struct {
	TrackID model.TrackID
	Reason  string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("track %q: %s", e.TrackID, e.Reason)
}

func (e *GeometryError) Unwrap() error { return ErrInvalidGeometry }

// Line is the resolved start/finish line of a track.
type Line struct {
	A, B       model.GeoPoint
	Center     model.GeoPoint
	BearingDeg float64
}

// ResolveLine computes the line endpoints. An anchored line is centered on A,
// perpendicular to the racing direction.
func ResolveLine(sf model.StartFinishLine) Line {
	if sf.IsAnchored() {
		half := sf.WidthM / 2
		return Line{
			A:          geo.Destination(sf.A, sf.BearingDeg-90, half),
			B:          geo.Destination(sf.A, sf.BearingDeg+90, half),
			Center:     model.GeoPoint{Lat: sf.A.Lat, Lng: sf.A.Lng},
			BearingDeg: sf.BearingDeg,
		}
	}
	return Line{
		A:          sf.A,
		B:          sf.B,
		Center:     geo.Interpolate(sf.A, sf.B, 0.5),
		BearingDeg: sf.BearingDeg,
	}
}

// DistanceM returns the distance from p to the line segment.
func (l Line) DistanceM(p model.GeoPoint) float64 {
	return geo.DistanceToSegmentM(p, l.A, l.B)
}

type TrackDistance struct {
	TrackID   model.TrackID
	DistanceM float64
}

type entry struct {
	geom model.TrackGeometry
	line Line
}

// Catalog holds immutable track geometries. It is safe for concurrent use.
type Catalog struct {
	entries []entry
	byID    map[model.TrackID]int
	log     *log.Logger
}

type CatalogOption func(c *Catalog)

func WithCatalogLogger(l *log.Logger) CatalogOption {
	return func(c *Catalog) {
		c.log = l
	}
}

// Load validates the tracks and builds the catalog.
// Any malformed track rejects the whole catalog.
func Load(tracks []model.TrackGeometry, opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{
		entries: make([]entry, 0, len(tracks)),
		byID:    make(map[model.TrackID]int, len(tracks)),
		log:     log.Default().Named("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	for i := range tracks {
		if err := validate(&tracks[i]); err != nil {
			return nil, err
		}
		if _, ok := c.byID[tracks[i].ID]; ok {
			return nil, &GeometryError{TrackID: tracks[i].ID, Reason: "duplicate id"}
		}
		g := cloneGeometry(&tracks[i])
		c.byID[g.ID] = len(c.entries)
		c.entries = append(c.entries, entry{geom: g, line: ResolveLine(g.StartFinish)})
	}
	c.log.Debug("catalog loaded", log.Int("tracks", len(c.entries)))
	return c, nil
}

func (c *Catalog) Len() int { return len(c.entries) }

// Get returns the geometry for id. The result must not be modified.
func (c *Catalog) Get(id model.TrackID) (*model.TrackGeometry, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return &c.entries[idx].geom, true
}

// Line returns the resolved start/finish line for id.
func (c *Catalog) Line(id model.TrackID) (Line, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Line{}, false
	}
	return c.entries[idx].line, true
}

// All returns the track ids in load order.
func (c *Catalog) All() []model.TrackID {
	return lo.Map(c.entries, func(e entry, _ int) model.TrackID { return e.geom.ID })
}

// NearestTracks returns up to limit tracks sorted by ascending distance from pos
// to the start/finish line. Ties are ordered by track id.
func (c *Catalog) NearestTracks(pos model.GeoPoint, limit int) []TrackDistance {
	if limit <= 0 || !pos.IsValid() {
		return []TrackDistance{}
	}
	ret := lo.Map(c.entries, func(e entry, _ int) TrackDistance {
		return TrackDistance{TrackID: e.geom.ID, DistanceM: e.line.DistanceM(pos)}
	})
	slices.SortFunc(ret, func(a, b TrackDistance) int {
		if r := cmp.Compare(a.DistanceM, b.DistanceM); r != 0 {
			return r
		}
		return cmp.Compare(a.TrackID, b.TrackID)
	})
	if len(ret) > limit {
		ret = ret[:limit]
	}
	return ret
}

//nolint:cyclop,funlen // list of checks
func validate(t *model.TrackGeometry) error {
	fail := func(format string, args ...any) error {
		return &GeometryError{TrackID: t.ID, Reason: fmt.Sprintf(format, args...)}
	}
	if t.ID == "" {
		return fail("empty id")
	}
	sf := t.StartFinish
	if !sf.A.IsValid() {
		return fail("start/finish point A invalid")
	}
	if !sf.B.IsValid() {
		return fail("start/finish point B invalid")
	}
	if math.IsNaN(sf.BearingDeg) || sf.BearingDeg < 0 || sf.BearingDeg >= 360 {
		return fail("start/finish bearing %v not in [0,360)", sf.BearingDeg)
	}
	if sf.IsAnchored() && !(sf.WidthM > 0) {
		return fail("start/finish width must be positive")
	}
	if len(t.Sectors) < 2 {
		return fail("need at least 2 sectors, got %d", len(t.Sectors))
	}
	for i := range t.Sectors {
		s := &t.Sectors[i]
		if i > 0 && s.Ordinal <= t.Sectors[i-1].Ordinal {
			return fail("sector ordinals not strictly increasing at index %d", i)
		}
		if !s.Start.IsValid() || !s.End.IsValid() {
			return fail("sector %d has invalid boundary points", s.Ordinal)
		}
		if math.IsNaN(s.NominalLengthM) || math.IsInf(s.NominalLengthM, 0) ||
			s.NominalLengthM < 0 {
			return fail("sector %d has invalid nominal length", s.Ordinal)
		}
	}
	if len(t.Outline) < 3 {
		return fail("outline needs at least 3 points, got %d", len(t.Outline))
	}
	for i := range t.Outline {
		if !t.Outline[i].IsValid() {
			return fail("outline point %d invalid", i)
		}
	}
	return nil
}

func cloneGeometry(t *model.TrackGeometry) model.TrackGeometry {
	ret := *t
	ret.Sectors = slices.Clone(t.Sectors)
	ret.Outline = slices.Clone(t.Outline)
	return ret
}
