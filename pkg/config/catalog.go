package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aarondl/opt/omitnull"
	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/version"
)

// CatalogFileContent is the top-level structure of a track catalog file.
//
//	version: v1
//	tracks:
//	  - id: testtrack
//	    startFinish: {a: {lat: 52.0786, lng: -1.0169}, bearing: 180, width: 15}
//	    sectors:
//	      - {ordinal: 1, start: {...}, end: {...}, nominalLength: 1112.7}
//	    outline: [{lat: ..., lng: ...}, ...]
type CatalogFileContent struct {
	Version string        `yaml:"version,omitempty"`
	Tracks  []TrackConfig `yaml:"tracks"`
}

type PointConfig struct {
	Lat       float64  `yaml:"lat"`
	Lng       float64  `yaml:"lng"`
	Elevation *float64 `yaml:"elevation,omitempty"`
}

type StartFinishConfig struct {
	A       PointConfig  `yaml:"a"`
	B       *PointConfig `yaml:"b,omitempty"`
	Bearing float64      `yaml:"bearing"`
	Width   float64      `yaml:"width"`
}

type SectorConfig struct {
	Ordinal       int         `yaml:"ordinal"`
	Start         PointConfig `yaml:"start"`
	End           PointConfig `yaml:"end"`
	NominalLength float64     `yaml:"nominalLength"`
}

type TrackConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	StartFinish StartFinishConfig `yaml:"startFinish"`
	Sectors     []SectorConfig    `yaml:"sectors"`
	Outline     []PointConfig     `yaml:"outline"`
}

// LoadCatalogFile reads the track catalog file. The geometries are not validated here.
func LoadCatalogFile(path string) ([]model.TrackGeometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseCatalog(bytes.NewReader(data))
}

var ErrCatalogFormat = errors.New("unsupported catalog format")

func ParseCatalog(r io.Reader) ([]model.TrackGeometry, error) {
	var content CatalogFileContent
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&content); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if !version.SupportsCatalogFormat(content.Version) {
		return nil, fmt.Errorf("%w: %q", ErrCatalogFormat, content.Version)
	}
	ret := make([]model.TrackGeometry, len(content.Tracks))
	for i := range content.Tracks {
		ret[i] = content.Tracks[i].toModel()
	}
	return ret, nil
}

// MarshalCatalog is the inverse of ParseCatalog.
func MarshalCatalog(tracks []model.TrackGeometry) ([]byte, error) {
	content := CatalogFileContent{
		Version: version.CatalogFormat,
		Tracks:  make([]TrackConfig, len(tracks)),
	}
	for i := range tracks {
		content.Tracks[i] = fromModel(&tracks[i])
	}
	return yaml.Marshal(&content)
}

func (p PointConfig) toModel() model.GeoPoint {
	ret := model.GeoPoint{Lat: p.Lat, Lng: p.Lng}
	if p.Elevation != nil {
		ret.Elevation = omitnull.From(*p.Elevation)
	}
	return ret
}

func pointFromModel(p model.GeoPoint) PointConfig {
	return PointConfig{Lat: p.Lat, Lng: p.Lng, Elevation: p.Elevation.Ptr()}
}

func (t *TrackConfig) toModel() model.TrackGeometry {
	ret := model.TrackGeometry{
		ID:   model.TrackID(t.ID),
		Name: t.Name,
		StartFinish: model.StartFinishLine{
			A:          t.StartFinish.A.toModel(),
			BearingDeg: t.StartFinish.Bearing,
			WidthM:     t.StartFinish.Width,
		},
		Sectors: make([]model.SectorBoundary, len(t.Sectors)),
		Outline: make([]model.GeoPoint, len(t.Outline)),
	}
	if t.StartFinish.B != nil {
		ret.StartFinish.B = t.StartFinish.B.toModel()
	}
	for i, s := range t.Sectors {
		ret.Sectors[i] = model.SectorBoundary{
			Ordinal:        s.Ordinal,
			Start:          s.Start.toModel(),
			End:            s.End.toModel(),
			NominalLengthM: s.NominalLength,
		}
	}
	for i, p := range t.Outline {
		ret.Outline[i] = p.toModel()
	}
	return ret
}

func fromModel(t *model.TrackGeometry) TrackConfig {
	ret := TrackConfig{
		ID:   string(t.ID),
		Name: t.Name,
		StartFinish: StartFinishConfig{
			A:       pointFromModel(t.StartFinish.A),
			Bearing: t.StartFinish.BearingDeg,
			Width:   t.StartFinish.WidthM,
		},
		Sectors: make([]SectorConfig, len(t.Sectors)),
		Outline: make([]PointConfig, len(t.Outline)),
	}
	if !t.StartFinish.IsAnchored() {
		b := pointFromModel(t.StartFinish.B)
		ret.StartFinish.B = &b
	}
	for i, s := range t.Sectors {
		ret.Sectors[i] = SectorConfig{
			Ordinal:       s.Ordinal,
			Start:         pointFromModel(s.Start),
			End:           pointFromModel(s.End),
			NominalLength: s.NominalLengthM,
		}
	}
	for i, p := range t.Outline {
		ret.Outline[i] = pointFromModel(p)
	}
	return ret
}
