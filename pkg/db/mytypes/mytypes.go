// Package mytypes contains the jsonb column types.
package mytypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/mpapenbr/trackside/pkg/model"
)

type (
	Geometry          model.TrackGeometry
	SectorResultSlice []model.SectorResult
	SampleSlice       []model.TelemetrySample
)

func scanJSON(value, target any) error {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("value is not []byte: %T", value)
	}
	return json.Unmarshal(data, target)
}

func (g *Geometry) Scan(value any) error {
	return scanJSON(value, (*model.TrackGeometry)(g))
}

func (g Geometry) Value() (driver.Value, error) {
	return json.Marshal(model.TrackGeometry(g))
}

func (h *SectorResultSlice) Scan(value any) error {
	return scanJSON(value, (*[]model.SectorResult)(h))
}

func (h SectorResultSlice) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]model.SectorResult(h))
}

func (h *SampleSlice) Scan(value any) error {
	return scanJSON(value, (*[]model.TelemetrySample)(h))
}

func (h SampleSlice) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]model.TelemetrySample(h))
}
