package domain

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// EventDescriptor identifies one candidate dataset in the static catalog.
type EventDescriptor struct {
	Year        int    `json:"year"`
	Stage       Stage  `json:"stage"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Key returns the index key for the descriptor.
func (d EventDescriptor) Key() Key {
	return Key{Year: d.Year, Stage: d.Stage}
}

// ID is the stable display identifier, e.g. "2020-During".
func (d EventDescriptor) ID() string {
	return d.Key().String()
}

// Key is the composite (year, stage) index key.
type Key struct {
	Year  int   `json:"year"`
	Stage Stage `json:"stage"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d-%s", k.Year, k.Stage)
}

// Less orders keys by year, then stage.
func (k Key) Less(o Key) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Stage < o.Stage
}

// Region holds the constants of the study area used for derived metrics.
type Region struct {
	Name             string  `json:"name"`
	ReferenceAreaKm2 float64 `json:"reference_area_km2"`
	MeanDepthM       float64 `json:"mean_depth_m"`
}

// Metrics are the derived impact values of one dataset.
type Metrics struct {
	AreaKm2      float64 `json:"area_km2"`
	VolumeMegaM3 float64 `json:"volume_mega_m3"`
	Percentage   float64 `json:"percentage"`
	PolygonCount int     `json:"polygon_count"`
}

// DatasetRecord is a catalog candidate confirmed to resolve to real data.
type DatasetRecord struct {
	Descriptor EventDescriptor            `json:"descriptor"`
	SourceRef  string                     `json:"source_ref"`
	Geometry   *geojson.FeatureCollection `json:"-"`
	Metrics    Metrics                    `json:"metrics"`
	Severity   Severity                   `json:"severity"`
}

// Key returns the record's index key.
func (r DatasetRecord) Key() Key {
	return r.Descriptor.Key()
}
