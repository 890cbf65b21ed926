// Package geometry derives impact metrics from flood-extent feature collections.
package geometry

import (
	"math"

	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

const m2PerKm2 = 1e6

// Compute measures a feature collection against the study region. A nil or
// empty collection yields zero area and zero polygons.
//
// Area is the geodesic area of every feature summed. Flood masks come from
// raster vectorization and do not overlap, so the sum equals the area of the
// union for well-formed inputs.
func Compute(fc *geojson.FeatureCollection, region domain.Region) domain.Metrics {
	if fc == nil {
		return FromArea(0, 0, region)
	}
	var areaM2 float64
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		areaM2 += finiteNonNegative(geo.Area(f.Geometry))
	}
	return FromArea(areaM2/m2PerKm2, len(fc.Features), region)
}

// FromArea derives volume and percentage from an area in km².
//
// Volume is area × mean depth expressed in millions of m³. It is a first-order
// proxy, not a hydrological model. Percentage is not clamped at 100.
func FromArea(areaKm2 float64, polygonCount int, region domain.Region) domain.Metrics {
	areaKm2 = finiteNonNegative(areaKm2)
	depth := finiteNonNegative(region.MeanDepthM)

	var pct float64
	if region.ReferenceAreaKm2 > 0 {
		pct = areaKm2 / region.ReferenceAreaKm2 * 100
	}

	return domain.Metrics{
		AreaKm2:      areaKm2,
		VolumeMegaM3: areaKm2 * m2PerKm2 * depth / 1e6,
		Percentage:   pct,
		PolygonCount: max(polygonCount, 0),
	}
}

func finiteNonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
