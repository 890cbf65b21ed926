// Package domain models flood-extent observation datasets for a single study region.
//
// # Data Source
//
// Flood extents are published as one GeoJSON FeatureCollection per observation
// event. There is no manifest: the set of available datasets is found by probing
// every candidate in a static catalog of (year, stage) pairs. A candidate's file
// name is produced by a single configurable [Resolver], for example
//
//	Agua_Durante_Tabasco_2020.geojson
//
// Earlier tooling produced the same files with and without accents on the stage
// token ("Después" vs "Despues"); the resolver can fold accents so one pattern
// covers both conventions.
//
// # Stages
//
// Each year may carry up to four observation stages, always ordered as
//
//	Before < During < After < Comparative
//
// The order drives chart bars, map layers, and the timeline.
//
// # Metrics
//
// Area is the geodesic area of the collection's polygons in km². Volume is a
// first-order proxy (area × mean depth), not a hydrological model. Percentage is
// area over the reference region area and is deliberately not clamped: values
// above 100 point at geometry that spills outside the region and are surfaced
// as-is.
//
// # Severity classification
//
// Severity is a pure function of area with lower-exclusive thresholds, so a value
// exactly on a threshold belongs to the lower tier:
//
//	area = 0          None
//	0    < a ≤  500   Minor
//	500  < a ≤ 1500   Moderate
//	1500 < a ≤ 3000   Major
//	a > 3000          Catastrophic
//
// See [SeverityOf].
package domain
