package viewsync

import "github.com/couchcryptid/flood-extent-service/internal/domain"

// Command ops, grouped by target.
const (
	OpMapStyle        = "map.style"
	OpMapTerrain      = "map.terrain"
	OpMapBorder       = "map.border"
	OpMapLabels       = "map.labels"
	OpMapClear        = "map.clear"
	OpLayerData       = "layer.data"
	OpLayerVisibility = "layer.visibility"
	OpLayerPaint      = "layer.paint"

	OpChartReplace = "chart.replace"

	OpInfoUpdate = "info.update"
	OpInfoNoData = "info.nodata"

	OpTimelineMarkers = "timeline.markers"
	OpTimelineActive  = "timeline.active"

	OpControls3D      = "controls.toggle3d"
	OpControlsOpacity = "controls.opacity"
	OpControlsBorder  = "controls.border"
	OpControlsLabels  = "controls.labels"
	OpControlsLayer   = "controls.layer"
)

type MapStyle struct {
	StyleID string `json:"style_id"`
}

// Terrain carries the 3D state and the camera that goes with it.
type Terrain struct {
	Enabled      bool    `json:"enabled"`
	Exaggeration float64 `json:"exaggeration"`
	Pitch        float64 `json:"pitch"`
	Bearing      float64 `json:"bearing"`
}

type Border struct {
	Visible   bool   `json:"visible"`
	SourceRef string `json:"source_ref,omitempty"`
}

type Toggle struct {
	Visible bool `json:"visible"`
}

// LayerData points a stage layer at a dataset. An empty DatasetID clears it.
type LayerData struct {
	DatasetID    string `json:"dataset_id"`
	SourceRef    string `json:"source_ref,omitempty"`
	GeometryPath string `json:"geometry_path,omitempty"`
}

type LayerPaint struct {
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
	Height  float64 `json:"height"`
	Primary bool    `json:"primary"`
}

type Chart struct {
	Title  string    `json:"title"`
	Unit   string    `json:"unit"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Colors []string  `json:"colors"`
}

type SeverityBadge struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

type Stat struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Info is the info-panel content for the primary dataset.
type Info struct {
	DatasetID  string         `json:"dataset_id"`
	Title      string         `json:"title"`
	Area       string         `json:"area"`
	Percentage string         `json:"percentage"`
	Volume     string         `json:"volume"`
	Polygons   string         `json:"polygons"`
	Severity   SeverityBadge  `json:"severity"`
	Metrics    domain.Metrics `json:"metrics"`
	Summary    []Stat         `json:"summary"`
}

type NoData struct {
	Message string `json:"message"`
}

type Marker struct {
	ID          string          `json:"id"`
	Year        int             `json:"year"`
	Stage       domain.Stage    `json:"stage"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Severity    domain.Severity `json:"severity"`
}

type Markers struct {
	Markers []Marker `json:"markers"`
}

type Active struct {
	ID string `json:"id"`
}

type Toggle3D struct {
	Active bool   `json:"active"`
	Text   string `json:"text"`
}

type Opacity struct {
	Value   float64 `json:"value"`
	Percent int     `json:"percent"`
}

type Switch struct {
	Active bool `json:"active"`
}

type LayerToggle struct {
	Active    bool   `json:"active"`
	Available bool   `json:"available"`
	Label     string `json:"label"`
}
