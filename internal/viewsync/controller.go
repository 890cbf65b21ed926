// Package viewsync turns view state into the declarative command list that
// keeps the map, chart, info panel, timeline, and controls consistent.
package viewsync

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/state"
	"github.com/couchcryptid/flood-extent-service/internal/summary"
)

// Terrain and extrusion constants of the 3D view.
const (
	TerrainExaggeration = 2.5
	Pitch3D             = 60
	Bearing3D           = -17.6
	ExtrusionHeight     = 500
)

// DefaultPalette colors each stage layer.
var DefaultPalette = map[domain.Stage]string{
	domain.StageBefore:      "#60a5fa",
	domain.StageDuring:      "#22d3ee",
	domain.StageAfter:       "#a78bfa",
	domain.StageComparative: "#f472b6",
}

// Config is the static input of a Controller besides state and index.
type Config struct {
	Locale      language.Tag
	BoundaryRef string
	Palette     map[domain.Stage]string
	Summary     summary.Table
}

// Controller derives commands from view state. It holds no mutable state;
// the same inputs always produce the same commands.
type Controller struct {
	cfg     Config
	printer *message.Printer
}

// New creates a Controller. A zero Locale formats numbers in English.
func New(cfg Config) *Controller {
	if cfg.Palette == nil {
		cfg.Palette = DefaultPalette
	}
	if cfg.Summary == nil {
		cfg.Summary = summary.Table{}
	}
	if cfg.Locale == (language.Tag{}) {
		cfg.Locale = language.English
	}
	return &Controller{cfg: cfg, printer: message.NewPrinter(cfg.Locale)}
}

// WithSummary returns a copy of c using table.
func (c *Controller) WithSummary(table summary.Table) *Controller {
	cfg := c.cfg
	cfg.Summary = table
	return New(cfg)
}

// Summary returns the configured summary table.
func (c *Controller) Summary() summary.Table {
	return c.cfg.Summary
}

// Render returns the full command list for s.
func (c *Controller) Render(s state.ViewState, idx domain.Index) []domain.Command {
	if !idx.Has(s.SelectedYear) {
		return c.missingYear(s, idx)
	}

	var cmds []domain.Command
	cmds = append(cmds, c.mapCommands(s, idx)...)
	cmds = append(cmds, c.chartCommand(s.SelectedYear, idx))
	cmds = append(cmds, c.infoCommand(s, idx))
	cmds = append(cmds, c.timelineCommands(s, idx)...)
	cmds = append(cmds, c.controlCommands(s, idx)...)
	return cmds
}

// OnStateChange returns the commands of Render(next) whose payload differs
// from what Render(prev) produced for the same slot. Equal states yield no
// commands.
func (c *Controller) OnStateChange(prev, next state.ViewState, idx domain.Index) []domain.Command {
	before := make(map[string]any)
	for _, cmd := range c.Render(prev, idx) {
		before[cmd.Slot()] = cmd.Payload
	}

	var out []domain.Command
	for _, cmd := range c.Render(next, idx) {
		if p, ok := before[cmd.Slot()]; ok && reflect.DeepEqual(p, cmd.Payload) {
			continue
		}
		out = append(out, cmd)
	}
	return out
}

// NoData is the terminal command list for an empty index.
func (c *Controller) NoData() []domain.Command {
	return []domain.Command{
		{Target: domain.TargetMap, Op: OpMapClear},
		{Target: domain.TargetChart, Op: OpChartReplace, Payload: emptyChart("")},
		{Target: domain.TargetInfo, Op: OpInfoNoData, Payload: NoData{Message: "No flood datasets were found"}},
		{Target: domain.TargetTimeline, Op: OpTimelineMarkers, Payload: Markers{Markers: []Marker{}}},
		{Target: domain.TargetTimeline, Op: OpTimelineActive, Payload: Active{}},
	}
}

func (c *Controller) missingYear(s state.ViewState, idx domain.Index) []domain.Command {
	title := ""
	if s.SelectedYear != 0 {
		title = fmt.Sprintf("Event summary %d", s.SelectedYear)
	}
	cmds := []domain.Command{
		{Target: domain.TargetMap, Op: OpMapClear},
		{Target: domain.TargetChart, Op: OpChartReplace, Payload: emptyChart(title)},
		{Target: domain.TargetInfo, Op: OpInfoNoData, Payload: NoData{Message: fmt.Sprintf("No data for %d", s.SelectedYear)}},
	}
	cmds = append(cmds, c.timelineCommands(s, idx)...)
	cmds = append(cmds, c.controlCommands(s, idx)...)
	return cmds
}

func (c *Controller) mapCommands(s state.ViewState, idx domain.Index) []domain.Command {
	terrain := Terrain{}
	if s.Is3D {
		terrain = Terrain{Enabled: true, Exaggeration: TerrainExaggeration, Pitch: Pitch3D, Bearing: Bearing3D}
	}

	cmds := []domain.Command{
		{Target: domain.TargetMap, Op: OpMapStyle, Payload: MapStyle{StyleID: s.MapStyleID}},
		{Target: domain.TargetMap, Op: OpMapTerrain, Payload: terrain},
		{Target: domain.TargetMap, Op: OpMapBorder, Payload: Border{Visible: s.BorderVisible, SourceRef: c.cfg.BoundaryRef}},
		{Target: domain.TargetMap, Op: OpMapLabels, Payload: Toggle{Visible: s.LabelsVisible}},
	}

	height := 0.0
	if s.Is3D {
		height = ExtrusionHeight
	}
	for _, stage := range domain.Stages {
		key := stage.String()
		rec, ok := idx.Lookup(domain.Key{Year: s.SelectedYear, Stage: stage})

		data := LayerData{}
		if ok {
			data = LayerData{
				DatasetID:    rec.Descriptor.ID(),
				SourceRef:    rec.SourceRef,
				GeometryPath: GeometryPath(rec.Key()),
			}
		}
		cmds = append(cmds,
			domain.Command{Target: domain.TargetMap, Op: OpLayerData, Key: key, Payload: data},
			domain.Command{Target: domain.TargetMap, Op: OpLayerVisibility, Key: key, Payload: Toggle{Visible: ok && s.Layers.Has(stage)}},
			domain.Command{Target: domain.TargetMap, Op: OpLayerPaint, Key: key, Payload: LayerPaint{
				Color:   c.cfg.Palette[stage],
				Opacity: s.Opacity,
				Height:  height,
				Primary: stage == s.SelectedStage,
			}},
		)
	}
	return cmds
}

func (c *Controller) chartCommand(year int, idx domain.Index) domain.Command {
	chart := emptyChart(fmt.Sprintf("Event summary %d", year))
	for _, rec := range idx.ForYear(year) {
		stage := rec.Descriptor.Stage
		label := stage.String()
		if rec.Descriptor.Label != "" {
			label = fmt.Sprintf("%s (%s)", stage, rec.Descriptor.Label)
		}
		chart.Labels = append(chart.Labels, label)
		chart.Values = append(chart.Values, math.Round(rec.Metrics.AreaKm2))
		chart.Colors = append(chart.Colors, c.cfg.Palette[stage])
	}
	return domain.Command{Target: domain.TargetChart, Op: OpChartReplace, Payload: chart}
}

func emptyChart(title string) Chart {
	return Chart{Title: title, Unit: "km²", Labels: []string{}, Values: []float64{}, Colors: []string{}}
}

func (c *Controller) infoCommand(s state.ViewState, idx domain.Index) domain.Command {
	rec, ok := idx.Lookup(s.Key())
	if !ok {
		return domain.Command{Target: domain.TargetInfo, Op: OpInfoNoData, Payload: NoData{
			Message: fmt.Sprintf("No data for %s", s.Key()),
		}}
	}

	d := rec.Descriptor
	title := d.Description
	if title == "" {
		title = d.ID()
	}
	if d.Label != "" {
		title = fmt.Sprintf("%s (%s)", title, d.Label)
	}

	m := rec.Metrics
	return domain.Command{Target: domain.TargetInfo, Op: OpInfoUpdate, Payload: Info{
		DatasetID:  d.ID(),
		Title:      title,
		Area:       c.printer.Sprintf("%v km²", number.Decimal(m.AreaKm2, number.MaxFractionDigits(2))),
		Percentage: c.printer.Sprintf("%v %%", number.Decimal(m.Percentage, number.Scale(2))),
		Volume:     c.printer.Sprintf("%v M m³", number.Decimal(m.VolumeMegaM3, number.MaxFractionDigits(2))),
		Polygons:   c.printer.Sprintf("%v", number.Decimal(m.PolygonCount)),
		Severity:   SeverityBadge{Label: rec.Severity.String(), Color: rec.Severity.Color()},
		Metrics:    m,
		Summary:    c.summaryStats(s.SelectedYear),
	}}
}

func (c *Controller) summaryStats(year int) []Stat {
	nan := math.NaN()
	row, ok := c.cfg.Summary.Lookup(year)
	if !ok {
		row = summary.Row{
			Year: year, Mu: nan, Sigma: nan, KValue: nan, Threshold: nan,
			DiffMin: nan, DiffMax: nan, ImagesBefore: nan, ImagesAfter: nan,
		}
	}
	return []Stat{
		{Name: "mu", Value: summary.Format(row.Mu, 2)},
		{Name: "sigma", Value: summary.Format(row.Sigma, 2)},
		{Name: "k_value", Value: summary.Format(row.KValue, 2)},
		{Name: "threshold", Value: summary.Format(row.Threshold, 2)},
		{Name: "diff_min", Value: summary.Format(row.DiffMin, 2)},
		{Name: "diff_max", Value: summary.Format(row.DiffMax, 2)},
		{Name: "imgs_before", Value: summary.Format(row.ImagesBefore, 0)},
		{Name: "imgs_after", Value: summary.Format(row.ImagesAfter, 0)},
	}
}

func (c *Controller) timelineCommands(s state.ViewState, idx domain.Index) []domain.Command {
	markers := make([]Marker, 0, idx.Len())
	for _, rec := range idx.Records() {
		d := rec.Descriptor
		markers = append(markers, Marker{
			ID:          d.ID(),
			Year:        d.Year,
			Stage:       d.Stage,
			Label:       d.Label,
			Description: d.Description,
			Severity:    rec.Severity,
		})
	}

	active := Active{}
	if _, ok := idx.Lookup(s.Key()); ok {
		active.ID = s.Key().String()
	}
	return []domain.Command{
		{Target: domain.TargetTimeline, Op: OpTimelineMarkers, Payload: Markers{Markers: markers}},
		{Target: domain.TargetTimeline, Op: OpTimelineActive, Payload: active},
	}
}

func (c *Controller) controlCommands(s state.ViewState, idx domain.Index) []domain.Command {
	text := "Switch to 3D view"
	if s.Is3D {
		text = "Switch to 2D view"
	}
	cmds := []domain.Command{
		{Target: domain.TargetControls, Op: OpControls3D, Payload: Toggle3D{Active: s.Is3D, Text: text}},
		{Target: domain.TargetControls, Op: OpControlsOpacity, Payload: Opacity{Value: s.Opacity, Percent: int(math.Round(s.Opacity * 100))}},
		{Target: domain.TargetControls, Op: OpControlsBorder, Payload: Switch{Active: s.BorderVisible}},
		{Target: domain.TargetControls, Op: OpControlsLabels, Payload: Switch{Active: s.LabelsVisible}},
	}
	for _, stage := range domain.Stages {
		rec, ok := idx.Lookup(domain.Key{Year: s.SelectedYear, Stage: stage})
		label := stage.String()
		if ok && rec.Descriptor.Label != "" {
			label = rec.Descriptor.Label
		}
		cmds = append(cmds, domain.Command{
			Target: domain.TargetControls, Op: OpControlsLayer, Key: stage.String(),
			Payload: LayerToggle{Active: ok && s.Layers.Has(stage), Available: ok, Label: label},
		})
	}
	return cmds
}

// GeometryPath is the HTTP path serving a dataset's feature collection.
func GeometryPath(k domain.Key) string {
	return fmt.Sprintf("/api/datasets/%d/%s/geometry", k.Year, strings.ToLower(k.Stage.String()))
}
