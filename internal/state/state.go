// Package state holds the view selection and the pure functions that change
// it. Nothing here talks to a renderer.
package state

import (
	"math"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

// DefaultMapStyle is the base map used when no style is configured.
const DefaultMapStyle = "mapbox://styles/mapbox/dark-v11"

// ViewState is the full user-facing selection. It is a comparable value; the
// zero value means nothing is selected.
type ViewState struct {
	SelectedYear  int             `json:"selected_year"`
	SelectedStage domain.Stage    `json:"selected_stage,omitempty"`
	Layers        domain.StageSet `json:"layers"`
	Opacity       float64         `json:"opacity"`
	Is3D          bool            `json:"is_3d"`
	MapStyleID    string          `json:"map_style_id"`
	BorderVisible bool            `json:"border_visible"`
	LabelsVisible bool            `json:"labels_visible"`
}

// Key returns the selected (year, stage).
func (s ViewState) Key() domain.Key {
	return domain.Key{Year: s.SelectedYear, Stage: s.SelectedStage}
}

// stagePreference is the order in which a stage is picked when the current
// one does not exist for a year.
var stagePreference = []domain.Stage{
	domain.StageDuring,
	domain.StageAfter,
	domain.StageBefore,
	domain.StageComparative,
}

// PreferredStage returns the first stage of year in preference order.
func PreferredStage(idx domain.Index, year int) (domain.Stage, bool) {
	for _, s := range stagePreference {
		if _, ok := idx.Lookup(domain.Key{Year: year, Stage: s}); ok {
			return s, true
		}
	}
	return domain.StageUnknown, false
}

// SelectYear moves the selection to year. The primary stage is kept when the
// year has it; otherwise the preferred stage is chosen and made visible.
// Years absent from the index leave s unchanged.
func SelectYear(s ViewState, idx domain.Index, year int) ViewState {
	if year == s.SelectedYear || !idx.Has(year) {
		return s
	}
	stage := s.SelectedStage
	if _, ok := idx.Lookup(domain.Key{Year: year, Stage: stage}); !ok {
		stage, _ = PreferredStage(idx, year)
	}
	s.SelectedYear = year
	s.SelectedStage = stage
	s.Layers = s.Layers.With(stage)
	return s
}

// SelectPrimaryStage changes the stage shown in the info panel. The pair must
// be indexed; layer visibility is not touched.
func SelectPrimaryStage(s ViewState, idx domain.Index, stage domain.Stage) ViewState {
	if !stage.Valid() {
		return s
	}
	if _, ok := idx.Lookup(domain.Key{Year: s.SelectedYear, Stage: stage}); !ok {
		return s
	}
	s.SelectedStage = stage
	return s
}

func SetLayerVisible(s ViewState, stage domain.Stage, visible bool) ViewState {
	if visible {
		s.Layers = s.Layers.With(stage)
	} else {
		s.Layers = s.Layers.Without(stage)
	}
	return s
}

// SetOpacity clamps v to [0, 1]. NaN leaves s unchanged.
func SetOpacity(s ViewState, v float64) ViewState {
	if math.IsNaN(v) {
		return s
	}
	s.Opacity = clamp01(v)
	return s
}

func Toggle3D(s ViewState) ViewState {
	s.Is3D = !s.Is3D
	return s
}

func ToggleBorder(s ViewState) ViewState {
	s.BorderVisible = !s.BorderVisible
	return s
}

func ToggleLabels(s ViewState) ViewState {
	s.LabelsVisible = !s.LabelsVisible
	return s
}

func SetMapStyle(s ViewState, id string) ViewState {
	if id == "" {
		return s
	}
	s.MapStyleID = id
	return s
}

// Preferences seed the initial state.
type Preferences struct {
	Year          int
	Stage         domain.Stage
	Opacity       float64
	Is3D          bool
	MapStyleID    string
	BorderVisible bool
	LabelsVisible bool
}

// DefaultPreferences mirror the published viewer: 2020 during the flood,
// 60% opacity, terrain on.
func DefaultPreferences() Preferences {
	return Preferences{
		Year:          2020,
		Stage:         domain.StageDuring,
		Opacity:       0.6,
		Is3D:          true,
		MapStyleID:    DefaultMapStyle,
		BorderVisible: true,
		LabelsVisible: true,
	}
}

// Initial picks the starting selection: the preferred (year, stage) if
// indexed, else the earliest year with its preferred stage. ok is false when
// the index is empty.
func Initial(idx domain.Index, p Preferences) (ViewState, bool) {
	if idx.Empty() {
		return ViewState{}, false
	}

	key := domain.Key{Year: p.Year, Stage: p.Stage}
	if _, found := idx.Lookup(key); !found {
		key.Year = idx.Years()[0]
		key.Stage, _ = PreferredStage(idx, key.Year)
	}

	style := p.MapStyleID
	if style == "" {
		style = DefaultMapStyle
	}
	opacity := p.Opacity
	if math.IsNaN(opacity) {
		opacity = DefaultPreferences().Opacity
	}

	return ViewState{
		SelectedYear:  key.Year,
		SelectedStage: key.Stage,
		Layers:        domain.NewStageSet(key.Stage),
		Opacity:       clamp01(opacity),
		Is3D:          p.Is3D,
		MapStyleID:    style,
		BorderVisible: p.BorderVisible,
		LabelsVisible: p.LabelsVisible,
	}, true
}

// Reconcile keeps s valid against a new index: the selection survives when
// its key is still indexed, the year survives with its preferred stage when
// only the stage vanished, and otherwise the state is re-initialized with
// s's presentation settings.
func Reconcile(s ViewState, idx domain.Index) (ViewState, bool) {
	if idx.Empty() {
		return ViewState{}, false
	}
	if _, ok := idx.Lookup(s.Key()); ok {
		return s, true
	}
	if stage, ok := PreferredStage(idx, s.SelectedYear); ok {
		s.SelectedStage = stage
		s.Layers = s.Layers.With(stage)
		return s, true
	}
	next, _ := Initial(idx, Preferences{
		Opacity:       s.Opacity,
		Is3D:          s.Is3D,
		MapStyleID:    s.MapStyleID,
		BorderVisible: s.BorderVisible,
		LabelsVisible: s.LabelsVisible,
	})
	return next, true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
