package state

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

// Mutation kinds.
const (
	KindSelectYear      = "select_year"
	KindSelectStage     = "select_stage"
	KindSetLayerVisible = "set_layer_visible"
	KindSetOpacity      = "set_opacity"
	KindToggle3D        = "toggle_3d"
	KindToggleBorder    = "toggle_border"
	KindToggleLabels    = "toggle_labels"
	KindSetMapStyle     = "set_map_style"
)

// ErrInvalidMutation is returned for mutations that are missing a field or
// name an unknown kind. Valid mutations that change nothing are not errors.
var ErrInvalidMutation = errors.New("invalid mutation")

// Mutation is a serializable request to change the view. Kind selects which
// of the other fields apply.
type Mutation struct {
	Kind    string       `json:"kind"`
	Year    int          `json:"year,omitempty"`
	Stage   domain.Stage `json:"stage,omitempty"`
	Visible *bool        `json:"visible,omitempty"`
	Opacity *float64     `json:"opacity,omitempty"`
	StyleID string       `json:"style_id,omitempty"`
}

func SelectYearMutation(year int) Mutation {
	return Mutation{Kind: KindSelectYear, Year: year}
}

func SelectStageMutation(stage domain.Stage) Mutation {
	return Mutation{Kind: KindSelectStage, Stage: stage}
}

func SetLayerVisibleMutation(stage domain.Stage, visible bool) Mutation {
	return Mutation{Kind: KindSetLayerVisible, Stage: stage, Visible: &visible}
}

func SetOpacityMutation(v float64) Mutation {
	return Mutation{Kind: KindSetOpacity, Opacity: &v}
}

func Toggle3DMutation() Mutation { return Mutation{Kind: KindToggle3D} }

func ToggleBorderMutation() Mutation { return Mutation{Kind: KindToggleBorder} }

func ToggleLabelsMutation() Mutation { return Mutation{Kind: KindToggleLabels} }

func SetMapStyleMutation(id string) Mutation {
	return Mutation{Kind: KindSetMapStyle, StyleID: id}
}

// Selection reports whether the mutation changes which dataset is shown.
// Selection changes load geometry and go through the transition guard.
func (m Mutation) Selection() bool {
	return m.Kind == KindSelectYear || m.Kind == KindSelectStage
}

// Validate checks that the fields required by Kind are present.
func (m Mutation) Validate() error {
	switch m.Kind {
	case KindSelectYear, KindSelectStage, KindToggle3D, KindToggleBorder, KindToggleLabels, KindSetMapStyle:
		return nil
	case KindSetLayerVisible:
		if m.Visible == nil {
			return fmt.Errorf("%w: %s requires visible", ErrInvalidMutation, m.Kind)
		}
		return nil
	case KindSetOpacity:
		if m.Opacity == nil {
			return fmt.Errorf("%w: %s requires opacity", ErrInvalidMutation, m.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMutation, m.Kind)
	}
}

// Apply runs the mutation against s.
func Apply(s ViewState, idx domain.Index, m Mutation) (ViewState, error) {
	if err := m.Validate(); err != nil {
		return s, err
	}
	switch m.Kind {
	case KindSelectYear:
		return SelectYear(s, idx, m.Year), nil
	case KindSelectStage:
		return SelectPrimaryStage(s, idx, m.Stage), nil
	case KindSetLayerVisible:
		return SetLayerVisible(s, m.Stage, *m.Visible), nil
	case KindSetOpacity:
		return SetOpacity(s, *m.Opacity), nil
	case KindToggle3D:
		return Toggle3D(s), nil
	case KindToggleBorder:
		return ToggleBorder(s), nil
	case KindToggleLabels:
		return ToggleLabels(s), nil
	default:
		return SetMapStyle(s, m.StyleID), nil
	}
}
