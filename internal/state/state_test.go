package state

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

func rec(year int, stage domain.Stage) domain.DatasetRecord {
	return domain.DatasetRecord{Descriptor: domain.EventDescriptor{Year: year, Stage: stage}}
}

// 2019: Before, After. 2020: Before, During, After. 2021: During.
func testIndex() domain.Index {
	return domain.NewIndex(
		rec(2019, domain.StageBefore), rec(2019, domain.StageAfter),
		rec(2020, domain.StageBefore), rec(2020, domain.StageDuring), rec(2020, domain.StageAfter),
		rec(2021, domain.StageDuring),
	)
}

func initial(t *testing.T) ViewState {
	t.Helper()
	s, ok := Initial(testIndex(), DefaultPreferences())
	require.True(t, ok)
	return s
}

func TestInitial_Preferred(t *testing.T) {
	s := initial(t)
	assert.Equal(t, ViewState{
		SelectedYear:  2020,
		SelectedStage: domain.StageDuring,
		Layers:        domain.NewStageSet(domain.StageDuring),
		Opacity:       0.6,
		Is3D:          true,
		MapStyleID:    DefaultMapStyle,
		BorderVisible: true,
		LabelsVisible: true,
	}, s)
}

func TestInitial_FallsBackToEarliestYear(t *testing.T) {
	idx := domain.NewIndex(rec(2022, domain.StageDuring), rec(2019, domain.StageAfter), rec(2019, domain.StageBefore))

	s, ok := Initial(idx, DefaultPreferences())
	require.True(t, ok)
	assert.Equal(t, 2019, s.SelectedYear)
	assert.Equal(t, domain.StageAfter, s.SelectedStage, "After precedes Before in preference order")
}

func TestInitial_EmptyIndex(t *testing.T) {
	s, ok := Initial(domain.NewIndex(), DefaultPreferences())
	assert.False(t, ok)
	assert.Equal(t, ViewState{}, s)
}

func TestInitial_SanitizesPreferences(t *testing.T) {
	p := DefaultPreferences()
	p.Opacity = 3
	p.MapStyleID = ""
	s, _ := Initial(testIndex(), p)
	assert.InDelta(t, 1, s.Opacity, 0)
	assert.Equal(t, DefaultMapStyle, s.MapStyleID)

	p.Opacity = math.NaN()
	s, _ = Initial(testIndex(), p)
	assert.InDelta(t, 0.6, s.Opacity, 0)
}

func TestSelectYear(t *testing.T) {
	idx := testIndex()
	s := initial(t)

	t.Run("keeps stage when present", func(t *testing.T) {
		next := SelectYear(s, idx, 2021)
		assert.Equal(t, 2021, next.SelectedYear)
		assert.Equal(t, domain.StageDuring, next.SelectedStage)
	})

	t.Run("falls back in preference order", func(t *testing.T) {
		next := SelectYear(s, idx, 2019)
		assert.Equal(t, domain.StageAfter, next.SelectedStage)
		assert.True(t, next.Layers.Has(domain.StageAfter), "fallback stage becomes visible")
		assert.True(t, next.Layers.Has(domain.StageDuring), "other layers are untouched")
	})

	t.Run("absent year is a no-op", func(t *testing.T) {
		assert.Equal(t, s, SelectYear(s, idx, 2030))
	})

	t.Run("same year is a no-op", func(t *testing.T) {
		assert.Equal(t, s, SelectYear(s, idx, 2020))
	})

	t.Run("invariant: selected key is indexed", func(t *testing.T) {
		cur := s
		for _, y := range []int{2019, 2021, 2020, 2019, 1999, 2021} {
			cur = SelectYear(cur, idx, y)
			_, ok := idx.Lookup(cur.Key())
			require.True(t, ok, "after selecting %d", y)
		}
	})
}

func TestSelectPrimaryStage(t *testing.T) {
	idx := testIndex()
	s := initial(t)

	next := SelectPrimaryStage(s, idx, domain.StageAfter)
	assert.Equal(t, domain.StageAfter, next.SelectedStage)
	assert.Equal(t, s.Layers, next.Layers, "layers unchanged")

	assert.Equal(t, s, SelectPrimaryStage(s, idx, domain.StageComparative), "unindexed stage")
	assert.Equal(t, s, SelectPrimaryStage(s, idx, domain.StageUnknown), "invalid stage")
}

func TestPresentationMutations(t *testing.T) {
	s := initial(t)

	s2 := SetLayerVisible(s, domain.StageBefore, true)
	assert.Equal(t, []domain.Stage{domain.StageBefore, domain.StageDuring}, s2.Layers.List())
	s2 = SetLayerVisible(s2, domain.StageDuring, false)
	assert.Equal(t, []domain.Stage{domain.StageBefore}, s2.Layers.List())
	assert.Equal(t, s2, SetLayerVisible(s2, domain.Stage(42), true))

	assert.InDelta(t, 0, SetOpacity(s, -0.5).Opacity, 0)
	assert.InDelta(t, 1, SetOpacity(s, 1.5).Opacity, 0)
	assert.InDelta(t, 0.25, SetOpacity(s, 0.25).Opacity, 0)
	assert.Equal(t, s, SetOpacity(s, math.NaN()))

	assert.False(t, Toggle3D(s).Is3D)
	assert.Equal(t, s, Toggle3D(Toggle3D(s)))
	assert.False(t, ToggleBorder(s).BorderVisible)
	assert.False(t, ToggleLabels(s).LabelsVisible)

	assert.Equal(t, "mapbox://styles/mapbox/satellite-v9", SetMapStyle(s, "mapbox://styles/mapbox/satellite-v9").MapStyleID)
	assert.Equal(t, s, SetMapStyle(s, ""))
}

func TestReconcile(t *testing.T) {
	s := initial(t)
	s = SetOpacity(s, 0.3)

	t.Run("selection survives", func(t *testing.T) {
		next, ok := Reconcile(s, testIndex())
		require.True(t, ok)
		assert.Equal(t, s, next)
	})

	t.Run("stage vanished", func(t *testing.T) {
		idx := domain.NewIndex(rec(2020, domain.StageAfter), rec(2021, domain.StageDuring))
		next, ok := Reconcile(s, idx)
		require.True(t, ok)
		assert.Equal(t, domain.Key{Year: 2020, Stage: domain.StageAfter}, next.Key())
	})

	t.Run("year vanished keeps presentation", func(t *testing.T) {
		idx := domain.NewIndex(rec(2023, domain.StageDuring))
		next, ok := Reconcile(s, idx)
		require.True(t, ok)
		assert.Equal(t, 2023, next.SelectedYear)
		assert.InDelta(t, 0.3, next.Opacity, 0)
	})

	t.Run("empty index", func(t *testing.T) {
		_, ok := Reconcile(s, domain.NewIndex())
		assert.False(t, ok)
	})
}

func TestViewState_JSON(t *testing.T) {
	data, err := json.Marshal(ViewState{})
	require.NoError(t, err, "zero value must serialize")

	data, err = json.Marshal(initial(t))
	require.NoError(t, err)

	var decoded ViewState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, initial(t), decoded)
}

func TestMutation_Apply(t *testing.T) {
	idx := testIndex()
	s := initial(t)

	tests := []struct {
		name  string
		m     Mutation
		check func(t *testing.T, next ViewState)
	}{
		{"select year", SelectYearMutation(2021), func(t *testing.T, n ViewState) { assert.Equal(t, 2021, n.SelectedYear) }},
		{"select stage", SelectStageMutation(domain.StageBefore), func(t *testing.T, n ViewState) { assert.Equal(t, domain.StageBefore, n.SelectedStage) }},
		{"layer", SetLayerVisibleMutation(domain.StageAfter, true), func(t *testing.T, n ViewState) { assert.True(t, n.Layers.Has(domain.StageAfter)) }},
		{"opacity", SetOpacityMutation(0.9), func(t *testing.T, n ViewState) { assert.InDelta(t, 0.9, n.Opacity, 0) }},
		{"3d", Toggle3DMutation(), func(t *testing.T, n ViewState) { assert.False(t, n.Is3D) }},
		{"border", ToggleBorderMutation(), func(t *testing.T, n ViewState) { assert.False(t, n.BorderVisible) }},
		{"labels", ToggleLabelsMutation(), func(t *testing.T, n ViewState) { assert.False(t, n.LabelsVisible) }},
		{"style", SetMapStyleMutation("x"), func(t *testing.T, n ViewState) { assert.Equal(t, "x", n.MapStyleID) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Apply(s, idx, tt.m)
			require.NoError(t, err)
			tt.check(t, next)
		})
	}
}

func TestMutation_Invalid(t *testing.T) {
	s := initial(t)
	for _, m := range []Mutation{
		{Kind: "explode"},
		{Kind: KindSetOpacity},
		{Kind: KindSetLayerVisible, Stage: domain.StageBefore},
	} {
		next, err := Apply(s, testIndex(), m)
		require.ErrorIs(t, err, ErrInvalidMutation, m.Kind)
		assert.Equal(t, s, next)
	}
}

func TestMutation_JSON(t *testing.T) {
	var m Mutation
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"set_layer_visible","stage":"after","visible":false}`), &m))
	assert.Equal(t, SetLayerVisibleMutation(domain.StageAfter, false), m)
	assert.False(t, m.Selection())
	assert.True(t, SelectYearMutation(2020).Selection())
}

func TestStore(t *testing.T) {
	idx := testIndex()
	store := NewStore(initial(t), idx)

	var changes []Change
	unsubscribe := store.Subscribe(func(c Change) { changes = append(changes, c) })

	next, err := store.Apply(SetOpacityMutation(0.2))
	require.NoError(t, err)
	assert.Equal(t, next, store.Snapshot())
	require.Len(t, changes, 1)
	assert.Equal(t, domain.ReasonPresentation, changes[0].Reason)
	assert.InDelta(t, 0.6, changes[0].Prev.Opacity, 0)
	assert.InDelta(t, 0.2, changes[0].Next.Opacity, 0)

	_, err = store.Apply(SelectYearMutation(1999))
	require.NoError(t, err)
	assert.Len(t, changes, 1, "no-op mutations do not notify")

	_, err = store.Apply(Mutation{Kind: "bogus"})
	require.Error(t, err)
	assert.Len(t, changes, 1)

	store.Update(domain.ReasonTransition, func(s ViewState, idx domain.Index) ViewState {
		return SelectYear(s, idx, 2021)
	})
	require.Len(t, changes, 2)
	assert.Equal(t, domain.ReasonTransition, changes[1].Reason)

	newIdx := domain.NewIndex(rec(2021, domain.StageDuring))
	store.Reset(newIdx, store.Snapshot(), domain.ReasonRefresh)
	require.Len(t, changes, 3, "reset always notifies")
	assert.Equal(t, 1, store.Index().Len())
	cur, curIdx := store.Current()
	assert.Equal(t, store.Snapshot(), cur)
	assert.Equal(t, newIdx, curIdx)

	unsubscribe()
	store.Update(domain.ReasonPresentation, func(s ViewState, _ domain.Index) ViewState { return Toggle3D(s) })
	assert.Len(t, changes, 3)
}

func TestStore_ListenersInSubscriptionOrder(t *testing.T) {
	store := NewStore(initial(t), testIndex())
	var order []int
	for i := range 5 {
		store.Subscribe(func(Change) { order = append(order, i) })
	}
	_, err := store.Apply(Toggle3DMutation())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
