package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		name     string
		area     float64
		expected Severity
	}{
		{"zero", 0, SeverityNone},
		{"negative", -3, SeverityNone},
		{"NaN", math.NaN(), SeverityNone},
		{"smallest positive", 0.0001, SeverityMinor},
		{"minor upper bound", 500, SeverityMinor},
		{"just above minor", 500.01, SeverityModerate},
		{"moderate upper bound", 1500, SeverityModerate},
		{"just above moderate", 1500.5, SeverityMajor},
		{"major upper bound", 3000, SeverityMajor},
		{"catastrophic", 3000.1, SeverityCatastrophic},
		{"huge", 1e9, SeverityCatastrophic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SeverityOf(tt.area))
		})
	}
}

func TestSeverityOf_OrderPreserving(t *testing.T) {
	prev := SeverityOf(0)
	for a := 0.0; a <= 5000; a += 12.5 {
		s := SeverityOf(a)
		assert.GreaterOrEqual(t, s, prev, "severity decreased at %v km²", a)
		prev = s
	}
}

func TestSeverity_LabelsAndColors(t *testing.T) {
	assert.Equal(t, "None", SeverityNone.String())
	assert.Equal(t, "Minor", SeverityMinor.String())
	assert.Equal(t, "Catastrophic", SeverityCatastrophic.String())
	assert.Equal(t, "#22c55e", SeverityMinor.Color())
	assert.Equal(t, SeverityNone.Color(), Severity(42).Color())

	data, err := json.Marshal(SeverityModerate)
	require.NoError(t, err)
	assert.JSONEq(t, `"moderate"`, string(data))

	var s Severity
	require.NoError(t, json.Unmarshal([]byte(`"Major"`), &s))
	assert.Equal(t, SeverityMajor, s)
}

func TestParseStage(t *testing.T) {
	tests := []struct {
		in       string
		expected Stage
		wantErr  bool
	}{
		{"before", StageBefore, false},
		{"During", StageDuring, false},
		{" AFTER ", StageAfter, false},
		{"comparative", StageComparative, false},
		{"durante", StageUnknown, true},
		{"", StageUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStage(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestStage_JSON(t *testing.T) {
	data, err := json.Marshal(Key{Year: 2020, Stage: StageDuring})
	require.NoError(t, err)
	assert.JSONEq(t, `{"year":2020,"stage":"during"}`, string(data))

	_, err = json.Marshal(StageUnknown)
	require.Error(t, err)
}

func TestStageSet(t *testing.T) {
	set := NewStageSet(StageAfter, StageBefore, StageUnknown)

	assert.True(t, set.Has(StageBefore))
	assert.True(t, set.Has(StageAfter))
	assert.False(t, set.Has(StageDuring))
	assert.False(t, set.Has(StageUnknown))
	assert.Equal(t, []Stage{StageBefore, StageAfter}, set.List())

	set = set.With(StageDuring).Without(StageBefore)
	assert.Equal(t, []Stage{StageDuring, StageAfter}, set.List())
	assert.Equal(t, set, set.With(Stage(99)))

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["during","after"]`, string(data))

	var decoded StageSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, set, decoded)
}

func TestIndex(t *testing.T) {
	idx := NewIndex(
		testRecord(2021, StageDuring),
		testRecord(2020, StageAfter),
		testRecord(2020, StageDuring),
		testRecord(2020, StageBefore),
	)

	assert.Equal(t, 4, idx.Len())
	assert.False(t, idx.Empty())
	assert.True(t, idx.Has(2020))
	assert.False(t, idx.Has(2019))
	assert.Equal(t, []int{2020, 2021}, idx.Years())
	assert.Equal(t, []Key{
		{2020, StageBefore}, {2020, StageDuring}, {2020, StageAfter}, {2021, StageDuring},
	}, idx.Keys())

	year := idx.ForYear(2020)
	require.Len(t, year, 3)
	assert.Equal(t, StageBefore, year[0].Descriptor.Stage)
	assert.Equal(t, StageAfter, year[2].Descriptor.Stage)

	_, ok := idx.Lookup(Key{Year: 2021, Stage: StageAfter})
	assert.False(t, ok)

	assert.True(t, NewIndex().Empty())
	assert.Empty(t, NewIndex().Years())
}

func TestDescriptorID(t *testing.T) {
	d := EventDescriptor{Year: 2020, Stage: StageDuring}
	assert.Equal(t, "2020-During", d.ID())
}

func TestNow_UsesInjectedClock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2020, time.November, 2, 10, 0, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, time.Date(2020, time.November, 2, 10, 0, 0, 0, time.UTC), Now())
	fake.Advance(time.Hour)
	assert.Equal(t, 11, Now().Hour())
}

func testRecord(year int, stage Stage) DatasetRecord {
	return DatasetRecord{Descriptor: EventDescriptor{Year: year, Stage: stage}}
}
