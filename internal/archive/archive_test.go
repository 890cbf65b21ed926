package archive_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-extent-service/internal/archive"
	"github.com/couchcryptid/flood-extent-service/internal/discovery"
	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/geometry"
)

var tabasco = domain.Region{Name: "Tabasco", ReferenceAreaKm2: 24738, MeanDepthM: 0.5}

// testDB opens a fresh archive in t.TempDir(), closed when the test ends.
func testDB(t *testing.T) *archive.Store {
	t.Helper()
	s, err := archive.Open(filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func result(areas ...float64) discovery.Result {
	records := make([]domain.DatasetRecord, 0, len(areas))
	for i, a := range areas {
		m := geometry.FromArea(a, 2, tabasco)
		records = append(records, domain.DatasetRecord{
			Descriptor: domain.EventDescriptor{Year: 2019 + i, Stage: domain.StageDuring, Label: "label"},
			SourceRef:  "ref",
			Metrics:    m,
			Severity:   domain.SeverityOf(a),
		})
	}
	return discovery.Result{
		Index:      domain.NewIndex(records...),
		Candidates: len(areas) + 1,
		Excluded: []discovery.Exclusion{
			{Key: domain.Key{Year: 2024, Stage: domain.StageAfter}, SourceRef: "missing", Reason: discovery.OutcomeUnavailable},
		},
		StartedAt: time.Date(2020, time.November, 2, 10, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
	}
}

func TestRecordAndGet(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.Record(context.Background(), result(120.5, 80)))

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got, err := s.Get(runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Candidates)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.True(t, got.StartedAt.Equal(time.Date(2020, time.November, 2, 10, 0, 0, 0, time.UTC)))

	require.Len(t, got.Datasets, 2)
	assert.Equal(t, domain.Key{Year: 2019, Stage: domain.StageDuring}, got.Datasets[0].Key)
	assert.InDelta(t, 120.5, got.Datasets[0].Metrics.AreaKm2, 1e-9)
	assert.Equal(t, domain.SeverityMinor, got.Datasets[0].Severity)

	require.Len(t, got.Excluded, 1)
	assert.Equal(t, discovery.OutcomeUnavailable, got.Excluded[0].Reason)
	assert.Equal(t, domain.StageAfter, got.Excluded[0].Key.Stage)
}

func TestList_NewestFirst(t *testing.T) {
	s := testDB(t)
	for _, a := range []float64{10, 20, 30} {
		require.NoError(t, s.Record(context.Background(), result(a)))
	}

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.InDelta(t, 30, runs[0].Datasets[0].Metrics.AreaKm2, 1e-9)
	assert.InDelta(t, 10, runs[2].Datasets[0].Metrics.AreaKm2, 1e-9)

	runs, err = s.List(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestGet_NotFound(t *testing.T) {
	s := testDB(t)
	_, err := s.Get("nope")
	require.ErrorIs(t, err, archive.ErrNotFound)
}

func TestSave_RequiresID(t *testing.T) {
	s := testDB(t)
	require.Error(t, s.Save(archive.Run{}))
}

func TestList_Empty(t *testing.T) {
	runs, err := testDB(t).List(5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := archive.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), result(5)))
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Close())

	s, err = archive.Open(path)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
