package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-extent-service/internal/archive"
	"github.com/couchcryptid/flood-extent-service/internal/discovery"
	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

// run executes floodctl with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// dataDir writes During and After fixtures for the built-in catalog.
func dataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_SOURCE", dir)
	_, err := run(t, "fixtures", "--out", dir, "--stage", "during", "--stage", "after", "--area", "100", "--polygons", "2")
	require.NoError(t, err)
	return dir
}

func TestFixturesAndDiscover(t *testing.T) {
	dir := dataDir(t)

	_, err := os.Stat(filepath.Join(dir, "Agua_Durante_Tabasco_2020.geojson"))
	require.NoError(t, err)

	out, err := run(t, "discover", "-o", "json")
	require.NoError(t, err)

	var got discoverOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, 10, got.Candidates)
	assert.Len(t, got.Datasets, 8, "six During and two After entries")
	assert.Len(t, got.Excluded, 2, "the Before entries were not written")
	for _, e := range got.Excluded {
		assert.Equal(t, discovery.OutcomeUnavailable, e.Reason)
	}

	byID := map[string]datasetRow{}
	for _, d := range got.Datasets {
		byID[d.Key.String()] = d
	}
	during := byID["2020-During"]
	assert.InDelta(t, 100, during.Metrics.AreaKm2, 0.5)
	assert.Equal(t, 2, during.Metrics.PolygonCount)
	assert.Equal(t, domain.SeverityMinor, during.Severity)
	assert.InDelta(t, 125, byID["2021-During"].Metrics.AreaKm2, 0.5)
	assert.InDelta(t, 60, byID["2020-After"].Metrics.AreaKm2, 0.5)
}

func TestDiscover_Table(t *testing.T) {
	dataDir(t)

	out, err := run(t, "discover", "--excluded")
	require.NoError(t, err)
	assert.Contains(t, out, "2020-During")
	assert.Contains(t, out, "Oct-Nov 2020")
	assert.Contains(t, out, "8 of 10 candidates indexed")
	assert.Contains(t, out, "unavailable")
}

func TestDiscover_Empty(t *testing.T) {
	t.Setenv("DATA_SOURCE", t.TempDir())

	out, err := run(t, "discover")
	require.NoError(t, err)
	assert.Contains(t, out, "No datasets found among 10 candidates")
}

func TestRender(t *testing.T) {
	dataDir(t)

	out, err := run(t, "render", "-o", "json")
	require.NoError(t, err)
	var cmds []domain.Command
	require.NoError(t, json.Unmarshal([]byte(out), &cmds))
	assert.NotEmpty(t, cmds)
	assert.Contains(t, out, "/api/datasets/2020/during/geometry")

	out, err = run(t, "render", "--year", "2021", "--2d")
	require.NoError(t, err)
	assert.Contains(t, out, "for 2021-During")
	assert.Contains(t, out, "controls.toggle3d")

	_, err = run(t, "render", "--year", "2030")
	require.ErrorContains(t, err, "year 2030 is not indexed")

	out, err = run(t, "render", "--year", "2030", "--unchecked")
	require.NoError(t, err)
	assert.Contains(t, out, "2030 (not indexed)")
	assert.Contains(t, out, "info.nodata")

	_, err = run(t, "render", "--stage", "someday")
	require.Error(t, err)
}

func TestRender_NoData(t *testing.T) {
	t.Setenv("DATA_SOURCE", t.TempDir())

	out, err := run(t, "render")
	require.NoError(t, err)
	assert.Contains(t, out, "5 commands for the no-data state")
}

func TestValidate(t *testing.T) {
	dir := dataDir(t)

	out, err := run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS  sources")
	assert.Contains(t, out, "PASS  index")

	out, err = run(t, "validate", "--strict")
	require.EqualError(t, err, "validation failed")
	assert.Contains(t, out, "FAIL  sources")
	assert.Contains(t, out, "2019-Before (Agua_Antes_Tabasco_2019.geojson): unavailable")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Agua_Antes_Tabasco_2019.geojson"), []byte("{not json"), 0o644))
	out, err = run(t, "validate")
	require.Error(t, err)
	assert.Contains(t, out, "malformed")
}

func TestValidate_EmptySource(t *testing.T) {
	t.Setenv("DATA_SOURCE", t.TempDir())

	out, err := run(t, "validate")
	require.Error(t, err)
	assert.Contains(t, out, "FAIL  index")
}

func TestSummary(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_SOURCE", dir)
	csv := "year,mu,sigma,k_value,threshold,diff_min,diff_max,imgs_before,imgs_after\n" +
		"2020,-17.9,2.4,1.5,-21.5,-4.1,5.5,14,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resumen.csv"), []byte(csv), 0o644))

	out, err := run(t, "summary", "--summary", "resumen.csv")
	require.NoError(t, err)
	assert.Contains(t, out, "-17.90")
	assert.Contains(t, out, "N/A")

	out, err = run(t, "summary", "--summary", "resumen.csv", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"year":2020,"mu":-17.9,"sigma":2.4,"k_value":1.5,"threshold":-21.5,"diff_min":-4.1,"diff_max":5.5,"imgs_before":14,"imgs_after":null}]`, out)

	_, err = run(t, "summary")
	require.ErrorContains(t, err, "no summary table configured")
}

func TestArchive(t *testing.T) {
	dataDir(t)
	path := filepath.Join(t.TempDir(), "archive.db")

	out, err := run(t, "archive", "list", "--archive", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No discovery runs archived.")

	out, err = run(t, "archive", "record", "--archive", path)
	require.NoError(t, err)
	assert.Contains(t, out, "8 of 10 candidates indexed")

	out, err = run(t, "archive", "list", "--archive", path, "-o", "json")
	require.NoError(t, err)
	var runs []archive.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Len(t, runs[0].Datasets, 8)

	out, err = run(t, "archive", "show", runs[0].ID, "--archive", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2020-During")
	assert.Contains(t, out, "Oct-Nov 2020")

	_, err = run(t, "archive", "show", "missing", "--archive", path)
	require.ErrorIs(t, err, archive.ErrNotFound)
}

func TestArchive_NotConfigured(t *testing.T) {
	t.Setenv("ARCHIVE_PATH", "")
	_, err := run(t, "archive", "list")
	require.ErrorContains(t, err, "no archive configured")
}

func TestUnknownFormat(t *testing.T) {
	dataDir(t)
	_, err := run(t, "discover", "-o", "yaml")
	require.ErrorContains(t, err, `unknown format "yaml"`)
}

func TestFixtureArea(t *testing.T) {
	assert.InDelta(t, 100, fixtureArea(domain.Key{Year: 2020, Stage: domain.StageDuring}, 100), 1e-9)
	assert.InDelta(t, 25*1.25, fixtureArea(domain.Key{Year: 2021, Stage: domain.StageBefore}, 100), 1e-9)

	fc := fixtureCollection(90, 3)
	require.Len(t, fc.Features, 3)
	assert.True(t, strings.HasPrefix(fc.Features[0].Geometry.GeoJSONType(), "Polygon"))
}
