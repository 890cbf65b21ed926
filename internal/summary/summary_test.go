package summary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
)

func TestParse_CommaTable(t *testing.T) {
	input := `year,mu,sigma,k_value,threshold,diff_min,diff_max,imgs_before,imgs_after
2019,-18.2,2.1,1.5,-21.35,-3.2,4.8,12,9
2020,-17.9,2.4,1.5,-21.5,-4.1,5.5,14,11
`
	table, stats, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, Stats{Parsed: 2}, stats)
	assert.Equal(t, []int{2019, 2020}, table.Years())

	row, ok := table.Lookup(2020)
	require.True(t, ok)
	assert.Equal(t, Row{
		Year: 2020, Mu: -17.9, Sigma: 2.4, KValue: 1.5, Threshold: -21.5,
		DiffMin: -4.1, DiffMax: 5.5, ImagesBefore: 14, ImagesAfter: 11,
	}, row)
}

func TestParse_HeaderOrderAndAliases(t *testing.T) {
	input := "Images After\tK\tYear\tn-before\tExtra\n" +
		"7\t1.2\t2021\t3\tignored\n"

	table, _, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	row, ok := table.Lookup(2021)
	require.True(t, ok)
	assert.InDelta(t, 7, row.ImagesAfter, 0)
	assert.InDelta(t, 1.2, row.KValue, 0)
	assert.InDelta(t, 3, row.ImagesBefore, 0)
	assert.True(t, math.IsNaN(row.Mu))
}

func TestParse_SemicolonWithDecimalComma(t *testing.T) {
	input := "\ufeffaño;mu;sigma\n2022;-17,5;2,25\n"

	table, _, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	row, ok := table.Lookup(2022)
	require.True(t, ok)
	assert.InDelta(t, -17.5, row.Mu, 1e-12)
	assert.InDelta(t, 2.25, row.Sigma, 1e-12)
}

func TestParse_UnknownValuesAreNaN(t *testing.T) {
	input := `year,mu,sigma,threshold
2019,,abc,-20
2020,-18
`
	table, stats, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	r19 := table[2019]
	assert.True(t, math.IsNaN(r19.Mu), "empty field")
	assert.True(t, math.IsNaN(r19.Sigma), "unparsable field")
	assert.InDelta(t, -20, r19.Threshold, 0)

	r20 := table[2020]
	assert.InDelta(t, -18, r20.Mu, 0)
	assert.True(t, math.IsNaN(r20.Threshold), "short row")

	// 2019: mu, sigma + 5 absent columns; 2020: sigma, threshold + 5 absent columns.
	assert.Equal(t, 14, stats.UnknownFields)
}

func TestParse_SkipsRowsWithoutYear(t *testing.T) {
	input := `year,mu
n/a,1
2020,2

2020.5,3
2021,4
`
	table, stats, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []int{2020, 2021}, table.Years())
	assert.Equal(t, 2, stats.Skipped)
}

func TestParse_Errors(t *testing.T) {
	_, _, err := Parse(strings.NewReader("\n\n"))
	require.Error(t, err)

	_, _, err = Parse(strings.NewReader("mu,sigma\n1,2\n"))
	require.ErrorIs(t, err, errNoYearColumn)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "N/A", Format(math.NaN(), 2))
	assert.Equal(t, "-21.35", Format(-21.35, 2))
	assert.Equal(t, "12", Format(12, 0))
	assert.True(t, Known(0))
	assert.False(t, Known(math.NaN()))
}

// --- Loader ---

type stubFetcher struct {
	data []byte
	err  error
}

func (s stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	return s.data, s.err
}

func testLoader(f domain.Fetcher) (*Loader, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return NewLoader(f, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics), metrics
}

func TestLoader_Load(t *testing.T) {
	l, metrics := testLoader(stubFetcher{data: []byte("year,mu\n2020,1\nbad,2\n")})

	table := l.Load(context.Background(), "resumen.csv")
	assert.Len(t, table, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SummaryRows.WithLabelValues("parsed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SummaryRows.WithLabelValues("skipped")), 0)
}

func TestLoader_FailuresYieldEmptyTable(t *testing.T) {
	tests := []struct {
		name    string
		fetcher domain.Fetcher
		ref     string
	}{
		{"no ref", stubFetcher{data: []byte("year\n2020\n")}, ""},
		{"fetch error", stubFetcher{err: errors.New("timeout")}, "resumen.csv"},
		{"unavailable", stubFetcher{err: domain.ErrUnavailable}, "resumen.csv"},
		{"unreadable", stubFetcher{data: []byte("mu\n1\n")}, "resumen.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := testLoader(tt.fetcher)
			table := l.Load(context.Background(), tt.ref)
			require.NotNil(t, table)
			assert.Empty(t, table)
		})
	}
}
