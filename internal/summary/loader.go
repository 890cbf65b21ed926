package summary

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
)

// Loader fetches and parses the summary table.
type Loader struct {
	fetcher domain.Fetcher
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLoader creates a Loader reading through fetcher.
func NewLoader(fetcher domain.Fetcher, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{fetcher: fetcher, logger: logger, metrics: metrics}
}

// Load returns the table at ref. Any failure yields an empty table; the
// summary is supplementary and never blocks the view.
func (l *Loader) Load(ctx context.Context, ref string) Table {
	if ref == "" {
		return Table{}
	}

	data, err := l.fetcher.Fetch(ctx, ref)
	if err != nil {
		l.logger.Warn("summary table unavailable", "source_ref", ref, "error", err)
		return Table{}
	}

	table, stats, err := ParseBytes(data)
	if err != nil {
		l.logger.Warn("summary table unreadable", "source_ref", ref, "error", err)
		return Table{}
	}

	l.metrics.SummaryRows.WithLabelValues("parsed").Add(float64(stats.Parsed))
	l.metrics.SummaryRows.WithLabelValues("skipped").Add(float64(stats.Skipped))
	l.metrics.SummaryUnknownFields.Add(float64(stats.UnknownFields))
	if stats.Skipped > 0 {
		l.logger.Warn("summary rows skipped", "source_ref", ref, "skipped", stats.Skipped)
	}
	l.logger.Info("summary table loaded", "source_ref", ref, "years", len(table))
	return table
}
