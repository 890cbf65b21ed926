package source

import (
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
)

// New picks the fetcher for a DATA_SOURCE value: http(s) URLs are served
// by HTTPFetcher, anything else is treated as a directory.
func New(dataSource string, timeout time.Duration, requestsPerSecond float64, metrics *observability.Metrics, logger *slog.Logger) (domain.Fetcher, error) {
	if strings.HasPrefix(dataSource, "http://") || strings.HasPrefix(dataSource, "https://") {
		return NewHTTPFetcher(dataSource, timeout, requestsPerSecond, metrics, logger)
	}
	return NewDirFetcher(strings.TrimPrefix(dataSource, "file://"), metrics), nil
}
