package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
)

// DirFetcher implements domain.Fetcher over a local directory.
type DirFetcher struct {
	root    string
	metrics *observability.Metrics
}

// NewDirFetcher serves references relative to root.
func NewDirFetcher(root string, metrics *observability.Metrics) *DirFetcher {
	return &DirFetcher{root: root, metrics: metrics}
}

// Fetch reads ref under the root. References that escape the root are
// reported as unavailable.
func (f *DirFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := f.read(ref)
	f.metrics.SourceDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		f.metrics.SourceRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrUnavailable):
		f.metrics.SourceRequests.WithLabelValues("not_found").Inc()
	default:
		f.metrics.SourceRequests.WithLabelValues("error").Inc()
	}
	return data, err
}

func (f *DirFetcher) read(ref string) ([]byte, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(ref, "/"))
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%s outside data root: %w", ref, domain.ErrUnavailable)
	}

	data, err := os.ReadFile(filepath.Join(f.root, rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ref, domain.ErrUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}
