// Package app wires configuration into the discovery, summary and rendering
// components shared by the daemon and the CLI.
package app

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/flood-extent-service/internal/adapter/source"
	"github.com/couchcryptid/flood-extent-service/internal/archive"
	"github.com/couchcryptid/flood-extent-service/internal/catalog"
	"github.com/couchcryptid/flood-extent-service/internal/config"
	"github.com/couchcryptid/flood-extent-service/internal/discovery"
	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
	"github.com/couchcryptid/flood-extent-service/internal/session"
	"github.com/couchcryptid/flood-extent-service/internal/state"
	"github.com/couchcryptid/flood-extent-service/internal/summary"
	"github.com/couchcryptid/flood-extent-service/internal/viewsync"
)

// Deps holds the components built from one Config.
type Deps struct {
	Config     *config.Config
	Candidates []domain.EventDescriptor
	Discovery  *discovery.Service
	Summaries  *summary.Loader
	Controller *viewsync.Controller
}

// New builds Deps. Discovery and the summary table read the raw fetcher;
// on-demand geometry goes through an LRU cache that each discovery run purges.
func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Deps, error) {
	fetcher, err := source.New(cfg.DataSource, cfg.SourceTimeout, cfg.SourceRate, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("data source: %w", err)
	}
	cached := source.NewCachedFetcher(fetcher, cfg.SourceCacheSize, metrics)

	candidates, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	resolver := source.NewResolver(cfg.SourcePattern, cfg.StageTokens, cfg.FoldAccents)
	disc := discovery.New(fetcher, resolver.Func(), discovery.Config{
		Region:         cfg.Region,
		Concurrency:    cfg.DiscoveryConcurrency,
		RetainGeometry: cfg.RetainGeometry,
	}, logger, metrics, discovery.WithGeometryFetcher(cached))

	return &Deps{
		Config:     cfg,
		Candidates: candidates,
		Discovery:  disc,
		Summaries:  summary.NewLoader(fetcher, logger, metrics),
		Controller: viewsync.New(viewsync.Config{
			Locale:      cfg.Locale,
			BoundaryRef: cfg.BoundaryRef,
		}),
	}, nil
}

// Preferences seeds the initial view from configuration.
func (d *Deps) Preferences() state.Preferences {
	p := state.DefaultPreferences()
	p.Year = d.Config.DefaultYear
	p.Stage = d.Config.DefaultStage
	if d.Config.MapStyle != "" {
		p.MapStyleID = d.Config.MapStyle
	}
	return p
}

// SessionConfig returns the static setup of a session.
func (d *Deps) SessionConfig() session.Config {
	return session.Config{
		Candidates:  d.Candidates,
		Preferences: d.Preferences(),
		SummaryRef:  d.Config.SummaryRef,
		Fade:        d.Config.TransitionFade,
	}
}

// OpenArchive opens the run archive, or returns nil when ARCHIVE_PATH is unset.
func (d *Deps) OpenArchive() (*archive.Store, error) {
	if d.Config.ArchivePath == "" {
		return nil, nil
	}
	return archive.Open(d.Config.ArchivePath)
}
