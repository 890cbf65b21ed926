// Package discovery builds the availability index by probing every catalog
// candidate against the dataset source.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/geometry"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
)

// Probe outcomes, used as the probes_total label and in Exclusion.Reason.
const (
	OutcomeFound       = "found"
	OutcomeUnavailable = "unavailable"
	OutcomeMalformed   = "malformed"
	OutcomeError       = "error"
	OutcomeInvalid     = "invalid"
)

// Config controls how discovery probes and what it keeps.
type Config struct {
	Region domain.Region
	// Concurrency caps in-flight probes. Zero or less means unbounded.
	Concurrency int
	// RetainGeometry keeps decoded geometry on each record. When false,
	// Geometry reloads it on demand.
	RetainGeometry bool
}

// Exclusion records why a candidate did not make it into the index.
type Exclusion struct {
	Key       domain.Key `json:"key"`
	SourceRef string     `json:"source_ref"`
	Reason    string     `json:"reason"`
}

// Result is the outcome of one discovery run.
type Result struct {
	Index      domain.Index
	Candidates int
	Excluded   []Exclusion
	StartedAt  time.Time
	Duration   time.Duration
}

// Service probes candidates through a Fetcher and a Resolver.
type Service struct {
	fetcher  domain.Fetcher
	geometry domain.Fetcher
	resolve  domain.Resolver
	cfg      Config
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option customizes a Service.
type Option func(*Service)

// Purger is implemented by geometry fetchers that cache payloads. Run purges
// it once the new index is built so Geometry serves what was just indexed.
type Purger interface {
	Purge()
}

// WithGeometryFetcher sets the fetcher used by Geometry, typically a
// source.CachedFetcher around the discovery fetcher. Discovery itself always
// goes through the uncached fetcher so a run sees the current source.
func WithGeometryFetcher(f domain.Fetcher) Option {
	return func(s *Service) { s.geometry = f }
}

// New creates a discovery service.
func New(fetcher domain.Fetcher, resolve domain.Resolver, cfg Config, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		fetcher:  fetcher,
		geometry: fetcher,
		resolve:  resolve,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Region returns the region metrics are computed against.
func (s *Service) Region() domain.Region {
	return s.cfg.Region
}

// Discover probes every candidate and returns the index of those that
// resolved to a decodable feature collection. It never fails: candidates
// that error are left out.
func (s *Service) Discover(ctx context.Context, candidates []domain.EventDescriptor) domain.Index {
	return s.Run(ctx, candidates).Index
}

// Run is Discover with the run report attached.
func (s *Service) Run(ctx context.Context, candidates []domain.EventDescriptor) Result {
	start := time.Now()
	startedAt := domain.Now()

	type outcome struct {
		record    domain.DatasetRecord
		exclusion Exclusion
		found     bool
	}
	outcomes := make([]outcome, len(candidates))

	var g errgroup.Group
	if s.cfg.Concurrency > 0 {
		g.SetLimit(s.cfg.Concurrency)
	}
	for i, d := range candidates {
		g.Go(func() error {
			rec, excl, ok := s.probe(ctx, d)
			outcomes[i] = outcome{record: rec, exclusion: excl, found: ok}
			return nil
		})
	}
	_ = g.Wait()

	records := make([]domain.DatasetRecord, 0, len(candidates))
	var excluded []Exclusion
	for _, o := range outcomes {
		if o.found {
			records = append(records, o.record)
		} else {
			excluded = append(excluded, o.exclusion)
		}
	}

	idx := domain.NewIndex(records...)
	if p, ok := s.geometry.(Purger); ok {
		p.Purge()
	}
	elapsed := time.Since(start)

	s.metrics.DiscoveryRuns.Inc()
	s.metrics.DiscoveryDuration.Observe(elapsed.Seconds())
	s.metrics.IndexDatasets.Set(float64(idx.Len()))
	s.logger.Info("discovery complete",
		"candidates", len(candidates),
		"datasets", idx.Len(),
		"excluded", len(excluded),
		"duration", elapsed,
	)

	return Result{
		Index:      idx,
		Candidates: len(candidates),
		Excluded:   excluded,
		StartedAt:  startedAt,
		Duration:   elapsed,
	}
}

func (s *Service) probe(ctx context.Context, d domain.EventDescriptor) (domain.DatasetRecord, Exclusion, bool) {
	if d.Year <= 0 || !d.Stage.Valid() {
		s.logger.Debug("skipping invalid candidate", "year", d.Year, "stage", d.Stage)
		s.metrics.ProbesTotal.WithLabelValues(OutcomeInvalid).Inc()
		return domain.DatasetRecord{}, Exclusion{Key: d.Key(), Reason: OutcomeInvalid}, false
	}

	ref := s.resolve(d.Stage, d.Year)
	exclude := func(reason string, err error) (domain.DatasetRecord, Exclusion, bool) {
		s.metrics.ProbesTotal.WithLabelValues(reason).Inc()
		s.logger.Debug("dataset excluded",
			"year", d.Year,
			"stage", d.Stage,
			"source_ref", ref,
			"reason", reason,
			"error", err,
		)
		return domain.DatasetRecord{}, Exclusion{Key: d.Key(), SourceRef: ref, Reason: reason}, false
	}

	data, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			return exclude(OutcomeUnavailable, err)
		}
		return exclude(OutcomeError, err)
	}

	fc, err := Decode(data)
	if err != nil {
		return exclude(OutcomeMalformed, err)
	}

	m := geometry.Compute(fc, s.cfg.Region)
	rec := domain.DatasetRecord{
		Descriptor: d,
		SourceRef:  ref,
		Metrics:    m,
		Severity:   domain.SeverityOf(m.AreaKm2),
	}
	if s.cfg.RetainGeometry {
		rec.Geometry = fc
	}
	s.metrics.ProbesTotal.WithLabelValues(OutcomeFound).Inc()
	return rec, Exclusion{}, true
}

// Geometry returns the record's feature collection, loading it through the
// geometry fetcher when discovery did not retain it.
func (s *Service) Geometry(ctx context.Context, rec domain.DatasetRecord) (*geojson.FeatureCollection, error) {
	if rec.Geometry != nil {
		return rec.Geometry, nil
	}
	data, err := s.geometry.Fetch(ctx, rec.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("load geometry %s: %w", rec.Descriptor.ID(), err)
	}
	fc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load geometry %s: %w", rec.Descriptor.ID(), err)
	}
	return fc, nil
}

// Decode parses a GeoJSON FeatureCollection. Errors wrap domain.ErrMalformed.
func Decode(data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return fc, nil
}
