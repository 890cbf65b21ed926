// Package session runs one operator session: it owns the availability index,
// the view state, the transition guard, and the publication of command
// batches to renderers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flood-extent-service/internal/discovery"
	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
	"github.com/couchcryptid/flood-extent-service/internal/state"
	"github.com/couchcryptid/flood-extent-service/internal/summary"
	"github.com/couchcryptid/flood-extent-service/internal/transition"
	"github.com/couchcryptid/flood-extent-service/internal/viewsync"
)

var (
	ErrNotStarted     = errors.New("session not started")
	ErrAlreadyStarted = errors.New("session already started")
)

// Discoverer builds the availability index and loads geometry on demand.
type Discoverer interface {
	Run(ctx context.Context, candidates []domain.EventDescriptor) discovery.Result
	Geometry(ctx context.Context, rec domain.DatasetRecord) (*geojson.FeatureCollection, error)
}

// SummaryLoader loads the per-year statistics table.
type SummaryLoader interface {
	Load(ctx context.Context, ref string) summary.Table
}

// Recorder persists discovery run reports.
type Recorder interface {
	Record(ctx context.Context, res discovery.Result) error
}

// Config is the static setup of a session.
type Config struct {
	Candidates  []domain.EventDescriptor
	Preferences state.Preferences
	SummaryRef  string
	// Fade is waited before a selection change loads its geometry.
	Fade time.Duration
}

// Option customizes a Session.
type Option func(*Session)

// WithRecorder archives every discovery run.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithClock sets the clock the transition fade is measured on.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// Session serializes mutations and refreshes. Lock order is session, then
// guard, then store; the store notifies the publishing listener with its own
// lock held, so batches leave in state order. Sinks that do network I/O
// should be wrapped in an AsyncSink so reads never wait on them.
type Session struct {
	cfg        Config
	discoverer Discoverer
	summaries  SummaryLoader
	sink       CommandSink
	recorder   Recorder
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	controller atomic.Pointer[viewsync.Controller]
	store      *state.Store
	guard      *transition.Guard

	mu      sync.Mutex
	ctx     context.Context
	started atomic.Bool
	noData  atomic.Bool
	lastRun atomic.Pointer[discovery.Result]

	pubMu sync.Mutex
	seq   uint64
}

// New creates a session. Nothing is discovered until Start.
func New(d Discoverer, summaries SummaryLoader, controller *viewsync.Controller, sink CommandSink, cfg Config, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Session {
	s := &Session{
		cfg:        cfg,
		discoverer: d,
		summaries:  summaries,
		sink:       sink,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
		metrics:    metrics,
		ctx:        context.Background(),
		store:      state.NewStore(state.ViewState{}, domain.NewIndex()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.controller.Store(controller)
	s.guard = transition.New(s.clock, cfg.Fade, s.loadTarget, s.commitTarget, logger, metrics)
	s.store.Subscribe(s.onChange)
	return s
}

// Start runs the first discovery and paints the initial state. It returns
// domain.ErrNoData, after publishing the no-data batch, when nothing was found.
// ctx also bounds transitions started later, so it should live as long as the
// session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return ErrAlreadyStarted
	}
	s.ctx = ctx

	idx := s.discover(ctx)
	s.started.Store(true)

	initial, ok := state.Initial(idx, s.cfg.Preferences)
	if !ok {
		s.enterNoData()
		return domain.ErrNoData
	}
	s.setNoData(false)
	s.store.Reset(idx, initial, domain.ReasonInitial)
	s.logger.Info("session started",
		"datasets", idx.Len(),
		"year", initial.SelectedYear,
		"stage", initial.SelectedStage,
	)
	return nil
}

// Apply runs a mutation. Presentation changes take effect immediately.
// Selection changes start a transition and return its target; the visible
// state follows once the transition commits.
func (s *Session) Apply(_ context.Context, m state.Mutation) (state.ViewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		s.countMutation(m, "rejected")
		return state.ViewState{}, err
	}
	if err := m.Validate(); err != nil {
		s.countMutation(m, "rejected")
		return s.store.Snapshot(), err
	}

	if !m.Selection() {
		next, err := s.store.Apply(m)
		if err != nil {
			s.countMutation(m, "rejected")
			return next, err
		}
		s.countMutation(m, "applied")
		return next, nil
	}

	visible, idx := s.store.Current()
	base := visible
	pending, inFlight := s.guard.Pending()
	if inFlight {
		base = pending
	}

	target, err := state.Apply(base, idx, m)
	if err != nil {
		s.countMutation(m, "rejected")
		return base, err
	}
	if target == base {
		return base, nil
	}

	s.countMutation(m, "applied")
	s.guard.RequestTransition(s.ctx, target)
	return target, nil
}

// Refresh rediscovers the index. The selection survives when it is still
// indexed; a refresh that finds nothing enters the no-data state.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return ErrNotStarted
	}
	s.guard.Cancel()

	idx := s.discover(ctx)
	if idx.Empty() {
		s.enterNoData()
		return domain.ErrNoData
	}

	var next state.ViewState
	if s.noData.Load() {
		next, _ = state.Initial(idx, s.cfg.Preferences)
	} else {
		next, _ = state.Reconcile(s.store.Snapshot(), idx)
	}
	s.setNoData(false)
	s.store.Reset(idx, next, domain.ReasonRefresh)
	return nil
}

// CheckReadiness reports an error until the session has started with data.
func (s *Session) CheckReadiness(_ context.Context) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	if s.noData.Load() {
		return domain.ErrNoData
	}
	return nil
}

// Snapshot returns the visible state.
func (s *Session) Snapshot() state.ViewState {
	return s.store.Snapshot()
}

// Pending returns the target of the in-flight transition, if any.
func (s *Session) Pending() (state.ViewState, bool) {
	return s.guard.Pending()
}

// Index returns the current availability index.
func (s *Session) Index() domain.Index {
	return s.store.Index()
}

// LastRun returns the report of the most recent discovery run.
func (s *Session) LastRun() (discovery.Result, bool) {
	r := s.lastRun.Load()
	if r == nil {
		return discovery.Result{}, false
	}
	return *r, true
}

// Summary returns the statistics table the controller renders from.
func (s *Session) Summary() summary.Table {
	return s.controller.Load().Summary()
}

// Render returns the full command list for the visible state. The no-data
// decision is taken from the same snapshot as the state, so a concurrent
// refresh never yields a mix of both.
func (s *Session) Render() []domain.Command {
	c := s.controller.Load()
	v, idx := s.store.Current()
	if idx.Empty() {
		return c.NoData()
	}
	return c.Render(v, idx)
}

// Geometry returns the feature collection of an indexed dataset.
func (s *Session) Geometry(ctx context.Context, key domain.Key) (*geojson.FeatureCollection, error) {
	rec, ok := s.store.Index().Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrUnavailable)
	}
	return s.discoverer.Geometry(ctx, rec)
}

// Wait blocks until in-flight transitions have finished.
func (s *Session) Wait() {
	s.guard.Wait()
}

// Close discards any pending transition and waits for its goroutine.
func (s *Session) Close() {
	s.guard.Cancel()
	s.guard.Wait()
}

func (s *Session) usable() error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	if s.noData.Load() {
		return domain.ErrNoData
	}
	return nil
}

// discover runs discovery and the summary load concurrently and installs a
// controller bound to the new summary table.
func (s *Session) discover(ctx context.Context) domain.Index {
	var (
		res   discovery.Result
		table summary.Table
		g     errgroup.Group
	)
	g.Go(func() error {
		res = s.discoverer.Run(ctx, s.cfg.Candidates)
		return nil
	})
	g.Go(func() error {
		table = s.summaries.Load(ctx, s.cfg.SummaryRef)
		return nil
	})
	_ = g.Wait()

	s.lastRun.Store(&res)
	s.controller.Store(s.controller.Load().WithSummary(table))

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, res); err != nil {
			s.logger.Warn("archive discovery run failed", "error", err)
		}
	}
	return res.Index
}

func (s *Session) enterNoData() {
	s.setNoData(true)
	s.store.Reset(domain.NewIndex(), state.ViewState{}, domain.ReasonNoData)
	s.logger.Warn("no flood datasets found", "candidates", len(s.cfg.Candidates))
}

func (s *Session) setNoData(v bool) {
	s.noData.Store(v)
	if v {
		s.metrics.NoData.Set(1)
		s.metrics.EngineReady.Set(0)
		return
	}
	s.metrics.NoData.Set(0)
	s.metrics.EngineReady.Set(1)
}

func (s *Session) countMutation(m state.Mutation, result string) {
	s.metrics.StateMutations.WithLabelValues(m.Kind, result).Inc()
}

// loadTarget prefetches the geometry of the transition target so the commit
// never shows a layer whose data is missing.
func (s *Session) loadTarget(ctx context.Context, target state.ViewState) error {
	rec, ok := s.store.Index().Lookup(target.Key())
	if !ok {
		return fmt.Errorf("%s: %w", target.Key(), domain.ErrUnavailable)
	}
	_, err := s.discoverer.Geometry(ctx, rec)
	return err
}

// commitTarget merges the target's selection into the visible state, keeping
// presentation changes made while the transition was pending.
func (s *Session) commitTarget(target state.ViewState) {
	s.store.Update(domain.ReasonTransition, func(cur state.ViewState, idx domain.Index) state.ViewState {
		if _, ok := idx.Lookup(target.Key()); !ok {
			return cur
		}
		cur.SelectedYear = target.SelectedYear
		cur.SelectedStage = target.SelectedStage
		cur.Layers = cur.Layers.With(target.SelectedStage)
		return cur
	})
}

func (s *Session) onChange(c state.Change) {
	ctrl := s.controller.Load()

	var cmds []domain.Command
	switch {
	case c.Index.Empty():
		cmds = ctrl.NoData()
	case c.Reason == domain.ReasonInitial || c.Reason == domain.ReasonRefresh:
		cmds = ctrl.Render(c.Next, c.Index)
	default:
		cmds = ctrl.OnStateChange(c.Prev, c.Next, c.Index)
	}
	if len(cmds) == 0 {
		return
	}
	s.publish(c.Reason, cmds)
}

func (s *Session) publish(reason string, cmds []domain.Command) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.seq++
	batch := domain.CommandBatch{
		ID:        uuid.NewString(),
		Seq:       s.seq,
		Reason:    reason,
		EmittedAt: domain.Now(),
		Commands:  cmds,
	}
	s.metrics.CommandBatches.WithLabelValues(reason).Inc()
	s.metrics.CommandsEmitted.Add(float64(len(cmds)))

	if err := s.sink.Publish(s.ctx, batch); err != nil {
		s.logger.Debug("command batch not fully delivered", "seq", batch.Seq, "error", err)
	}
}
