// Package transition serializes dataset changes so that only the most recent
// selection is ever committed.
package transition

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-extent-service/internal/observability"
	"github.com/couchcryptid/flood-extent-service/internal/state"
)

// Loader prepares a target before it is committed, typically by fetching its
// geometry. An error fails the transition.
type Loader func(ctx context.Context, target state.ViewState) error

// Committer makes a target visible. It runs with the guard locked, so commits
// are totally ordered.
type Committer func(target state.ViewState)

// Guard is a single-flight, cancel-and-replace transition state machine:
// Idle → Pending(target) → Idle. A newer request supersedes an older one; the
// older one still runs to completion but its result is discarded.
type Guard struct {
	clock   clockwork.Clock
	fade    time.Duration
	load    Loader
	commit  Committer
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	gen     uint64
	pending *state.ViewState
	wg      sync.WaitGroup
}

// New creates a guard. fade is waited on clock before loading, matching the
// renderer's fade-out; zero skips the wait. load may be nil.
func New(clock clockwork.Clock, fade time.Duration, load Loader, commit Committer, logger *slog.Logger, metrics *observability.Metrics) *Guard {
	return &Guard{
		clock:   clock,
		fade:    fade,
		load:    load,
		commit:  commit,
		logger:  logger,
		metrics: metrics,
	}
}

// RequestTransition starts a transition to target and returns its generation.
// ctx bounds the load; it should outlive the caller's request.
func (g *Guard) RequestTransition(ctx context.Context, target state.ViewState) uint64 {
	g.mu.Lock()
	g.gen++
	gen := g.gen
	if g.pending != nil {
		g.logger.Debug("transition superseded", "generation", gen-1)
	}
	t := target
	g.pending = &t
	g.metrics.TransitionActive.Set(1)
	g.wg.Add(1)
	g.mu.Unlock()

	go g.run(ctx, gen, target)
	return gen
}

func (g *Guard) run(ctx context.Context, gen uint64, target state.ViewState) {
	defer g.wg.Done()

	err := g.wait(ctx)
	if err == nil && g.load != nil {
		err = g.load(ctx, target)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if gen != g.gen {
		g.metrics.Transitions.WithLabelValues("superseded").Inc()
		return
	}
	g.pending = nil
	g.metrics.TransitionActive.Set(0)

	if err != nil {
		g.metrics.Transitions.WithLabelValues("failed").Inc()
		g.logger.Warn("transition failed",
			"year", target.SelectedYear,
			"stage", target.SelectedStage,
			"error", err,
		)
		return
	}

	g.commit(target)
	g.metrics.Transitions.WithLabelValues("applied").Inc()
}

func (g *Guard) wait(ctx context.Context) error {
	if g.fade <= 0 {
		return ctx.Err()
	}
	select {
	case <-g.clock.After(g.fade):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel discards any in-flight transition. It is used when the index is
// replaced and pending targets may no longer be valid.
func (g *Guard) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return
	}
	g.gen++
	g.pending = nil
	g.metrics.TransitionActive.Set(0)
}

// Active reports whether a transition is in flight.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

// Pending returns the target of the in-flight transition.
func (g *Guard) Pending() (state.ViewState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return state.ViewState{}, false
	}
	return *g.pending, true
}

// Generation returns the number of the latest request.
func (g *Guard) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// Wait blocks until every started transition has finished, superseded ones
// included.
func (g *Guard) Wait() {
	g.wg.Wait()
}
