package transition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
	"github.com/couchcryptid/flood-extent-service/internal/state"
)

const fade = 300 * time.Millisecond

type recorder struct {
	mu      sync.Mutex
	commits []state.ViewState
}

func (r *recorder) commit(s state.ViewState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, s)
}

func (r *recorder) years() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, c := range r.commits {
		out = append(out, c.SelectedYear)
	}
	return out
}

func target(year int) state.ViewState {
	return state.ViewState{SelectedYear: year, SelectedStage: domain.StageDuring}
}

func newGuard(clock clockwork.Clock, load Loader) (*Guard, *recorder, *observability.Metrics) {
	rec := &recorder{}
	metrics := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(clock, fade, load, rec.commit, logger, metrics), rec, metrics
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGuard_CommitsAfterFade(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, rec, metrics := newGuard(clock, nil)

	gen := g.RequestTransition(context.Background(), target(2020))
	assert.Equal(t, uint64(1), gen)
	assert.True(t, g.Active())
	pending, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, 2020, pending.SelectedYear)

	require.NoError(t, clock.BlockUntilContext(waitCtx(t), 1))
	assert.Empty(t, rec.years(), "nothing commits before the fade elapses")

	clock.Advance(fade)
	g.Wait()

	assert.Equal(t, []int{2020}, rec.years())
	assert.False(t, g.Active())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Transitions.WithLabelValues("applied")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.TransitionActive), 0)
}

func TestGuard_LatestRequestWins(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, rec, metrics := newGuard(clock, nil)

	g.RequestTransition(context.Background(), target(2019))
	g.RequestTransition(context.Background(), target(2020))
	last := g.RequestTransition(context.Background(), target(2021))
	assert.Equal(t, uint64(3), last)

	require.NoError(t, clock.BlockUntilContext(waitCtx(t), 3))
	clock.Advance(fade)
	g.Wait()

	assert.Equal(t, []int{2021}, rec.years())
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.Transitions.WithLabelValues("superseded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Transitions.WithLabelValues("applied")), 0)
}

func TestGuard_SlowSupersededLoadIsDiscarded(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	loading := make(chan struct{}, 1)

	g, rec, _ := newGuard(clock, func(_ context.Context, s state.ViewState) error {
		if s.SelectedYear == 2019 {
			loading <- struct{}{}
			<-release
		}
		return nil
	})

	g.RequestTransition(context.Background(), target(2019))
	require.NoError(t, clock.BlockUntilContext(waitCtx(t), 1))
	clock.Advance(fade)
	<-loading

	g.RequestTransition(context.Background(), target(2020))
	require.NoError(t, clock.BlockUntilContext(waitCtx(t), 1))
	clock.Advance(fade)

	require.Eventually(t, func() bool { return len(rec.years()) == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	g.Wait()

	assert.Equal(t, []int{2020}, rec.years(), "the stale 2019 load must not overwrite 2020")
}

func TestGuard_FailureReleasesGuard(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, rec, metrics := newGuard(clock, func(_ context.Context, s state.ViewState) error {
		if s.SelectedYear == 2022 {
			return errors.New("geometry unavailable")
		}
		return nil
	})

	g.RequestTransition(context.Background(), target(2022))
	require.NoError(t, clock.BlockUntilContext(waitCtx(t), 1))
	clock.Advance(fade)
	g.Wait()

	assert.False(t, g.Active())
	assert.Empty(t, rec.years())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Transitions.WithLabelValues("failed")), 0)

	g.RequestTransition(context.Background(), target(2023))
	require.NoError(t, clock.BlockUntilContext(waitCtx(t), 1))
	clock.Advance(fade)
	g.Wait()
	assert.Equal(t, []int{2023}, rec.years())
}

func TestGuard_ContextCanceledFails(t *testing.T) {
	g, rec, metrics := newGuard(clockwork.NewFakeClock(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	g.RequestTransition(ctx, target(2020))
	cancel()
	g.Wait()

	assert.Empty(t, rec.years())
	assert.False(t, g.Active())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Transitions.WithLabelValues("failed")), 0)
}

func TestGuard_Cancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, rec, _ := newGuard(clock, nil)

	g.Cancel() // idle: no-op
	assert.Equal(t, uint64(0), g.Generation())

	g.RequestTransition(context.Background(), target(2020))
	require.NoError(t, clock.BlockUntilContext(waitCtx(t), 1))
	g.Cancel()
	assert.False(t, g.Active())

	clock.Advance(fade)
	g.Wait()
	assert.Empty(t, rec.years())
}

func TestGuard_ZeroFadeCommitsImmediately(t *testing.T) {
	rec := &recorder{}
	g := New(clockwork.NewFakeClock(), 0, nil, rec.commit,
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())

	g.RequestTransition(context.Background(), target(2024))
	g.Wait()
	assert.Equal(t, []int{2024}, rec.years())
}
